package main

import (
	"context"
	"fmt"
	"os"

	internaltask "github.com/archonops/supervisor/internal/task"
)

// EnqueueCmd validates and pushes task records from a file (spec.md §6
// "enqueue --task-file <path>"). A record that fails schema validation is
// rejected outright; it never reaches the queue and never halts the
// supervisor (spec.md §7 TaskSchemaInvalid).
type EnqueueCmd struct {
	TaskFile string `name:"task-file" required:"" type:"existingfile" help:"Path to a JSON array of task records."`
}

func (c *EnqueueCmd) Run(e *env) error {
	ctx := context.Background()

	raw, err := os.ReadFile(c.TaskFile)
	if err != nil {
		return fmt.Errorf("read task file: %w", err)
	}

	tasks, err := internaltask.DecodeAll(raw)
	if err != nil {
		return fmt.Errorf("decode task file: %w", err)
	}
	if err := internaltask.ValidateBatch(tasks); err != nil {
		return fmt.Errorf("reject enqueue: %w", err)
	}

	for _, t := range tasks {
		if err := e.queue.Enqueue(ctx, t); err != nil {
			return fmt.Errorf("enqueue %s: %w", t.TaskID, err)
		}
	}

	fmt.Printf("enqueued %d task(s)\n", len(tasks))
	return nil
}
