package main

import (
	"context"
	"fmt"
)

// StatusCmd prints a human-readable state summary (spec.md §6 "status").
type StatusCmd struct{}

func (c *StatusCmd) Run(e *env) error {
	ctx := context.Background()

	state, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		fmt.Println("no state initialized")
		return nil
	}

	qlen, err := e.queue.Len(ctx)
	if err != nil {
		return fmt.Errorf("read queue length: %w", err)
	}

	fmt.Printf("status:          %s\n", state.Sub.Status)
	fmt.Printf("iteration:       %d\n", state.Sub.Iteration)
	fmt.Printf("goal:            %q (completed=%v)\n", state.Goal.Description, state.Goal.Completed)
	fmt.Printf("queue depth:     %d\n", qlen)
	fmt.Printf("completed tasks: %d\n", len(state.CompletedTasks))
	fmt.Printf("blocked tasks:   %d\n", len(state.BlockedTasks))
	if state.CurrentTask != nil {
		fmt.Printf("current task:    %s\n", state.CurrentTask.TaskID)
	}
	if state.RetrySlot != nil {
		fmt.Printf("retry slot:      %s\n", state.RetrySlot.TaskID)
	}
	if state.Sub.Status == "HALTED" {
		fmt.Printf("halt reason:     %s\n", state.Sub.HaltReason)
		if state.Sub.HaltDetails != "" {
			fmt.Printf("halt details:    %s\n", state.Sub.HaltDetails)
		}
	}
	return nil
}
