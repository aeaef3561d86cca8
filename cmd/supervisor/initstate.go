package main

import (
	"context"
	"fmt"

	"github.com/archonops/supervisor/internal/model"
)

// InitStateCmd creates a fresh state snapshot (spec.md §6 "init-state").
type InitStateCmd struct {
	ExecutionMode string `name:"execution-mode" enum:"AUTO,MANUAL" required:"" help:"AUTO or MANUAL."`
}

func (c *InitStateCmd) Run(e *env) error {
	ctx := context.Background()

	exists, err := e.store.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check existing state: %w", err)
	}
	if exists {
		return fmt.Errorf("a state snapshot already exists at the configured state key")
	}

	state := model.NewState("", model.ExecutionMode(c.ExecutionMode))
	if err := e.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save initial state: %w", err)
	}

	fmt.Printf("initialized state (execution_mode=%s)\n", c.ExecutionMode)
	return nil
}
