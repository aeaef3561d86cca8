package main

import (
	"context"
	"fmt"
	"time"

	"github.com/archonops/supervisor/internal/audit"
)

// SetGoalCmd atomically replaces the operator-injected goal (spec.md §6
// "set-goal").
type SetGoalCmd struct {
	ProjectID   string `name:"project-id" required:"" help:"Project identifier; also the sandbox subdirectory."`
	Description string `required:"" help:"Goal description."`
}

func (c *SetGoalCmd) Run(e *env) error {
	ctx := context.Background()

	state, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("no state initialized; run init-state first")
	}

	before := cloneStateForAudit(state)

	now := time.Now()
	state.Goal.ProjectID = c.ProjectID
	state.Goal.Description = c.Description
	state.Goal.Completed = false
	state.Goal.UpdatedAt = now
	state.LastUpdated = now

	if err := e.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	sink, err := buildAuditSink(e.cfg, c.ProjectID)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	diff, err := audit.BuildStateDiff(before, state)
	if err == nil {
		sink.SafeAppendAudit(audit.Entry{
			Iteration: state.Sub.Iteration,
			Event:     audit.EventStateTransition,
			StateDiff: diff,
			Source:    "operator",
			Tool:      "set-goal",
		})
	}

	fmt.Printf("goal set for project %q\n", c.ProjectID)
	return nil
}
