package main

import (
	"context"
	"fmt"
	"time"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/retry"
)

// HaltCmd forces a transition to HALTED (spec.md §6 "halt"), the operator
// counterpart to the driver's own Ambiguity/AskedQuestion/ResourceExhausted
// halts — used e.g. to stop the loop for maintenance.
type HaltCmd struct {
	Reason  string `required:"" enum:"AMBIGUITY,ASKED_QUESTION,RESOURCE_EXHAUSTED,INTERNAL_ERROR,OPERATOR" help:"Halt reason."`
	Details string `help:"Free-form explanation recorded in halt_details."`
}

func (c *HaltCmd) Run(e *env) error {
	ctx := context.Background()

	state, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("no state initialized; run init-state first")
	}
	if state.Sub.Status == model.StatusHalted {
		return fmt.Errorf("already halted (reason=%s)", state.Sub.HaltReason)
	}

	before := cloneStateForAudit(state)

	retry.ApplyHalt(state, model.HaltReason(c.Reason), c.Details)
	state.LastUpdated = time.Now()

	if err := e.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}

	sink, err := buildAuditSink(e.cfg, state.Goal.ProjectID)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	diff, err := audit.BuildStateDiff(before, state)
	if err == nil {
		sink.SafeAppendAudit(audit.Entry{
			Iteration: state.Sub.Iteration,
			Event:     audit.EventHalt,
			StateDiff: diff,
			Source:    "operator",
			Tool:      "halt",
		})
	}

	fmt.Printf("halted (%s)\n", c.Reason)
	return nil
}
