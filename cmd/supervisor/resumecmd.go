package main

import (
	"context"
	"fmt"
	"time"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/retry"
)

// ResumeCmd transitions HALTED back to RUNNING (spec.md §6 "resume":
// "refuses if blocker conditions remain"). The one halt reason with a
// machine-checkable blocker condition is RESOURCE_EXHAUSTED: its schedule
// is the blocker, and a manual resume before the schedule elapses is
// refused the same way the driver itself refuses to proceed (spec.md §8
// S5). Every other halt reason is an operator judgment call with no
// predicate core scope can evaluate, so resume honors it unconditionally
// once the operator issues it explicitly (invariant 7: only an explicit
// operator action clears a halt for those reasons).
type ResumeCmd struct{}

func (c *ResumeCmd) Run(e *env) error {
	ctx := context.Background()

	state, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("no state initialized; run init-state first")
	}
	if state.Sub.Status != model.StatusHalted {
		return fmt.Errorf("not halted (status=%s)", state.Sub.Status)
	}
	if state.Sub.HaltReason == model.HaltResourceExhausted && !retry.ReadyToRetryResourceExhausted(state, time.Now()) {
		return fmt.Errorf("refusing resume: resource-exhausted backoff has not elapsed (next_retry_at=%s)", state.Sub.ResourceExhaustedRetry.NextRetryAt)
	}

	before := cloneStateForAudit(state)

	state.Sub.Status = model.StatusRunning
	retry.ClearResourceExhausted(state)
	state.Sub.HaltReason = ""
	state.Sub.HaltDetails = ""
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
			Event:     audit.EventStateTransition,
			StateDiff: diff,
			Source:    "operator",
			Tool:      "resume",
		})
	}

	fmt.Println("resumed")
	return nil
}
