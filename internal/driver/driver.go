// Package driver implements the Control Loop Driver (spec.md §4.1): a
// single-threaded, cooperatively-scheduled iterative driver that retrieves
// one task per tick, dispatches it, validates the result, and commits
// exactly one state transition before sleeping. Grounded on the shape of
// a driver-owned iteration state machine (other_examples architect
// driver: "Driver manages the state machine").
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/archonops/supervisor/internal/audit"
	"github.com/archonops/supervisor/internal/config"
	"github.com/archonops/supervisor/internal/dispatcher"
	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/observability"
	"github.com/archonops/supervisor/internal/promptbuilder"
	"github.com/archonops/supervisor/internal/queue"
	"github.com/archonops/supervisor/internal/retry"
	"github.com/archonops/supervisor/internal/session"
	"github.com/archonops/supervisor/internal/statestore"
	"github.com/archonops/supervisor/internal/validation"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Driver owns one project's control loop. Every collaborator is injected
// (design note: "dependency-injected handles, no module-level
// singletons").
type Driver struct {
	Store       statestore.Store
	Queue       queue.Queue
	Dispatcher  *dispatcher.Dispatcher
	Sessions    *session.Manager
	RetryPolicy retry.Policy
	Audit       *audit.Sink
	Metrics     *observability.Metrics
	Catalog     validation.Catalog
	Config      *config.Config
	Tracer      trace.Tracer
	Now         Clock
}

// New constructs a Driver, defaulting Now to time.Now and Tracer to the
// currently installed OpenTelemetry tracer provider's no-op tracer (set
// cfg.Observability.TracingEnabled and call observability.InitTracer before
// constructing the Driver to get real spans per iteration).
func New(store statestore.Store, q queue.Queue, disp *dispatcher.Dispatcher, sessions *session.Manager, pol retry.Policy, auditSink *audit.Sink, metrics *observability.Metrics, catalog validation.Catalog, cfg *config.Config) *Driver {
	return &Driver{
		Store:       store,
		Queue:       q,
		Dispatcher:  disp,
		Sessions:    sessions,
		RetryPolicy: pol,
		Audit:       auditSink,
		Metrics:     metrics,
		Catalog:     catalog,
		Config:      cfg,
		Tracer:      observability.Tracer("supervisor/driver"),
		Now:         time.Now,
	}
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Run executes iterations until a halt (other than a pending
// RESOURCE_EXHAUSTED schedule) or an explicit goal completion with an
// empty queue (spec.md §4.1 "Termination").
func (d *Driver) Run(ctx context.Context) error {
	for {
		cont, err := d.RunIteration(ctx)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.pollInterval()):
		}
	}
}

func (d *Driver) pollInterval() time.Duration {
	if d.Config != nil && d.Config.PollInterval > 0 {
		return d.Config.PollInterval
	}
	return 5 * time.Second
}

// RunIteration executes exactly one control-loop tick (spec.md §4.1
// per-iteration state machine). It returns (true, nil) when the driver
// should keep polling, (false, nil) on a terminal stop (halted or goal
// complete), and a non-nil error only for failures the caller cannot
// recover from (state store unreachable, etc. — spec.md §4.1 "Failure":
// any uncaught error is logged and the iteration ends, state unchanged).
func (d *Driver) RunIteration(ctx context.Context) (bool, error) {
	if d.Tracer != nil {
		var span trace.Span
		ctx, span = d.Tracer.Start(ctx, "supervisor.iteration")
		defer span.End()
	}

	if d.Metrics != nil {
		d.Metrics.IterationsTotal.Inc()
	}

	state, err := d.Store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("driver: load state: %w", err)
	}
	if state == nil {
		return false, fmt.Errorf("driver: no state initialized; run init-state first")
	}

	if state.Sub.Status == model.StatusHalted {
		if state.Sub.HaltReason == model.HaltResourceExhausted {
			return d.handleResourceExhaustedWait(ctx, state)
		}
		return false, nil
	}
	if state.Sub.Status == model.StatusCompleted {
		return false, nil
	}

	retrieved, err := RetrieveFrom(ctx, state, d.Queue)
	if err != nil {
		return false, err
	}

	if retrieved.Task == nil {
		return d.handleNoTask(ctx, state)
	}

	return d.executeTask(ctx, state, retrieved)
}

// RetrieveFrom is the exported form of Retrieve, which it delegates to;
// RunIteration is its only caller.
func RetrieveFrom(ctx context.Context, state *model.SupervisorState, q queue.Queue) (*Retrieved, error) {
	return Retrieve(ctx, state, q)
}

// handleResourceExhaustedWait implements spec.md §8 S5: iterations before
// the scheduled retry time are a no-op; once the time passes the
// supervisor transitions back to RUNNING by itself — the one case where a
// halt clears without an operator command, because the blocker is purely
// time-based, not a judgment call (spec.md §4.7 step 4, §4.8).
func (d *Driver) handleResourceExhaustedWait(ctx context.Context, state *model.SupervisorState) (bool, error) {
	now := d.now()
	if !retry.ReadyToRetryResourceExhausted(state, now) {
		return true, nil
	}
	before := cloneState(state)
	state.Sub.Status = model.StatusRunning
	retry.ClearResourceExhausted(state)
	if err := d.Store.Save(ctx, state); err != nil {
		return false, fmt.Errorf("driver: persist resource-exhausted recovery: %w", err)
	}
	d.appendTransition(before, state, "", "resource-exhausted schedule elapsed")
	return true, nil
}

// handleNoTask implements the "no task" branch of §4.1's state machine:
// CHECK_GOAL_COMPLETION → (MARK_COMPLETED | HALT | SLEEP).
func (d *Driver) handleNoTask(ctx context.Context, state *model.SupervisorState) (bool, error) {
	before := cloneState(state)

	if !state.QueueExhausted {
		state.QueueExhausted = true
		state.LastUpdated = d.now()
		if err := d.Store.Save(ctx, state); err != nil {
			return false, fmt.Errorf("driver: persist queue-exhausted: %w", err)
		}
		d.Audit.SafeAppendAudit(audit.Entry{
			Iteration: state.Sub.Iteration,
			Event:     audit.EventQueueExhausted,
		})
	}

	if d.Config == nil || !d.Config.GoalCompletionCheckEnabled || state.Goal.Description == "" || state.Goal.Completed {
		return true, nil
	}

	prompt := promptbuilder.BuildGoalCompletionPrompt(state)
	d.Audit.SafeAppendPrompt(audit.KindGoalCompletionCheck, "", prompt.Text)

	workingDir := d.sandboxDir(state.Goal.ProjectID)
	result, _, err := d.Dispatcher.Dispatch(ctx, prompt.Text, workingDir, "", "")
	if err != nil {
		// A goal-completion check is advisory; dispatch failure just
		// means we keep polling rather than escalate the run.
		return true, nil
	}
	d.Audit.SafeAppendPrompt(audit.KindGoalCompletionResponse, "", result.ParsedText)

	out, err := validation.ParseAgentOutput(result.ParsedText, model.TaskTypeBehavioral)
	if err != nil || out.Status != "completed" {
		return true, nil
	}

	state.Goal.Completed = true
	state.Goal.UpdatedAt = d.now()
	state.Sub.Status = model.StatusCompleted
	if err := d.Store.Save(ctx, state); err != nil {
		return false, fmt.Errorf("driver: persist goal completion: %w", err)
	}
	d.appendTransition(before, state, "", "goal marked complete")
	return false, nil
}

func (d *Driver) sandboxDir(projectID string) string {
	root := "./sandbox"
	if d.Config != nil && d.Config.SandboxRoot != "" {
		root = d.Config.SandboxRoot
	}
	if projectID == "" {
		return root
	}
	return root + "/" + projectID
}

func (d *Driver) appendTransition(before, after *model.SupervisorState, taskID, note string) {
	d.appendTransitionFrom(before, after, taskID, "", note)
}

func (d *Driver) appendTransitionFrom(before, after *model.SupervisorState, taskID, source, note string) {
	diff, err := audit.BuildStateDiff(before, after)
	if err != nil {
		return
	}
	d.Audit.SafeAppendAudit(audit.Entry{
		Iteration: after.Sub.Iteration,
		Event:     audit.EventStateTransition,
		TaskID:    taskID,
		Source:    source,
		StateDiff: diff,
		Tool:      note,
	})
}

// cloneState deep-copies a snapshot via JSON round-trip so a later mutation
// of s (maps and slices are reference types) never leaks into a diff's
// "before" side (spec.md invariant 5: before/after previews must reflect
// the state as it actually was before the write).
func cloneState(s *model.SupervisorState) *model.SupervisorState {
	b, err := json.Marshal(s)
	if err != nil {
		cp := *s
		return &cp
	}
	var cp model.SupervisorState
	if err := json.Unmarshal(b, &cp); err != nil {
		fallback := *s
		return &fallback
	}
	return &cp
}
