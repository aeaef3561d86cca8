// Package retry implements the Retry / Halt Policy (spec.md §4.8): retry
// counters, repeated-identical-failure escalation, blocker promotion, and
// resource-exhausted backoff scheduling.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/archonops/supervisor/internal/model"
)

// DefaultRepeatedFailureThreshold is the configurable N from spec.md §9
// Open Questions, defaulting to 2.
const DefaultRepeatedFailureThreshold = 2

// Outcome is the decision a failing iteration resolves to.
type Outcome string

const (
	OutcomeRetry                 Outcome = "RETRY"
	OutcomeBlock                 Outcome = "BLOCK"
	OutcomeHaltAmbiguity         Outcome = "HALT_AMBIGUITY"
	OutcomeHaltAskedQuestion     Outcome = "HALT_ASKED_QUESTION"
	OutcomeHaltResourceExhausted Outcome = "HALT_RESOURCE_EXHAUSTED"
)

// Policy holds the operator-configured retry defaults.
type Policy struct {
	DefaultMaxRetries        int
	RepeatedFailureThreshold int
}

// NewPolicy constructs a Policy, applying spec defaults for non-positive
// inputs.
func NewPolicy(defaultMaxRetries, repeatedFailureThreshold int) Policy {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 3
	}
	if repeatedFailureThreshold <= 0 {
		repeatedFailureThreshold = DefaultRepeatedFailureThreshold
	}
	return Policy{DefaultMaxRetries: defaultMaxRetries, RepeatedFailureThreshold: repeatedFailureThreshold}
}

// MaxRetries returns a task's retry budget: its own retry_policy if set,
// else the policy default.
func (p Policy) MaxRetries(t *model.Task) int {
	if t.RetryPolicy != nil && t.RetryPolicy.MaxRetries > 0 {
		return t.RetryPolicy.MaxRetries
	}
	return p.DefaultMaxRetries
}

// Evaluate classifies a failing validation report into the next
// control-loop outcome (spec.md §4.8 "Outcomes of a failing iteration").
// It does not mutate state; callers apply the corresponding Apply*
// function once a final decision is reached.
func (p Policy) Evaluate(state *model.SupervisorState, t *model.Task, report model.ValidationReport) Outcome {
	if report.Ambiguous {
		return OutcomeHaltAmbiguity
	}
	if report.AskedQuestion {
		return OutcomeHaltAskedQuestion
	}
	if state.IsStrict(t.TaskID) {
		// Strict escalation: any further failure blocks immediately,
		// bypassing the remaining retry budget.
		return OutcomeBlock
	}
	count := state.Sub.RetryCounts[t.TaskID]
	if count < p.MaxRetries(t) {
		return OutcomeRetry
	}
	return OutcomeBlock
}

// RecordFailure updates the repeated-identical-failure tracker for a
// task, comparing this attempt's failure reason to the last one. When the
// threshold is reached, the task is flagged strict for its next attempt
// (spec.md §4.8 "Repeated-identical-failure detection").
func (p Policy) RecordFailure(state *model.SupervisorState, taskID, reason string) {
	if state.Sub.LastFailureReason == nil {
		state.Sub.LastFailureReason = map[string]string{}
	}
	if state.Sub.RepeatedFailureCount == nil {
		state.Sub.RepeatedFailureCount = map[string]int{}
	}
	if state.Sub.StrictTasks == nil {
		state.Sub.StrictTasks = map[string]bool{}
	}

	if reason != "" && state.Sub.LastFailureReason[taskID] == reason {
		state.Sub.RepeatedFailureCount[taskID]++
	} else {
		state.Sub.LastFailureReason[taskID] = reason
		state.Sub.RepeatedFailureCount[taskID] = 1
	}

	if state.Sub.RepeatedFailureCount[taskID] >= p.RepeatedFailureThreshold {
		state.Sub.StrictTasks[taskID] = true
	}
}

// ApplyRetry increments the task's retry counter and moves it into the
// retry slot for the next iteration to recover (spec.md §4.8, invariant
// 1: current_task/retry_slot hold at most one task between them).
func ApplyRetry(state *model.SupervisorState, t *model.Task) {
	if state.Sub.RetryCounts == nil {
		state.Sub.RetryCounts = map[string]int{}
	}
	state.Sub.RetryCounts[t.TaskID]++
	state.RetrySlot = t
	state.CurrentTask = nil
}

// ApplyBlock moves a task to blocked_tasks and clears its retry/failure
// bookkeeping (spec.md §4.8 "Retry count >= max -> blocked").
func ApplyBlock(state *model.SupervisorState, t *model.Task, reason string, now time.Time) {
	if reason == "" {
		reason = "unknown reason"
	}
	state.BlockedTasks = append(state.BlockedTasks, model.BlockedTask{
		TaskID:    t.TaskID,
		BlockedAt: now,
		Reason:    reason,
	})
	state.CurrentTask = nil
	state.RetrySlot = nil
	delete(state.Sub.RetryCounts, t.TaskID)
	delete(state.Sub.RepeatedFailureCount, t.TaskID)
	delete(state.Sub.LastFailureReason, t.TaskID)
	delete(state.Sub.StrictTasks, t.TaskID)
}

// ApplyHalt transitions the supervisor to HALTED. current_task and
// retry_slot are deliberately left untouched (spec.md §8 invariant 8
// "halt stability": nothing changes until an explicit resume, and the
// in-flight task must still be recoverable by the Task Retriever after
// resume).
func ApplyHalt(state *model.SupervisorState, reason model.HaltReason, details string) {
	state.Sub.Status = model.StatusHalted
	state.Sub.HaltReason = reason
	state.Sub.HaltDetails = details
}

// resourceExhaustedInitial and resourceExhaustedMax bound the exponential
// schedule computed for RESOURCE_EXHAUSTED halts (spec.md §8 S5).
const (
	resourceExhaustedInitial = 30 * time.Second
	resourceExhaustedMax     = 30 * time.Minute
)

// ScheduleResourceExhausted records the next retry time for a provider
// quota-exhaustion signal, using an exponential backoff grounded on
// cenkalti/backoff/v5's ExponentialBackOff, and halts the supervisor with
// RESOURCE_EXHAUSTED (spec.md §4.8, §8 S5).
func ScheduleResourceExhausted(state *model.SupervisorState, now time.Time) {
	attempt := 1
	if prev := state.Sub.ResourceExhaustedRetry; prev != nil {
		attempt = prev.Attempt + 1
	}
	state.Sub.ResourceExhaustedRetry = &model.ResourceExhaustedRetry{
		Attempt:     attempt,
		LastAttempt: now,
		NextRetryAt: now.Add(backoffDelay(attempt)),
	}
	ApplyHalt(state, model.HaltResourceExhausted, "provider reported quota exhaustion")
}

// ReadyToRetryResourceExhausted reports whether the scheduled retry time
// has passed; the driver refuses to proceed until then (spec.md §5
// "Cancellation & timeout").
func ReadyToRetryResourceExhausted(state *model.SupervisorState, now time.Time) bool {
	sched := state.Sub.ResourceExhaustedRetry
	if sched == nil {
		return true
	}
	return !now.Before(sched.NextRetryAt)
}

// ClearResourceExhausted clears the schedule and halt reason once the
// supervisor resumes past a RESOURCE_EXHAUSTED halt (spec.md §4.7 step 4).
func ClearResourceExhausted(state *model.SupervisorState) {
	state.Sub.ResourceExhaustedRetry = nil
	if state.Sub.HaltReason == model.HaltResourceExhausted {
		state.Sub.HaltReason = ""
		state.Sub.HaltDetails = ""
	}
}

func backoffDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = resourceExhaustedInitial
	b.MaxInterval = resourceExhaustedMax

	var delay time.Duration
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
		if delay == backoff.Stop {
			return resourceExhaustedMax
		}
	}
	if delay > resourceExhaustedMax {
		delay = resourceExhaustedMax
	}
	return delay
}

// DefaultResourceExhaustedPredicate matches the configurable substrings
// decided in DESIGN.md's Open Question 1. The dispatcher keeps its own
// copy of the same default; nothing passes this variable to
// dispatcher.SetResourceExhaustedSubstrings. It is kept here only as the
// documented default for callers assembling their own predicate.
var DefaultResourceExhaustedPredicate = []string{"quota", "rate limit", "429"}
