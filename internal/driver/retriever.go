package driver

import (
	"context"
	"fmt"

	"github.com/archonops/supervisor/internal/model"
	"github.com/archonops/supervisor/internal/queue"
)

// Source names where a retrieved task came from, recorded in the audit
// log (spec.md §4.2: "The source must be recorded in the audit log").
type Source string

const (
	SourceCurrentTask Source = "current_task"
	SourceRetrySlot   Source = "retry_slot"
	SourceQueue       Source = "queue"
	SourceNone        Source = "none"
)

// Retrieved bundles a dequeued task with where it came from.
type Retrieved struct {
	Task   *model.Task
	Source Source
}

// Retrieve implements the Task Retriever (spec.md §4.2): strict
// precedence, no reordering, filtering, or batching. A non-nil
// state.CurrentTask always recovers first (crash case), then the retry
// slot, then the queue head. It mutates state to reflect the task now
// being in flight; callers persist the result.
func Retrieve(ctx context.Context, state *model.SupervisorState, q queue.Queue) (*Retrieved, error) {
	if state.CurrentTask != nil {
		return &Retrieved{Task: state.CurrentTask, Source: SourceCurrentTask}, nil
	}

	if state.RetrySlot != nil {
		t := state.RetrySlot
		state.RetrySlot = nil
		state.CurrentTask = t
		return &Retrieved{Task: t, Source: SourceRetrySlot}, nil
	}

	t, err := q.Dequeue(ctx)
	if err != nil {
		return nil, fmt.Errorf("driver: dequeue: %w", err)
	}
	if t == nil {
		return &Retrieved{Source: SourceNone}, nil
	}
	state.CurrentTask = t
	return &Retrieved{Task: t, Source: SourceQueue}, nil
}
