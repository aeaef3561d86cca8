package main

import (
	"context"
	"fmt"
)

// MetricsCmd prints aggregated counts (spec.md §6 "metrics"). A standalone
// invocation cannot read the live observability.Metrics registry — that
// registry only exists inside the long-running `start` process's memory,
// and spec.md's Non-goals exclude a wire protocol between CLI invocations
// and a running supervisor. Instead this command derives the same
// counters from the persisted SupervisorState, which already carries
// everything a completed/blocked/iteration count needs.
type MetricsCmd struct{}

func (c *MetricsCmd) Run(e *env) error {
	ctx := context.Background()

	state, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if state == nil {
		fmt.Println("no state initialized")
		return nil
	}

	var retried int
	for _, n := range state.Sub.RetryCounts {
		retried += n
	}

	fmt.Printf("iterations_total=%d\n", state.Sub.Iteration)
	fmt.Printf("tasks_completed_total=%d\n", len(state.CompletedTasks))
	fmt.Printf("tasks_blocked_total=%d\n", len(state.BlockedTasks))
	fmt.Printf("tasks_retried_total=%d\n", retried)
	for _, ct := range state.CompletedTasks {
		fmt.Printf("task_duration_seconds{task_id=%q}=%.3f\n", ct.TaskID, ct.DurationSeconds)
	}
	return nil
}
