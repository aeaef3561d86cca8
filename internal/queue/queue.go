// Package queue implements the Task Queue namespace: a FIFO list that only
// supports enqueue/dequeue (spec.md §3 invariant 2, §6 "Task Queue").
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/archonops/supervisor/internal/model"
)

// Queue is the Task Queue contract. Implementations never mutate, filter,
// or reorder stored tasks.
type Queue interface {
	// Enqueue validates nothing itself; callers (the enqueue command) are
	// responsible for schema validation before pushing.
	Enqueue(ctx context.Context, t *model.Task) error
	// Dequeue pops the head of the queue. Returns (nil, nil) when empty.
	Dequeue(ctx context.Context) (*model.Task, error)
	// Len reports the current queue depth, for status.
	Len(ctx context.Context) (int, error)
}

// MemQueue is an in-memory FIFO used by tests; the CLI always builds a
// Redis or SQL queue.
type MemQueue struct {
	mu    sync.Mutex
	items [][]byte
}

// NewMemQueue constructs an empty in-memory queue.
func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

func (q *MemQueue) Enqueue(_ context.Context, t *model.Task) error {
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, b)
	return nil
}

func (q *MemQueue) Dequeue(_ context.Context) (*model.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, nil
	}
	head := q.items[0]
	q.items = q.items[1:]
	var t model.Task
	if err := json.Unmarshal(head, &t); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	return &t, nil
}

func (q *MemQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items), nil
}
