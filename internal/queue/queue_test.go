package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archonops/supervisor/internal/model"
)

func TestMemQueueFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()

	require.NoError(t, q.Enqueue(ctx, &model.Task{TaskID: "t-1"}))
	require.NoError(t, q.Enqueue(ctx, &model.Task{TaskID: "t-2"}))
	require.NoError(t, q.Enqueue(ctx, &model.Task{TaskID: "t-3"}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-1", first.TaskID)

	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "t-2", second.TaskID)

	n, err = q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemQueueDequeueEmptyReturnsNil(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemQueueDequeueDoesNotMutateRemainingOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemQueue()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, &model.Task{TaskID: id}))
	}

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", got.TaskID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", got.TaskID)

	got, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", got.TaskID)
}
