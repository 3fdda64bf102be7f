package database

import (
	"context"
	"testing"
	"time"

	"invoicesync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clock returns a deterministic, strictly increasing time source.
func clock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	inserted, err := db.Enqueue(ctx, 1001, models.ActionCreateInvoice)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = db.Enqueue(ctx, 1001, models.ActionCreateInvoice)
	require.NoError(t, err)
	assert.False(t, inserted)

	// a different action for the same order is its own task
	inserted, err = db.Enqueue(ctx, 1001, models.ActionVoidInvoice)
	require.NoError(t, err)
	assert.True(t, inserted)

	tasks, err := db.ListActive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	pending := 0
	for _, task := range tasks {
		if task.Action == models.ActionCreateInvoice && task.Status == models.TaskPending {
			pending++
			assert.Equal(t, 0, task.Attempts)
		}
	}
	assert.Equal(t, 1, pending)
}

func TestEnqueueValidation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, 0, models.ActionCreateInvoice)
	assert.Error(t, err)

	_, err = db.Enqueue(ctx, 1, models.SyncAction("refund"))
	assert.Error(t, err)
}

func TestEnqueueAfterCompletion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, 5, models.ActionCreateInvoice)
	require.NoError(t, err)
	task, err := db.NextPending(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(ctx, task.ID, "inv-1"))

	inserted, err := db.Enqueue(ctx, 5, models.ActionCreateInvoice)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestNextPendingOrderAndEligibility(t *testing.T) {
	db := setupTestDB(t)
	db.now = clock(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for _, id := range []int64{3, 1, 2} {
		_, err := db.Enqueue(ctx, id, models.ActionCreateInvoice)
		require.NoError(t, err)
	}

	task, err := db.NextPending(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), task.OrderID, "oldest first")

	// fail the oldest task until its budget is spent
	for i := 0; i < 3; i++ {
		claimed, err := db.ClaimAttempt(ctx, task.ID, i)
		require.NoError(t, err)
		require.True(t, claimed)
		require.NoError(t, db.MarkFailed(ctx, task.ID, "boom"))

		got, err := db.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, i+1, got.Attempts)
		assert.Equal(t, models.TaskFailed, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "boom", *got.ErrorMessage)

		next, err := db.NextPending(ctx, 3)
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, task.ID, next.ID, "failed task stays eligible below the cap")
		} else {
			assert.Equal(t, int64(1), next.OrderID, "exhausted task is skipped")
		}
	}
}

func TestNextPendingEmpty(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.NextPending(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestClaimAttemptCompareAndSwap(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, 9, models.ActionVoidInvoice)
	require.NoError(t, err)
	task, err := db.NextPending(ctx, 3)
	require.NoError(t, err)

	claimed, err := db.ClaimAttempt(ctx, task.ID, task.Attempts)
	require.NoError(t, err)
	assert.True(t, claimed)

	// a second claimant holding the stale attempt count loses
	claimed, err = db.ClaimAttempt(ctx, task.ID, task.Attempts)
	require.NoError(t, err)
	assert.False(t, claimed)

	require.NoError(t, db.MarkCompleted(ctx, task.ID, "cn-1"))
	claimed, err = db.ClaimAttempt(ctx, task.ID, 1)
	require.NoError(t, err)
	assert.False(t, claimed, "completed tasks cannot be claimed")
}

func TestMarkCompleted(t *testing.T) {
	db := setupTestDB(t)
	db.now = clock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := db.Enqueue(ctx, 1, models.ActionCreateInvoice)
	require.NoError(t, err)
	task, err := db.FindPending(ctx, 1, models.ActionCreateInvoice)
	require.NoError(t, err)

	require.NoError(t, db.MarkFailed(ctx, task.ID, "first"))
	require.NoError(t, db.MarkCompleted(ctx, task.ID, "inv-123"))

	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, got.Status)
	require.NotNil(t, got.ExternalInvoiceID)
	assert.Equal(t, "inv-123", *got.ExternalInvoiceID)
	assert.Nil(t, got.ErrorMessage)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))

	assert.ErrorIs(t, db.MarkCompleted(ctx, 999, "x"), ErrTaskNotFound)
	assert.ErrorIs(t, db.MarkFailed(ctx, 999, "x"), ErrTaskNotFound)

	_, err = db.FindPending(ctx, 1, models.ActionCreateInvoice)
	assert.ErrorIs(t, err, ErrNoTask)
}

func TestListActiveNewestFirst(t *testing.T) {
	db := setupTestDB(t)
	db.now = clock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		_, err := db.Enqueue(ctx, id, models.ActionCreateInvoice)
		require.NoError(t, err)
	}
	done, err := db.FindPending(ctx, 2, models.ActionCreateInvoice)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(ctx, done.ID, "inv"))

	tasks, err := db.ListActive(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(5), tasks[0].OrderID)
	assert.Equal(t, int64(4), tasks[1].OrderID)

	tasks, err = db.ListActive(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, int64(3), tasks[0].OrderID)
	assert.Equal(t, int64(1), tasks[1].OrderID)

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.TaskPending]+counts[models.TaskFailed])
}

func TestPurge(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for id := int64(1); id <= 3; id++ {
		_, err := db.Enqueue(ctx, id, models.ActionCreateInvoice)
		require.NoError(t, err)
	}
	t1, _ := db.FindPending(ctx, 1, models.ActionCreateInvoice)
	t2, _ := db.FindPending(ctx, 2, models.ActionCreateInvoice)
	require.NoError(t, db.MarkFailed(ctx, t1.ID, "x"))
	require.NoError(t, db.MarkCompleted(ctx, t2.ID, "inv"))

	_, err := db.Purge(ctx, models.TaskPending)
	assert.Error(t, err)
	_, err = db.Purge(ctx)
	assert.Error(t, err)

	n, err := db.Purge(ctx, models.TaskFailed)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.TaskPending])
	assert.Equal(t, 1, counts[models.TaskCompleted])
	assert.Equal(t, 0, counts[models.TaskFailed])
}

func TestRequeue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.Enqueue(ctx, 1, models.ActionCreateInvoice)
	require.NoError(t, err)
	task, err := db.NextPending(ctx, 1)
	require.NoError(t, err)

	claimed, err := db.ClaimAttempt(ctx, task.ID, 0)
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, db.MarkFailed(ctx, task.ID, "down"))

	_, err = db.NextPending(ctx, 1)
	require.ErrorIs(t, err, ErrNoTask)

	// a fresh pending task for the same pair blocks the requeue
	_, err = db.Enqueue(ctx, 1, models.ActionCreateInvoice)
	require.NoError(t, err)
	assert.ErrorIs(t, db.Requeue(ctx, task.ID), ErrDuplicateTask)

	fresh, err := db.FindPending(ctx, 1, models.ActionCreateInvoice)
	require.NoError(t, err)
	require.NoError(t, db.MarkCompleted(ctx, fresh.ID, "inv"))

	require.NoError(t, db.Requeue(ctx, task.ID))
	got, err := db.GetTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskPending, got.Status)
	assert.Equal(t, 0, got.Attempts)

	assert.ErrorIs(t, db.Requeue(ctx, task.ID), ErrTaskNotFound, "only failed tasks can be requeued")
}
