package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalmirror/src/model"
)

/*
Test index

ClaimNext
  - TestTaskClaimNextSkipsLockedRows      SQL shape on postgres
  - TestTaskQueueLifecycle                enqueue, claim, fail with retry, exhaust
  - TestTaskClaimNextRespectsAvailableAt  delayed tasks stay hidden
RequeueStale / HasOpen
  - TestTaskRequeueStale
  - TestTaskHasOpen
*/

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTaskClaimNextSkipsLockedRows(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := &TaskRepository{db: db, now: fixedClock(now)}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" WHERE status = \$1 AND available_at <= \$2 ORDER BY available_at ASC, id ASC LIMIT \$3 FOR UPDATE SKIP LOCKED`).
		WithArgs(model.TaskStatusQueued, now, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "payload", "status", "attempts", "max_attempts"}).
			AddRow(7, model.TaskKindMirrorSignal, `{"signal_id":3}`, model.TaskStatusQueued, 0, 3))
	mock.ExpectExec(`UPDATE "tasks" SET .* WHERE id = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	task, err := repo.ClaimNext(context.Background(), "worker-1")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, uint(7), task.ID)
	assert.Equal(t, model.TaskStatusRunning, task.Status)
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, "worker-1", task.LockedBy)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskClaimNextEmptyQueue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := &TaskRepository{db: db, now: time.Now}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "tasks" .* FOR UPDATE SKIP LOCKED`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	task, err := repo.ClaimNext(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.Nil(t, task)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTaskQueueLifecycle(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := &TaskRepository{db: db, now: fixedClock(now)}

	task, err := NewTask(model.TaskKindExecuteAccount, model.ExecuteAccountPayload{AccountID: 2, SignalID: 5, StrategyID: 1}, 2)
	require.NoError(t, err)
	assert.JSONEq(t, `{"account_id":2,"signal_id":5,"strategy_id":1}`, task.Payload)
	require.NoError(t, repo.Enqueue(ctx, task))

	claimed, err := repo.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, task.ID, claimed.ID)
	assert.Equal(t, 1, claimed.Attempts)

	again, err := repo.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	assert.Nil(t, again, "a running task is not handed out twice")

	retry, err := repo.Fail(ctx, claimed, errors.New("venue unavailable"), 0)
	require.NoError(t, err)
	assert.True(t, retry)

	claimed, err = repo.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.Attempts)

	retry, err = repo.Fail(ctx, claimed, errors.New("venue unavailable"), 0)
	require.NoError(t, err)
	assert.False(t, retry)

	var stored model.Task
	require.NoError(t, db.First(&stored, task.ID).Error)
	assert.Equal(t, model.TaskStatusFailed, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, "venue unavailable", *stored.LastError)
	assert.Empty(t, stored.LockedBy)
}

func TestTaskClaimNextRespectsAvailableAt(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := &TaskRepository{db: db, now: fixedClock(now)}

	task, err := NewTask(model.TaskKindMirrorSignal, model.MirrorSignalPayload{SignalID: 1}, 1)
	require.NoError(t, err)
	task.AvailableAt = now.Add(time.Minute)
	require.NoError(t, repo.Enqueue(ctx, task))

	claimed, err := repo.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, claimed)

	repo.now = fixedClock(now.Add(2 * time.Minute))
	claimed, err = repo.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, repo.Complete(ctx, claimed))
	var stored model.Task
	require.NoError(t, db.First(&stored, task.ID).Error)
	assert.Equal(t, model.TaskStatusDone, stored.Status)
}

func TestTaskRequeueStale(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := &TaskRepository{db: db, now: fixedClock(now)}

	task, err := NewTask(model.TaskKindMirrorSignal, model.MirrorSignalPayload{SignalID: 1}, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, task))
	_, err = repo.ClaimNext(ctx, "dead-worker")
	require.NoError(t, err)

	n, err := repo.RequeueStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n, "fresh locks are kept")

	repo.now = fixedClock(now.Add(5 * time.Minute))
	n, err = repo.RequeueStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	claimed, err := repo.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, "w2", claimed.LockedBy)
}

func TestTaskStaleWorkerCannotOverwriteReclaimedTask(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := &TaskRepository{db: db, now: fixedClock(now)}

	task, err := NewTask(model.TaskKindExecuteAccount, model.ExecuteAccountPayload{AccountID: 2, SignalID: 5}, 3)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, task))

	slow, err := repo.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, slow)

	repo.now = fixedClock(now.Add(5 * time.Minute))
	n, err := repo.RequeueStale(ctx, time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	current, err := repo.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.NotNil(t, current)

	// w1 wakes up after w2 took over; neither result may land
	_, err = repo.Fail(ctx, slow, errors.New("timeout"), 0)
	assert.ErrorIs(t, err, ErrTaskLockLost)
	assert.ErrorIs(t, repo.Complete(ctx, slow), ErrTaskLockLost)

	var stored model.Task
	require.NoError(t, db.First(&stored, task.ID).Error)
	assert.Equal(t, model.TaskStatusRunning, stored.Status)
	assert.Equal(t, "w2", stored.LockedBy)
	assert.Nil(t, stored.LastError)

	require.NoError(t, repo.Complete(ctx, current))
	require.NoError(t, db.First(&stored, task.ID).Error)
	assert.Equal(t, model.TaskStatusDone, stored.Status)
}

func TestTaskHasOpen(t *testing.T) {
	db := newSQLiteDB(t)
	ctx := context.Background()
	repo := &TaskRepository{db: db, now: time.Now}
	payload := model.MirrorSignalPayload{SignalID: 42}

	open, err := repo.HasOpen(ctx, model.TaskKindMirrorSignal, payload)
	require.NoError(t, err)
	assert.False(t, open)

	task, err := NewTask(model.TaskKindMirrorSignal, payload, 1)
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(ctx, task))

	open, err = repo.HasOpen(ctx, model.TaskKindMirrorSignal, payload)
	require.NoError(t, err)
	assert.True(t, open)

	claimed, err := repo.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, claimed)
	open, err = repo.HasOpen(ctx, model.TaskKindMirrorSignal, payload)
	require.NoError(t, err)
	assert.True(t, open, "a running task is still open")

	require.NoError(t, repo.Complete(ctx, claimed))
	open, err = repo.HasOpen(ctx, model.TaskKindMirrorSignal, payload)
	require.NoError(t, err)
	assert.False(t, open)
}
