package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// TaskRepository is a durable work queue on top of the tasks table.
// Claims use SELECT ... FOR UPDATE SKIP LOCKED so concurrent workers never
// pick the same task.
type TaskRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskRepository creates a new repository instance using the main database.
func NewTaskRepository() *TaskRepository {
	return &TaskRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance, e.g. to enqueue
// inside a caller's transaction.
func (r *TaskRepository) WithDB(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db, now: r.nowFunc()}
}

func (r *TaskRepository) nowFunc() func() time.Time {
	if r == nil || r.now == nil {
		return time.Now
	}
	return r.now
}

// NewTask builds a queued task with a JSON payload.
func NewTask(kind string, payload interface{}, maxAttempts int) (*model.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &model.Task{
		Kind:        kind,
		Payload:     string(raw),
		Status:      model.TaskStatusQueued,
		MaxAttempts: maxAttempts,
	}, nil
}

// Enqueue inserts the task, available immediately unless AvailableAt is set.
func (r *TaskRepository) Enqueue(ctx context.Context, task *model.Task) error {
	if task.AvailableAt.IsZero() {
		task.AvailableAt = r.now()
	}
	if task.Status == "" {
		task.Status = model.TaskStatusQueued
	}

	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TaskRepository",
			"op":   "Enqueue",
			"kind": task.Kind,
		}).WithError(err).Error("Failed to enqueue task")
		return err
	}

	logger.WithFields(map[string]interface{}{
		"repo":    "TaskRepository",
		"op":      "Enqueue",
		"kind":    task.Kind,
		"task_id": task.ID,
		"payload": task.Payload,
	}).Debug("Task enqueued")

	return nil
}

// ClaimNext moves the oldest available queued task to running and returns it.
// Returns (nil, nil) when the queue is empty.
func (r *TaskRepository) ClaimNext(ctx context.Context, workerID string) (*model.Task, error) {
	var claimed *model.Task

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := r.now()

		var task model.Task
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND available_at <= ?", model.TaskStatusQueued, now).
			Order("available_at ASC, id ASC").
			Limit(1).
			Find(&task).Error
		if err != nil {
			return err
		}
		if task.ID == 0 {
			return nil
		}

		task.Status = model.TaskStatusRunning
		task.Attempts++
		task.LockedBy = workerID
		task.LockedAt = &now

		if err := tx.Model(&model.Task{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":    task.Status,
				"attempts":  task.Attempts,
				"locked_by": task.LockedBy,
				"locked_at": task.LockedAt,
			}).Error; err != nil {
			return err
		}

		claimed = &task
		return nil
	})

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "TaskRepository",
			"op":     "ClaimNext",
			"worker": workerID,
		}).WithError(err).Error("Failed to claim task")
		return nil, err
	}

	return claimed, nil
}

// ErrTaskLockLost is returned when the task is no longer running under the
// caller's lock, typically after RequeueStale handed it to another worker.
var ErrTaskLockLost = errors.New("task lock lost")

// owned scopes an update to the task as claimed by the caller.
func (r *TaskRepository) owned(ctx context.Context, task *model.Task) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("id = ? AND status = ? AND locked_by = ?", task.ID, model.TaskStatusRunning, task.LockedBy)
}

// Complete marks a running task as done.
func (r *TaskRepository) Complete(ctx context.Context, task *model.Task) error {
	res := r.owned(ctx, task).Updates(map[string]interface{}{
		"status":    model.TaskStatusDone,
		"locked_by": "",
		"locked_at": nil,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("complete task %d: %w", task.ID, ErrTaskLockLost)
	}
	return nil
}

// Fail records the error of a running task. The task is re-queued after
// retryIn unless it used up its attempts, in which case it ends failed.
// It reports whether the task will be retried.
func (r *TaskRepository) Fail(ctx context.Context, task *model.Task, cause error, retryIn time.Duration) (bool, error) {
	msg := cause.Error()
	retry := task.Attempts < task.MaxAttempts

	updates := map[string]interface{}{
		"last_error": &msg,
		"locked_by":  "",
		"locked_at":  nil,
	}
	if retry {
		updates["status"] = model.TaskStatusQueued
		updates["available_at"] = r.now().Add(retryIn)
	} else {
		updates["status"] = model.TaskStatusFailed
	}

	res := r.owned(ctx, task).Updates(updates)

	fields := map[string]interface{}{
		"repo":     "TaskRepository",
		"op":       "Fail",
		"task_id":  task.ID,
		"kind":     task.Kind,
		"attempts": task.Attempts,
		"retry":    retry,
	}
	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to record task failure")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, fmt.Errorf("fail task %d: %w", task.ID, ErrTaskLockLost)
	}
	logger.WithFields(fields).WithError(cause).Warn("Task failed")

	return retry, nil
}

// RequeueStale returns running tasks locked for longer than timeout to the
// queue. Those belong to workers that died mid-task.
func (r *TaskRepository) RequeueStale(ctx context.Context, timeout time.Duration) (int64, error) {
	cutoff := r.now().Add(-timeout)
	res := r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("status = ? AND locked_at < ?", model.TaskStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":    model.TaskStatusQueued,
			"locked_by": "",
			"locked_at": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		logger.WithFields(map[string]interface{}{
			"repo":     "TaskRepository",
			"op":       "RequeueStale",
			"requeued": res.RowsAffected,
		}).Warn("Stale tasks returned to queue")
	}
	return res.RowsAffected, nil
}

// HasOpen reports whether a queued or running task with this kind and payload exists.
func (r *TaskRepository) HasOpen(ctx context.Context, kind string, payload interface{}) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, err
	}

	var count int64
	err = r.db.WithContext(ctx).
		Model(&model.Task{}).
		Where("kind = ? AND payload = ? AND status IN ?", kind, string(raw),
			[]string{model.TaskStatusQueued, model.TaskStatusRunning}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// EnqueueTx inserts the task inside the caller's transaction.
func (r *TaskRepository) EnqueueTx(tx *gorm.DB, task *model.Task) error {
	return r.WithDB(tx).Enqueue(tx.Statement.Context, task)
}
