package model

import "time"

const (
	TaskKindMirrorSignal   = "mirror_signal"
	TaskKindExecuteAccount = "execute_account"
)

const (
	TaskStatusQueued  = "queued"
	TaskStatusRunning = "running"
	TaskStatusDone    = "done"
	TaskStatusFailed  = "failed"
)

// Task is a unit of asynchronous work in the durable queue.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Kind        string     `gorm:"size:50;not null;index:idx_task_pick,priority:2" json:"kind"`
	Payload     string     `gorm:"type:text;not null" json:"payload"`
	Status      string     `gorm:"size:20;not null;default:queued;index:idx_task_pick,priority:1" json:"status"`
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int        `gorm:"not null;default:1" json:"max_attempts"`
	LastError   *string    `gorm:"type:text" json:"last_error,omitempty"`
	AvailableAt time.Time  `gorm:"not null;index" json:"available_at"`
	LockedBy    string     `gorm:"size:100" json:"locked_by,omitempty"`
	LockedAt    *time.Time `json:"locked_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Task) TableName() string {
	return "tasks"
}

// MirrorSignalPayload triggers the intake guard for a signal.
type MirrorSignalPayload struct {
	SignalID uint `json:"signal_id"`
}

// ExecuteAccountPayload triggers one execution engine run.
type ExecuteAccountPayload struct {
	AccountID  uint `json:"account_id"`
	SignalID   uint `json:"signal_id"`
	StrategyID uint `json:"strategy_id"`
}
