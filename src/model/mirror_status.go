package model

import "time"

const (
	MirrorStatusProcessing = "processing"
	MirrorStatusCompleted  = "completed"
	MirrorStatusFailed     = "failed"
)

// MirrorStatus is the exactly-once token of a signal: at most one row per signal.
type MirrorStatus struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SignalID    uint       `gorm:"not null;uniqueIndex" json:"signal_id"`
	StrategyID  uint       `gorm:"index" json:"strategy_id"`
	Status      string     `gorm:"size:20;not null;default:processing" json:"status"`
	Attempts    int        `gorm:"not null;default:1" json:"attempts"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (MirrorStatus) TableName() string {
	return "signal_mirror_statuses"
}
