package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// TradeLogRepository persists the audit trail of venue calls.
type TradeLogRepository struct {
	db *gorm.DB
}

// NewTradeLogRepository creates a new repository instance using the main database.
func NewTradeLogRepository() *TradeLogRepository {
	return &TradeLogRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *TradeLogRepository) WithDB(db *gorm.DB) *TradeLogRepository {
	return &TradeLogRepository{db: db}
}

// Create inserts a trade log row.
func (r *TradeLogRepository) Create(ctx context.Context, entry *model.TradeLog) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "TradeLogRepository",
			"op":         "Create",
			"account_id": entry.AccountID,
			"endpoint":   entry.Endpoint,
		}).WithError(err).Error("Failed to create trade log")
		return err
	}
	return nil
}

// FindBySignal lists the trade logs written for a signal, oldest first.
func (r *TradeLogRepository) FindBySignal(ctx context.Context, signalID uint) ([]model.TradeLog, error) {
	var logs []model.TradeLog
	err := r.db.WithContext(ctx).
		Where("signal_id = ?", signalID).
		Order("id ASC").
		Find(&logs).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "TradeLogRepository",
			"op":        "FindBySignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to fetch trade logs")
		return nil, err
	}
	return logs, nil
}
