package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// SignalRepository reads strategy signals. Signals are owned by the upstream
// strategy engine and are never written here.
type SignalRepository struct {
	db *gorm.DB
}

// NewSignalRepository creates a new repository instance using the main database.
func NewSignalRepository() *SignalRepository {
	return &SignalRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *SignalRepository) WithDB(db *gorm.DB) *SignalRepository {
	return &SignalRepository{db: db}
}

// FindByID fetches a signal with its strategy preloaded.
// Returns (nil, nil) if the signal is not found.
func (r *SignalRepository) FindByID(ctx context.Context, id uint) (*model.Signal, error) {
	logger.WithFields(map[string]interface{}{
		"repo": "SignalRepository",
		"op":   "FindByID",
		"id":   id,
	}).Debug("Fetching signal by ID")

	var signal model.Signal
	err := r.db.WithContext(ctx).
		Preload("Strategy").
		First(&signal, id).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.WithFields(map[string]interface{}{
				"repo": "SignalRepository",
				"op":   "FindByID",
				"id":   id,
			}).Info("Signal not found")
			return nil, nil
		}

		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch signal by ID")
		return nil, err
	}

	return &signal, nil
}

// FindUnclaimedSince returns signals created after since that have no mirror
// status row yet, oldest first.
func (r *SignalRepository) FindUnclaimedSince(
	ctx context.Context,
	since time.Time,
	limit int,
) ([]model.Signal, error) {

	if limit <= 0 {
		limit = 10
	}

	logger.WithFields(map[string]interface{}{
		"repo":  "SignalRepository",
		"op":    "FindUnclaimedSince",
		"since": since,
		"limit": limit,
	}).Debug("Fetching unclaimed signals")

	var signals []model.Signal
	err := r.db.WithContext(ctx).
		Where("NOT EXISTS (SELECT 1 FROM signal_mirror_statuses ms WHERE ms.signal_id = signals.id)").
		Where("signals.created_at > ?", since).
		Order("signals.id ASC").
		Limit(limit).
		Find(&signals).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "SignalRepository",
			"op":   "FindUnclaimedSince",
		}).WithError(err).Error("Failed to fetch unclaimed signals")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "SignalRepository",
		"op":          "FindUnclaimedSince",
		"rows_return": len(signals),
	}).Debug("Unclaimed signals fetched")

	return signals, nil
}
