package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// MirrorStatusRepository owns the signal_mirror_statuses claim table.
type MirrorStatusRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMirrorStatusRepository creates a new repository instance using the main database.
func NewMirrorStatusRepository() *MirrorStatusRepository {
	return &MirrorStatusRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *MirrorStatusRepository) WithDB(db *gorm.DB) *MirrorStatusRepository {
	return &MirrorStatusRepository{db: db, now: time.Now}
}

// Claim takes ownership of a signal. It returns the processing token, or nil
// when another worker already owns the signal or the signal does not exist.
//
// Within one transaction it checks for an existing token, locks the signal row
// with SELECT ... FOR UPDATE, checks again and inserts the token. A token left
// in the failed state is re-claimed in place so that queue retries of a failed
// fan-out go through.
func (r *MirrorStatusRepository) Claim(ctx context.Context, signalID uint) (*model.MirrorStatus, error) {
	fields := map[string]interface{}{
		"repo":      "MirrorStatusRepository",
		"op":        "Claim",
		"signal_id": signalID,
	}
	logger.WithFields(fields).Debug("Claiming signal")

	var token *model.MirrorStatus

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findStatus(tx, signalID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status != model.MirrorStatusFailed {
			return nil
		}

		var signal model.Signal
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "strategy_id").
			First(&signal, signalID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				logger.WithFields(fields).Warn("Signal not found, nothing to claim")
				return nil
			}
			return err
		}

		// A concurrent claimer may have committed while we waited for the lock.
		existing, err = findStatus(tx, signalID)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.Status != model.MirrorStatusFailed {
				return nil
			}
			existing.Status = model.MirrorStatusProcessing
			existing.Attempts++
			existing.ProcessedAt = nil
			if err := tx.Model(existing).
				Select("status", "attempts", "processed_at").
				Updates(existing).Error; err != nil {
				return err
			}
			token = existing
			return nil
		}

		status := &model.MirrorStatus{
			SignalID:   signal.ID,
			StrategyID: signal.StrategyID,
			Status:     model.MirrorStatusProcessing,
			Attempts:   1,
		}
		if err := tx.Create(status).Error; err != nil {
			return err
		}
		token = status
		return nil
	})

	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			logger.WithFields(fields).Info("Signal claimed concurrently by another worker")
			return nil, nil
		}
		logger.WithFields(fields).WithError(err).Error("Failed to claim signal")
		return nil, err
	}

	if token == nil {
		logger.WithFields(fields).Info("Signal already owned, skipping")
		return nil, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "MirrorStatusRepository",
		"op":        "Claim",
		"signal_id": signalID,
		"attempts":  token.Attempts,
	}).Info("Signal claimed")

	return token, nil
}

func findStatus(tx *gorm.DB, signalID uint) (*model.MirrorStatus, error) {
	var status model.MirrorStatus
	err := tx.Where("signal_id = ?", signalID).Limit(1).Find(&status).Error
	if err != nil {
		return nil, err
	}
	if status.ID == 0 {
		return nil, nil
	}
	return &status, nil
}

// FindBySignalID returns (nil, nil) when the signal has no token.
func (r *MirrorStatusRepository) FindBySignalID(ctx context.Context, signalID uint) (*model.MirrorStatus, error) {
	return findStatus(r.db.WithContext(ctx), signalID)
}

// MarkCompletedTx moves the token to completed and stamps processed_at inside
// the caller's transaction, so it commits together with the fan-out tasks.
func (r *MirrorStatusRepository) MarkCompletedTx(tx *gorm.DB, id uint) error {
	now := r.now()
	return updateStatus(tx, id, map[string]interface{}{
		"status":       model.MirrorStatusCompleted,
		"processed_at": &now,
	})
}

// MarkFailed moves the token to failed.
func (r *MirrorStatusRepository) MarkFailed(ctx context.Context, id uint) error {
	return updateStatus(r.db.WithContext(ctx), id, map[string]interface{}{
		"status": model.MirrorStatusFailed,
	})
}

func updateStatus(db *gorm.DB, id uint, updates map[string]interface{}) error {
	fields := map[string]interface{}{
		"repo":   "MirrorStatusRepository",
		"op":     "updateStatus",
		"id":     id,
		"status": updates["status"],
	}

	res := db.Model(&model.MirrorStatus{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to update mirror status")
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithFields(fields).Error("Mirror status not found")
		return fmt.Errorf("mirror status %d: %w", id, gorm.ErrRecordNotFound)
	}

	logger.WithFields(fields).Info("Mirror status updated")
	return nil
}
