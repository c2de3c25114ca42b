package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// ErrExecutionTerminal is returned when an update targets an execution that
// already left the pending state.
var ErrExecutionTerminal = errors.New("execution already terminal")

// ExecutionRepository is the execution side of the ledger.
type ExecutionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository creates a new repository instance using the main database.
func NewExecutionRepository() *ExecutionRepository {
	return &ExecutionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *ExecutionRepository) WithDB(db *gorm.DB) *ExecutionRepository {
	return &ExecutionRepository{db: db}
}

// CreatePending inserts the execution in pending state. It reports false
// without error when an execution for the same (signal, account) already exists.
func (r *ExecutionRepository) CreatePending(ctx context.Context, exec *model.Execution) (bool, error) {
	exec.Status = model.ExecutionStatusPending
	if exec.ProtectionStatus == "" {
		exec.ProtectionStatus = model.ProtectionNone
	}

	fields := map[string]interface{}{
		"repo":       "ExecutionRepository",
		"op":         "CreatePending",
		"signal_id":  exec.SignalID,
		"account_id": exec.AccountID,
		"symbol":     exec.Symbol,
	}
	logger.WithFields(fields).Debug("Creating pending execution")

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "signal_id"}, {Name: "account_id"}},
			DoNothing: true,
		}).
		Create(exec)

	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to create pending execution")
		return false, res.Error
	}

	if res.RowsAffected == 0 {
		logger.WithFields(fields).Warn("Execution already exists for signal and account")
		return false, nil
	}

	logger.WithFields(map[string]interface{}{
		"repo":         "ExecutionRepository",
		"op":           "CreatePending",
		"execution_id": exec.ID,
	}).Info("Pending execution created")

	return true, nil
}

// Update applies fields to a pending execution. Terminal executions are never
// touched again and yield ErrExecutionTerminal.
func (r *ExecutionRepository) Update(ctx context.Context, id uint, updates map[string]interface{}) error {
	fields := map[string]interface{}{
		"repo":   "ExecutionRepository",
		"op":     "Update",
		"id":     id,
		"status": updates["status"],
	}

	res := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("id = ? AND status = ?", id, model.ExecutionStatusPending).
		Updates(updates)

	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to update execution")
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithFields(fields).Warn("Execution is not pending, update skipped")
		return ErrExecutionTerminal
	}

	logger.WithFields(fields).Info("Execution updated")
	return nil
}

// AccountIDsForSignal lists the accounts that already have an execution for the signal.
func (r *ExecutionRepository) AccountIDsForSignal(ctx context.Context, signalID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&model.Execution{}).
		Where("signal_id = ?", signalID).
		Pluck("account_id", &ids).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":      "ExecutionRepository",
			"op":        "AccountIDsForSignal",
			"signal_id": signalID,
		}).WithError(err).Error("Failed to list executed accounts")
		return nil, err
	}
	return ids, nil
}

// FindByID returns (nil, nil) if the execution is not found.
func (r *ExecutionRepository) FindByID(ctx context.Context, id uint) (*model.Execution, error) {
	var exec model.Execution
	err := r.db.WithContext(ctx).First(&exec, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &exec, nil
}

// ExecutionSearchOptions filters Search.
type ExecutionSearchOptions struct {
	SignalID      *uint
	AccountID     *uint
	Status        *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
	Limit         int
	Offset        int
}

// Search lists executions newest first.
func (r *ExecutionRepository) Search(ctx context.Context, options ExecutionSearchOptions) ([]model.Execution, error) {
	query := r.db.WithContext(ctx).Model(&model.Execution{})

	if options.SignalID != nil {
		query = query.Where("signal_id = ?", *options.SignalID)
	}
	if options.AccountID != nil {
		query = query.Where("account_id = ?", *options.AccountID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.CreatedAfter != nil {
		query = query.Where("created_at >= ?", *options.CreatedAfter)
	}
	if options.CreatedBefore != nil {
		query = query.Where("created_at <= ?", *options.CreatedBefore)
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var executions []model.Execution
	if err := query.Order("created_at DESC, id DESC").Find(&executions).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "ExecutionRepository",
			"op":   "Search",
		}).WithError(err).Error("Failed to search executions")
		return nil, err
	}

	return executions, nil
}
