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

// ErrPositionConflict is returned when the position changed between the read
// at the start of an engine run and the write at its end.
var ErrPositionConflict = errors.New("position modified concurrently")

// PositionRepository is the position side of the ledger.
type PositionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPositionRepository creates a new repository instance using the main database.
func NewPositionRepository() *PositionRepository {
	return &PositionRepository{db: database.MainDB, now: time.Now}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *PositionRepository) WithDB(db *gorm.DB) *PositionRepository {
	return &PositionRepository{db: db, now: time.Now}
}

// FindByAccountSymbol returns the position row whatever its status, or (nil, nil).
func (r *PositionRepository) FindByAccountSymbol(ctx context.Context, accountID uint, symbol string) (*model.Position, error) {
	var pos model.Position
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ?", accountID, symbol).
		Limit(1).
		Find(&pos).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":       "PositionRepository",
			"op":         "FindByAccountSymbol",
			"account_id": accountID,
			"symbol":     symbol,
		}).WithError(err).Error("Failed to fetch position")
		return nil, err
	}
	if pos.ID == 0 {
		return nil, nil
	}
	return &pos, nil
}

// Upsert creates or replaces the position of (account, symbol) as active.
// prev is the row read before the venue call (nil if none existed); the write
// only happens if the stored version still matches it.
func (r *PositionRepository) Upsert(ctx context.Context, pos *model.Position, prev *model.Position) error {
	now := r.now()
	pos.Status = model.PositionStatusActive
	pos.OpenedAt = &now
	pos.ClosedAt = nil

	fields := map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "Upsert",
		"account_id": pos.AccountID,
		"symbol":     pos.Symbol,
	}

	var res *gorm.DB
	if prev == nil {
		pos.Version = 1
		res = r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "account_id"}, {Name: "symbol"}},
				DoNothing: true,
			}).
			Create(pos)
	} else {
		pos.ID = prev.ID
		pos.Version = prev.Version + 1
		res = r.db.WithContext(ctx).
			Model(&model.Position{}).
			Where("account_id = ? AND symbol = ? AND version = ?", pos.AccountID, pos.Symbol, prev.Version).
			Updates(map[string]interface{}{
				"strategy_id": pos.StrategyID,
				"side":        pos.Side,
				"quantity":    pos.Quantity,
				"entry_price": pos.EntryPrice,
				"leverage":    pos.Leverage,
				"status":      model.PositionStatusActive,
				"version":     pos.Version,
				"opened_at":   pos.OpenedAt,
				"closed_at":   nil,
			})
	}

	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to upsert position")
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithFields(fields).Warn("Position changed concurrently, upsert skipped")
		return ErrPositionConflict
	}

	logger.WithFields(fields).Info("Position upserted")
	return nil
}

// Close flips the position of (account, symbol) to closed. A nil prev means
// no position existed and there is nothing to close.
func (r *PositionRepository) Close(ctx context.Context, accountID uint, symbol string, prev *model.Position) error {
	if prev == nil {
		return nil
	}

	now := r.now()
	fields := map[string]interface{}{
		"repo":       "PositionRepository",
		"op":         "Close",
		"account_id": accountID,
		"symbol":     symbol,
	}

	res := r.db.WithContext(ctx).
		Model(&model.Position{}).
		Where("account_id = ? AND symbol = ? AND version = ?", accountID, symbol, prev.Version).
		Updates(map[string]interface{}{
			"status":    model.PositionStatusClosed,
			"closed_at": &now,
			"version":   prev.Version + 1,
		})

	if res.Error != nil {
		logger.WithFields(fields).WithError(res.Error).Error("Failed to close position")
		return res.Error
	}
	if res.RowsAffected == 0 {
		logger.WithFields(fields).Warn("Position changed concurrently, close skipped")
		return ErrPositionConflict
	}

	logger.WithFields(fields).Info("Position closed")
	return nil
}

// PositionSearchOptions filters Search.
type PositionSearchOptions struct {
	AccountID *uint
	Status    *string
	Limit     int
	Offset    int
}

// Search lists positions most recently updated first.
func (r *PositionRepository) Search(ctx context.Context, options PositionSearchOptions) ([]model.Position, error) {
	query := r.db.WithContext(ctx).Model(&model.Position{})
	if options.AccountID != nil {
		query = query.Where("account_id = ?", *options.AccountID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", *options.Status)
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}
	if options.Offset > 0 {
		query = query.Offset(options.Offset)
	}

	var positions []model.Position
	if err := query.Order("updated_at DESC, id DESC").Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}
