package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"signalmirror/src/database"
	"signalmirror/src/model"
)

// StrategyRepository resolves strategies and their subscribed accounts.
type StrategyRepository struct {
	db *gorm.DB
}

// NewStrategyRepository creates a new repository instance using the main database.
func NewStrategyRepository() *StrategyRepository {
	return &StrategyRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *StrategyRepository) WithDB(db *gorm.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

// FindByID returns (nil, nil) if the strategy is not found.
func (r *StrategyRepository) FindByID(ctx context.Context, id uint) (*model.Strategy, error) {
	var strategy model.Strategy
	err := r.db.WithContext(ctx).First(&strategy, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "StrategyRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch strategy")
		return nil, err
	}
	return &strategy, nil
}

// FindActiveAccounts returns the active accounts linked to the strategy through
// an active strategy_accounts row.
func (r *StrategyRepository) FindActiveAccounts(
	ctx context.Context,
	strategyID uint,
) ([]model.TradingAccount, error) {

	logger.WithFields(map[string]interface{}{
		"repo":        "StrategyRepository",
		"op":          "FindActiveAccounts",
		"strategy_id": strategyID,
	}).Debug("Fetching active accounts for strategy")

	var accounts []model.TradingAccount
	err := r.db.WithContext(ctx).
		Joins("JOIN strategy_accounts ON strategy_accounts.account_id = trading_accounts.id").
		Where("strategy_accounts.strategy_id = ? AND strategy_accounts.is_active = ?", strategyID, true).
		Where("trading_accounts.is_active = ?", true).
		Order("trading_accounts.id ASC").
		Find(&accounts).Error

	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":        "StrategyRepository",
			"op":          "FindActiveAccounts",
			"strategy_id": strategyID,
		}).WithError(err).Error("Failed to fetch active accounts")
		return nil, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":        "StrategyRepository",
		"op":          "FindActiveAccounts",
		"strategy_id": strategyID,
		"rows_return": len(accounts),
	}).Info("Active accounts fetched")

	return accounts, nil
}

// AccountRepository reads trading accounts.
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new repository instance using the main database.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance.
func (r *AccountRepository) WithDB(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByID returns (nil, nil) if the account is not found.
func (r *AccountRepository) FindByID(ctx context.Context, id uint) (*model.TradingAccount, error) {
	var account model.TradingAccount
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "AccountRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch trading account")
		return nil, err
	}
	return &account, nil
}
