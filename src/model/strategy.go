package model

import "time"

// Strategy is the master method whose signals get mirrored.
type Strategy struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"size:255;not null" json:"name"`
	Pair       string    `gorm:"size:50" json:"pair"`     // BTC/USDT, ETH-USDT, ...
	Exchange   string    `gorm:"size:50" json:"exchange"` // empty means binance
	MarketType string    `gorm:"size:20" json:"market_type"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (Strategy) TableName() string {
	return "strategies"
}

// StrategyAccount links a follower account to a strategy.
// Only active links take part in the fan-out.
type StrategyAccount struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StrategyID uint      `gorm:"not null;uniqueIndex:idx_strategy_account" json:"strategy_id"`
	AccountID  uint      `gorm:"not null;uniqueIndex:idx_strategy_account;index" json:"account_id"`
	IsActive   bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (StrategyAccount) TableName() string {
	return "strategy_accounts"
}
