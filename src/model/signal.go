package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MarketTypeFutures = "futures"
	MarketTypeSpot    = "spot"
)

// Signal is a strategy event published by the upstream strategy engine.
// The pipeline never writes to this table.
type Signal struct {
	ID         uint                `gorm:"primaryKey" json:"id"`
	StrategyID uint                `gorm:"not null;index" json:"strategy_id"`
	Datetime   *time.Time          `json:"datetime,omitempty"`
	Direction  string              `gorm:"size:50;not null" json:"direction"` // entry_long, exit-short, ...
	PriceEntry decimal.NullDecimal `gorm:"type:numeric(24,8)" json:"price_entry"`
	PriceExit  decimal.NullDecimal `gorm:"type:numeric(24,8)" json:"price_exit"`
	TargetTP   decimal.NullDecimal `gorm:"column:target_tp;type:numeric(24,8)" json:"target_tp"`
	TargetSL   decimal.NullDecimal `gorm:"column:target_sl;type:numeric(24,8)" json:"target_sl"`
	Quantity   decimal.NullDecimal `gorm:"type:numeric(24,8)" json:"quantity"`
	Ratio      decimal.NullDecimal `gorm:"type:numeric(12,6)" json:"ratio"`
	Leverage   *int                `json:"leverage,omitempty"`
	MarketType string              `gorm:"size:20" json:"market_type"`
	Message    string              `gorm:"type:text" json:"message,omitempty"`
	CreatedAt  time.Time           `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`

	Strategy *Strategy `gorm:"foreignKey:StrategyID" json:"strategy,omitempty"`
}

func (Signal) TableName() string {
	return "signals"
}
