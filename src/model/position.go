package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PositionStatusActive = "active"
	PositionStatusClosed = "closed"
)

// Position is the current position of an account on a symbol.
// Version is bumped on every write and guards concurrent engine runs.
type Position struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	StrategyID uint            `gorm:"index" json:"strategy_id"`
	AccountID  uint            `gorm:"not null;uniqueIndex:idx_position_account_symbol" json:"account_id"`
	Symbol     string          `gorm:"size:50;not null;uniqueIndex:idx_position_account_symbol" json:"symbol"`
	Side       string          `gorm:"size:10;not null" json:"side"`
	Quantity   decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"quantity"`
	EntryPrice decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"entry_price"`
	Leverage   int             `gorm:"not null;default:1" json:"leverage"`
	Status     string          `gorm:"size:20;not null;default:active" json:"status"`
	Version    int             `gorm:"not null;default:0" json:"version"`
	OpenedAt   *time.Time      `json:"opened_at,omitempty"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}
