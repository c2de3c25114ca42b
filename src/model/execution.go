package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Execution statuses. Retrying is part of the schema but the engine never
// produces it.
const (
	ExecutionStatusPending  = "pending"
	ExecutionStatusSuccess  = "success"
	ExecutionStatusFailed   = "failed"
	ExecutionStatusRetrying = "retrying"
)

const (
	ExecutionTypeEntry = "entry"
	ExecutionTypeExit  = "exit"

	SideLong  = "long"
	SideShort = "short"
)

// Protection statuses describe the stop-loss / take-profit orders attached to
// a successful futures entry.
const (
	ProtectionNone    = "none"
	ProtectionPlaced  = "placed"
	ProtectionPartial = "partial"
	ProtectionFailed  = "failed"
)

// ErrorMessageMaxLen bounds Execution.ErrorMessage.
const ErrorMessageMaxLen = 255

// Execution is one attempt to mirror a signal onto one account.
type Execution struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	SignalID         uint            `gorm:"not null;uniqueIndex:idx_execution_signal_account" json:"signal_id"`
	StrategyID       uint            `gorm:"index" json:"strategy_id"`
	AccountID        uint            `gorm:"not null;uniqueIndex:idx_execution_signal_account;index" json:"account_id"`
	Symbol           string          `gorm:"size:50;not null" json:"symbol"`
	Side             string          `gorm:"size:10;not null" json:"side"`
	Type             string          `gorm:"size:10;not null" json:"type"`
	MarketType       string          `gorm:"size:20;not null;default:futures" json:"market_type"`
	MasterQuantity   decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"master_quantity"`
	FollowerQuantity decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"follower_quantity"`
	Leverage         int             `gorm:"not null;default:1" json:"leverage"`
	ExecutedPrice    decimal.Decimal `gorm:"type:numeric(24,8);not null;default:0" json:"executed_price"`
	Status           string          `gorm:"size:20;not null;default:pending;index" json:"status"`
	ErrorMessage     *string         `gorm:"size:255" json:"error_message,omitempty"`
	ProtectionStatus string          `gorm:"size:20;not null;default:none" json:"protection_status"`
	ProtectionError  *string         `gorm:"size:255" json:"protection_error,omitempty"`
	ExecutedAt       *time.Time      `json:"executed_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (Execution) TableName() string {
	return "executions"
}

// IsTerminal reports whether the execution reached success or failed.
func (e *Execution) IsTerminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}
