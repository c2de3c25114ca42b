package model

import "time"

// TradeLog is the audit row written for every signed venue call.
type TradeLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SignalID      *uint     `gorm:"index" json:"signal_id,omitempty"`
	AccountID     uint      `gorm:"index" json:"account_id"`
	Exchange      string    `gorm:"size:50" json:"exchange"`
	Symbol        string    `gorm:"size:50" json:"symbol"`
	Endpoint      string    `gorm:"size:255" json:"endpoint"`
	Payload       string    `gorm:"type:text" json:"payload"`
	Response      string    `gorm:"type:text" json:"response"`
	StatusCode    int       `json:"status_code"`
	ClientOrderID string    `gorm:"size:100" json:"client_order_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (TradeLog) TableName() string {
	return "trade_logs"
}
