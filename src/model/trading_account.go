package model

import "time"

// TradingAccount holds the venue credentials of a follower.
// APIKey and SecretKey are stored encrypted (see security.EncryptString).
type TradingAccount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AccountName string    `gorm:"size:255" json:"account_name"`
	Exchange    string    `gorm:"size:50" json:"exchange"`
	APIKey      string    `gorm:"column:api_key;type:text" json:"-"`
	SecretKey   string    `gorm:"column:secret_key;type:text" json:"-"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (TradingAccount) TableName() string {
	return "trading_accounts"
}
