package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExternalRedemption is a verified token burn reported by the burn feed.
// TxHash is the idempotency key: a burn is credited at most once.
type ExternalRedemption struct {
	ID            string          `gorm:"primaryKey;type:uuid;not null" json:"id"`
	TxHash        string          `gorm:"type:varchar(128);not null;uniqueIndex" json:"tx_hash"`
	PlayerID      string          `gorm:"type:varchar(128);index" json:"player_id,omitempty"`
	WalletAddress string          `gorm:"type:varchar(128);index" json:"wallet_address"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	BurnedAt      time.Time       `json:"burned_at"`

	Credited   bool       `gorm:"not null;index" json:"credited"`
	CreditedAt *time.Time `json:"credited_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}
