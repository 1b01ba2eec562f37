package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AssetType names a consumable a player can buy and later burn as a boost.
type AssetType string

const (
	AssetShowAvailableMoves AssetType = "showAvailableMoves"
	AssetAIAssistant        AssetType = "aiAssistant"
)

// AssetTypes lists every asset kind a fresh record starts with (count 0).
var AssetTypes = []AssetType{AssetShowAvailableMoves, AssetAIAssistant}

func (a AssetType) Valid() bool {
	for _, t := range AssetTypes {
		if t == a {
			return true
		}
	}
	return false
}

// Boost is an activated asset. It is inactive once ExpiresAt <= now even if still stored.
type Boost struct {
	ExpiresAt time.Time `json:"expires_at"`
}

// Assets maps asset kind to owned count. Stored as a JSON column.
type Assets map[AssetType]int

// ActiveBoosts maps boost kind to its expiry. Stored as a JSON column.
type ActiveBoosts map[AssetType]Boost

func (a Assets) Value() (driver.Value, error) { return jsonValue(a) }

func (a *Assets) Scan(src any) error { return scanJSON(src, a) }

func (b ActiveBoosts) Value() (driver.Value, error) { return jsonValue(b) }

func (b *ActiveBoosts) Scan(src any) error { return scanJSON(src, b) }

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}

// PlayerRecord is the per-player economic state, one row per player in the users collection.
type PlayerRecord struct {
	ID            string `gorm:"primaryKey;type:varchar(128)" json:"id"`
	WalletAddress string `gorm:"type:varchar(128);uniqueIndex:idx_users_wallet_address,where:wallet_address <> ''" json:"wallet_address"`

	// Economy
	Balance            decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"balance"`
	Energy             int             `gorm:"not null" json:"energy"`
	LastEnergyUpdate   time.Time       `gorm:"not null" json:"last_energy_update"`
	EnergyRefillRateMs int64           `gorm:"not null" json:"energy_refill_rate_ms"`

	Assets       Assets       `gorm:"type:jsonb" json:"assets"`
	ActiveBoosts ActiveBoosts `gorm:"type:jsonb" json:"active_boosts"`

	// Progression
	CurrentLevelID int `gorm:"not null" json:"current_level_id"`

	// Referrals
	NumberOfRefs       int64           `gorm:"not null" json:"number_of_refs"`
	ReferralMultiplier decimal.Decimal `gorm:"type:numeric(8,4);not null" json:"referral_multiplier"`
	ReferredBy         string          `gorm:"type:varchar(128);index" json:"referred_by,omitempty"`

	// Version is bumped on every write and used for compare-and-swap.
	Version int64 `gorm:"not null" json:"version"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (PlayerRecord) TableName() string { return "users" }

// Clone returns a deep copy so callers can mutate maps without touching shared state.
func (p PlayerRecord) Clone() PlayerRecord {
	out := p
	out.Assets = make(Assets, len(p.Assets))
	for k, v := range p.Assets {
		out.Assets[k] = v
	}
	out.ActiveBoosts = make(ActiveBoosts, len(p.ActiveBoosts))
	for k, v := range p.ActiveBoosts {
		out.ActiveBoosts[k] = v
	}
	return out
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}
