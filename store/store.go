// Package store is the document store behind the economy engine: the users
// collection (player records) and the read-only levels collection, plus the
// redemption ledger used by the burn feed worker.
package store

import (
	"context"
	"errors"
	"time"

	"player-economy/models"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("store: document not found")
	ErrVersionConflict = errors.New("store: version conflict")
	// ErrWalletInUse means the wallet address is already linked to another player.
	ErrWalletInUse = errors.New("store: wallet address already linked to another player")
)

// Precondition guards a write. The zero value writes unconditionally.
type Precondition struct {
	Check   bool
	Version int64
}

// MatchVersion only lets the write through if the stored version equals v.
func MatchVersion(v int64) Precondition {
	return Precondition{Check: true, Version: v}
}

// PlayerPatch names the fields a write merges into a stored record; nil fields are left alone.
type PlayerPatch struct {
	WalletAddress      *string
	Balance            *decimal.Decimal
	Energy             *int
	LastEnergyUpdate   *time.Time
	Assets             models.Assets
	ActiveBoosts       models.ActiveBoosts
	CurrentLevelID     *int
	NumberOfRefs       *int64
	ReferralMultiplier *decimal.Decimal
}

func (p PlayerPatch) Empty() bool {
	return p.WalletAddress == nil && p.Balance == nil && p.Energy == nil &&
		p.LastEnergyUpdate == nil && p.Assets == nil && p.ActiveBoosts == nil &&
		p.CurrentLevelID == nil && p.NumberOfRefs == nil && p.ReferralMultiplier == nil
}

// Apply merges the patch into rec. Map fields replace the stored map as a whole.
func (p PlayerPatch) Apply(rec *models.PlayerRecord) {
	if p.WalletAddress != nil {
		rec.WalletAddress = *p.WalletAddress
	}
	if p.Balance != nil {
		rec.Balance = *p.Balance
	}
	if p.Energy != nil {
		rec.Energy = *p.Energy
	}
	if p.LastEnergyUpdate != nil {
		rec.LastEnergyUpdate = *p.LastEnergyUpdate
	}
	if p.Assets != nil {
		rec.Assets = p.Assets
	}
	if p.ActiveBoosts != nil {
		rec.ActiveBoosts = p.ActiveBoosts
	}
	if p.CurrentLevelID != nil {
		rec.CurrentLevelID = *p.CurrentLevelID
	}
	if p.NumberOfRefs != nil {
		rec.NumberOfRefs = *p.NumberOfRefs
	}
	if p.ReferralMultiplier != nil {
		rec.ReferralMultiplier = *p.ReferralMultiplier
	}
}

// Columns maps the patch to users table column names.
func (p PlayerPatch) Columns() map[string]any {
	cols := map[string]any{}
	if p.WalletAddress != nil {
		cols["wallet_address"] = *p.WalletAddress
	}
	if p.Balance != nil {
		cols["balance"] = *p.Balance
	}
	if p.Energy != nil {
		cols["energy"] = *p.Energy
	}
	if p.LastEnergyUpdate != nil {
		cols["last_energy_update"] = *p.LastEnergyUpdate
	}
	if p.Assets != nil {
		cols["assets"] = p.Assets
	}
	if p.ActiveBoosts != nil {
		cols["active_boosts"] = p.ActiveBoosts
	}
	if p.CurrentLevelID != nil {
		cols["current_level_id"] = *p.CurrentLevelID
	}
	if p.NumberOfRefs != nil {
		cols["number_of_refs"] = *p.NumberOfRefs
	}
	if p.ReferralMultiplier != nil {
		cols["referral_multiplier"] = *p.ReferralMultiplier
	}
	return cols
}

// PlayerStore is the users collection.
type PlayerStore interface {
	// FetchPlayer returns ErrNotFound when no record exists.
	FetchPlayer(ctx context.Context, id string) (models.PlayerRecord, error)
	// CreatePlayer inserts rec only if no record with rec.ID exists.
	CreatePlayer(ctx context.Context, rec models.PlayerRecord) (bool, error)
	// PersistPlayer creates or fully replaces the record.
	PersistPlayer(ctx context.Context, rec models.PlayerRecord) error
	// UpdatePlayer merges patch into the stored record, bumps its version and returns the result.
	// A wallet address owned by another record fails with ErrWalletInUse.
	UpdatePlayer(ctx context.Context, id string, patch PlayerPatch, pre Precondition) (models.PlayerRecord, error)
	FindPlayerByWallet(ctx context.Context, address string) (models.PlayerRecord, error)
}

// PlayerSubscriber delivers full record snapshots after every write. A slow reader
// loses older queued snapshots, never the newest one. cancel closes the channel.
type PlayerSubscriber interface {
	SubscribePlayer(id string) (updates <-chan models.PlayerRecord, cancel func())
}

// LevelStore is the read-only levels collection; UpsertLevels is for content imports only.
type LevelStore interface {
	FetchLevel(ctx context.Context, id int) (models.LevelDefinition, error)
	ListLevels(ctx context.Context) ([]models.LevelDefinition, error)
	UpsertLevels(ctx context.Context, levels []models.LevelDefinition) error
}

// RedemptionStore is the burn ledger.
type RedemptionStore interface {
	// RecordRedemption inserts r unless a row with the same TxHash exists.
	RecordRedemption(ctx context.Context, r models.ExternalRedemption) (bool, error)
	PendingRedemptions(ctx context.Context, limit int) ([]models.ExternalRedemption, error)
	MarkRedemptionCredited(ctx context.Context, id, playerID string, at time.Time) error
}
