// Package economy holds the player economy rules: lazy energy regeneration,
// asset purchases, boosts, level rewards, referral credit and external redemptions.
//
// The engine keeps no state between calls. Every operation is a
// fetch-mutate-write cycle against a store.PlayerStore. How that cycle is
// guarded depends on config.Economy.Consistency:
//
//   - serialized: one writer per player id at a time inside this process, and
//     the write is a compare-and-swap on the record version, so a concurrent
//     writer in another process surfaces as store.ErrVersionConflict.
//   - legacy: unguarded read-then-write. Two racing purchases can both read
//     the same balance and both succeed (lost update).
//
// Operations never retry.
package economy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"player-economy/config"
	"player-economy/models"
	"player-economy/store"

	"github.com/shopspring/decimal"
)

type Engine struct {
	Players store.PlayerStore
	Clock   Clock
	Config  config.Economy

	locks *playerLocks
}

func NewEngine(players store.PlayerStore, cfg config.Economy, clock Clock) *Engine {
	if clock == nil {
		clock = RealClock{}
	}
	return &Engine{
		Players: players,
		Clock:   clock,
		Config:  cfg,
		locks:   newPlayerLocks(),
	}
}

// PlayerView is a record plus values derived at read time. Nothing derived is persisted.
type PlayerView struct {
	Player        models.PlayerRecord `json:"player"`
	CurrentEnergy int                 `json:"current_energy"`
	NextEnergyAt  *time.Time          `json:"next_energy_at,omitempty"`
	ActiveBoosts  models.ActiveBoosts `json:"active_boosts"`
}

func (e *Engine) serialized() bool {
	return e.Config.Consistency != config.ConsistencyLegacy
}

func (e *Engine) lock(id string) func() {
	if !e.serialized() {
		return func() {}
	}
	return e.locks.Lock(id)
}

func (e *Engine) fetch(ctx context.Context, id string) (models.PlayerRecord, error) {
	if strings.TrimSpace(id) == "" {
		return models.PlayerRecord{}, ErrInvalidPlayer
	}
	rec, err := e.Players.FetchPlayer(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return rec, ErrPlayerNotFound
	}
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// mutation decides the patch for one operation from the fetched record.
type mutation func(rec models.PlayerRecord, now time.Time) (store.PlayerPatch, Outcome)

// mutate runs fetch -> decide -> write for one player. A not-found record yields
// (rejected(not_found), ErrPlayerNotFound); any other error is a store failure.
func (e *Engine) mutate(ctx context.Context, id string, decide mutation) (models.PlayerRecord, Outcome, error) {
	unlock := e.lock(id)
	defer unlock()

	rec, err := e.fetch(ctx, id)
	if errors.Is(err, ErrPlayerNotFound) {
		return rec, rejected(ReasonNotFound), err
	}
	if err != nil {
		return rec, Outcome{}, err
	}

	now := e.Clock.Now()
	patch, out := decide(rec.Clone(), now)
	if !out.Applied || patch.Empty() {
		return rec, out, nil
	}

	pre := store.Precondition{}
	if e.serialized() {
		pre = store.MatchVersion(rec.Version)
	}
	updated, err := e.Players.UpdatePlayer(ctx, id, patch, pre)
	if err != nil {
		return rec, Outcome{}, fmt.Errorf("write player %s: %w", id, err)
	}
	return updated, out, nil
}

func (e *Engine) roundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(e.Config.CurrencyPrecision)
}

func (e *Engine) bumpMultiplier(m decimal.Decimal) decimal.Decimal {
	return decimal.Min(m.Add(e.Config.ReferralMultiplierStep), e.Config.MaxReferralMultiplier)
}

// Initialize creates the record for id on first contact. It is a no-op when the
// record exists. A referral code naming another existing player boosts the new
// player's multiplier and credits the referrer once; a missing referrer is skipped.
func (e *Engine) Initialize(ctx context.Context, id, referralCode string) (Outcome, error) {
	id = strings.TrimSpace(id)
	referralCode = strings.TrimSpace(referralCode)
	if id == "" {
		return Outcome{}, ErrInvalidPlayer
	}
	if referralCode == id {
		referralCode = ""
	}

	created, referrerFound, err := e.create(ctx, id, referralCode)
	if err != nil {
		return Outcome{}, err
	}
	if !created {
		return skipped(ReasonAlreadyExists), nil
	}
	if !referrerFound {
		return applied(), nil
	}

	_, out, err := e.mutate(ctx, referralCode, func(ref models.PlayerRecord, _ time.Time) (store.PlayerPatch, Outcome) {
		refs := ref.NumberOfRefs + 1
		mult := e.bumpMultiplier(ref.ReferralMultiplier)
		return store.PlayerPatch{NumberOfRefs: &refs, ReferralMultiplier: &mult}, applied()
	})
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		log.Printf("[ECONOMY] ⚠️ referrer %s vanished before credit for %s", referralCode, id)
	case err != nil:
		return applied(), fmt.Errorf("credit referrer %s: %w", referralCode, err)
	case out.Applied:
		log.Printf("[ECONOMY] 🤝 Referral credited: %s referred %s", referralCode, id)
	}
	return applied(), nil
}

func (e *Engine) create(ctx context.Context, id, referralCode string) (created, referrerFound bool, err error) {
	unlock := e.lock(id)
	defer unlock()

	if _, err := e.fetch(ctx, id); err == nil {
		return false, false, nil
	} else if !errors.Is(err, ErrPlayerNotFound) {
		return false, false, err
	}

	multiplier := decimal.NewFromInt(1)
	if referralCode != "" {
		_, err := e.fetch(ctx, referralCode)
		switch {
		case err == nil:
			referrerFound = true
			multiplier = e.bumpMultiplier(multiplier)
		case !errors.Is(err, ErrPlayerNotFound):
			return false, false, err
		}
	}

	assets := models.Assets{}
	for _, t := range models.AssetTypes {
		assets[t] = 0
	}
	rec := models.PlayerRecord{
		ID:                 id,
		Balance:            decimal.Zero,
		Energy:             e.Config.MaxEnergy,
		LastEnergyUpdate:   e.Clock.Now(),
		EnergyRefillRateMs: e.Config.DefaultEnergyRefillRateMs,
		Assets:             assets,
		ActiveBoosts:       models.ActiveBoosts{},
		CurrentLevelID:     1,
		ReferralMultiplier: multiplier,
		ReferredBy:         referralCode,
	}
	created, err = e.Players.CreatePlayer(ctx, rec)
	if err != nil {
		return false, false, fmt.Errorf("create player %s: %w", id, err)
	}
	if created {
		log.Printf("[ECONOMY] 🆕 Player initialized: %s (referred_by=%q, multiplier=%s)", id, referralCode, multiplier)
	}
	return created, referrerFound, nil
}

// SpendEnergy applies lazy regeneration, subtracts cost and clamps to [0, MaxEnergy].
// It never rejects for lack of energy: a result of 0 is the caller's signal.
func (e *Engine) SpendEnergy(ctx context.Context, id string, cost int) (int, error) {
	if cost < 0 {
		return 0, ErrInvalidCost
	}
	updated, _, err := e.mutate(ctx, id, func(rec models.PlayerRecord, now time.Time) (store.PlayerPatch, Outcome) {
		refill := ComputeEnergyRefill(rec, now)
		energy := clampEnergy(int64(rec.Energy)+refill-int64(cost), e.Config.MaxEnergy)
		return store.PlayerPatch{Energy: &energy, LastEnergyUpdate: &now}, applied()
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[ECONOMY] ⚡ Energy spent: %s cost=%d → energy=%d", id, cost, updated.Energy)
	return updated.Energy, nil
}

// CompleteLevel advances currentLevelId by one and pays reward × referralMultiplier,
// but only when levelID is the level the player is on.
func (e *Engine) CompleteLevel(ctx context.Context, id string, levelID int, reward int64) (Outcome, error) {
	if reward < 0 {
		return Outcome{}, ErrInvalidAmount
	}
	updated, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, _ time.Time) (store.PlayerPatch, Outcome) {
		if rec.CurrentLevelID != levelID {
			return store.PlayerPatch{}, rejected(ReasonLevelMismatch)
		}
		next := rec.CurrentLevelID + 1
		credit := e.roundCurrency(decimal.NewFromInt(reward).Mul(rec.ReferralMultiplier))
		balance := e.roundCurrency(rec.Balance.Add(credit))
		return store.PlayerPatch{CurrentLevelID: &next, Balance: &balance}, applied()
	})
	if err != nil || !out.Applied {
		return out, err
	}
	log.Printf("[ECONOMY] 🏁 Level completed: %s level=%d → next=%d, balance=%s",
		id, levelID, updated.CurrentLevelID, updated.Balance)
	return out, nil
}

// PurchaseAsset spends the asset's cost and adds one unit. Unaffordable purchases are rejected.
func (e *Engine) PurchaseAsset(ctx context.Context, id string, asset models.AssetType) (Outcome, error) {
	cost, ok := e.Config.AssetCosts[asset]
	if !ok || !asset.Valid() {
		return rejected(ReasonUnknownAsset), nil
	}
	updated, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, _ time.Time) (store.PlayerPatch, Outcome) {
		if rec.Balance.LessThan(cost) {
			return store.PlayerPatch{}, rejected(ReasonInsufficientFunds)
		}
		balance := e.roundCurrency(rec.Balance.Sub(cost))
		assets := rec.Assets
		assets[asset]++
		return store.PlayerPatch{Balance: &balance, Assets: assets}, applied()
	})
	if err != nil || !out.Applied {
		return out, err
	}
	log.Printf("[ECONOMY] 🛒 Asset purchased: %s %s → owned=%d, balance=%s",
		id, asset, updated.Assets[asset], updated.Balance)
	return out, nil
}

// RefillEnergy buys energy back to full at CostPerEnergy per point, based on the stored energy.
func (e *Engine) RefillEnergy(ctx context.Context, id string) (Outcome, error) {
	updated, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, now time.Time) (store.PlayerPatch, Outcome) {
		needed := e.Config.MaxEnergy - rec.Energy
		if needed <= 0 {
			return store.PlayerPatch{}, skipped(ReasonEnergyFull)
		}
		total := e.Config.CostPerEnergy.Mul(decimal.NewFromInt(int64(needed)))
		if rec.Balance.LessThan(total) {
			return store.PlayerPatch{}, rejected(ReasonInsufficientFunds)
		}
		energy := e.Config.MaxEnergy
		balance := e.roundCurrency(rec.Balance.Sub(total))
		return store.PlayerPatch{Energy: &energy, Balance: &balance, LastEnergyUpdate: &now}, applied()
	})
	if err != nil || !out.Applied {
		return out, err
	}
	log.Printf("[ECONOMY] 🔋 Energy refilled: %s → energy=%d, balance=%s", id, updated.Energy, updated.Balance)
	return out, nil
}

// ActivateBoost consumes one unit of the asset and starts (or restarts) its timer.
// Other boost kinds in the map are preserved.
func (e *Engine) ActivateBoost(ctx context.Context, id string, boost models.AssetType) (Outcome, error) {
	if !boost.Valid() {
		return rejected(ReasonUnknownAsset), nil
	}
	updated, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, now time.Time) (store.PlayerPatch, Outcome) {
		if rec.Assets[boost] <= 0 {
			return store.PlayerPatch{}, rejected(ReasonInsufficientAsset)
		}
		assets := rec.Assets
		assets[boost]--
		boosts := rec.ActiveBoosts
		boosts[boost] = models.Boost{ExpiresAt: now.Add(e.Config.BoostDuration)}
		return store.PlayerPatch{Assets: assets, ActiveBoosts: boosts}, applied()
	})
	if err != nil || !out.Applied {
		return out, err
	}
	log.Printf("[ECONOMY] 🚀 Boost activated: %s %s until %s (remaining=%d)",
		id, boost, updated.ActiveBoosts[boost].ExpiresAt.Format(time.RFC3339), updated.Assets[boost])
	return out, nil
}

// GetActiveBoosts returns the boosts that have not expired yet.
func (e *Engine) GetActiveBoosts(ctx context.Context, id string) (models.ActiveBoosts, error) {
	rec, err := e.fetch(ctx, id)
	if err != nil {
		return models.ActiveBoosts{}, err
	}
	return ActiveBoostsAt(rec, e.Clock.Now()), nil
}

// CreditExternalRedemption adds an already verified redemption amount to the balance.
func (e *Engine) CreditExternalRedemption(ctx context.Context, id string, amount decimal.Decimal) (Outcome, error) {
	if amount.IsNegative() {
		return Outcome{}, ErrInvalidAmount
	}
	updated, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, _ time.Time) (store.PlayerPatch, Outcome) {
		balance := e.roundCurrency(rec.Balance.Add(amount))
		return store.PlayerPatch{Balance: &balance}, applied()
	})
	if err != nil {
		return out, err
	}
	log.Printf("[ECONOMY] 🔥 Redemption credited: %s +%s → balance=%s", id, amount, updated.Balance)
	return out, nil
}

// LinkWallet sets the wallet address once. Relinking the same address is a no-op success.
// The store enforces that an address belongs to at most one player.
func (e *Engine) LinkWallet(ctx context.Context, id, address string) (Outcome, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Outcome{}, ErrInvalidWallet
	}
	owner, err := e.Players.FindPlayerByWallet(ctx, address)
	switch {
	case err == nil && owner.ID != id:
		return rejected(ReasonWalletInUse), nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return Outcome{}, err
	}

	_, out, err := e.mutate(ctx, id, func(rec models.PlayerRecord, _ time.Time) (store.PlayerPatch, Outcome) {
		switch rec.WalletAddress {
		case address:
			return store.PlayerPatch{}, skipped(ReasonWalletLinked)
		case "":
			return store.PlayerPatch{WalletAddress: &address}, applied()
		default:
			return store.PlayerPatch{}, rejected(ReasonWalletLinked)
		}
	})
	if errors.Is(err, store.ErrWalletInUse) {
		// lost a concurrent link of the same address
		return rejected(ReasonWalletInUse), nil
	}
	if err != nil || !out.Applied {
		return out, err
	}
	log.Printf("[ECONOMY] 👛 Wallet linked: %s → %s", id, address)
	return out, nil
}

// GetPlayer returns the stored record with regenerated energy and live boosts derived for now.
func (e *Engine) GetPlayer(ctx context.Context, id string) (PlayerView, error) {
	rec, err := e.fetch(ctx, id)
	if err != nil {
		return PlayerView{}, err
	}
	now := e.Clock.Now()
	return PlayerView{
		Player:        rec,
		CurrentEnergy: currentEnergy(rec, now, e.Config.MaxEnergy),
		NextEnergyAt:  nextEnergyAt(rec, now, e.Config.MaxEnergy),
		ActiveBoosts:  ActiveBoostsAt(rec, now),
	}, nil
}
