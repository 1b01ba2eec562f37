package economy

import (
	"time"

	"player-economy/models"
)

// ComputeEnergyRefill returns floor((now - lastEnergyUpdate) / energyRefillRateMs).
// Clock skew (now before the baseline) and a non-positive rate both yield 0.
func ComputeEnergyRefill(rec models.PlayerRecord, now time.Time) int64 {
	if rec.EnergyRefillRateMs <= 0 {
		return 0
	}
	elapsed := now.Sub(rec.LastEnergyUpdate).Milliseconds()
	if elapsed <= 0 {
		return 0
	}
	return elapsed / rec.EnergyRefillRateMs
}

func clampEnergy(v int64, maxEnergy int) int {
	if v < 0 {
		return 0
	}
	if v > int64(maxEnergy) {
		return maxEnergy
	}
	return int(v)
}

// currentEnergy is the stored energy plus lazy regeneration, capped at max.
func currentEnergy(rec models.PlayerRecord, now time.Time, maxEnergy int) int {
	return clampEnergy(int64(rec.Energy)+ComputeEnergyRefill(rec, now), maxEnergy)
}

// nextEnergyAt is when the next +1 lands, or nil when energy is already full.
func nextEnergyAt(rec models.PlayerRecord, now time.Time, maxEnergy int) *time.Time {
	if rec.EnergyRefillRateMs <= 0 || currentEnergy(rec, now, maxEnergy) >= maxEnergy {
		return nil
	}
	rate := time.Duration(rec.EnergyRefillRateMs) * time.Millisecond
	base := rec.LastEnergyUpdate
	if now.Before(base) {
		t := base.Add(rate)
		return &t
	}
	t := base.Add(time.Duration(ComputeEnergyRefill(rec, now)+1) * rate)
	return &t
}

// ActiveBoostsAt filters out boosts whose expiry is not after now. Storage is never purged here.
func ActiveBoostsAt(rec models.PlayerRecord, now time.Time) models.ActiveBoosts {
	out := models.ActiveBoosts{}
	for kind, b := range rec.ActiveBoosts {
		if b.ExpiresAt.After(now) {
			out[kind] = b
		}
	}
	return out
}
