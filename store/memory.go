package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"player-economy/models"
)

// MemoryStore keeps every collection in process memory. Used by tests and STORE_DRIVER=memory.
type MemoryStore struct {
	mu          sync.RWMutex
	players     map[string]models.PlayerRecord
	levels      map[int]models.LevelDefinition
	redemptions map[string]models.ExternalRedemption // txHash -> row
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		players:     make(map[string]models.PlayerRecord),
		levels:      make(map[int]models.LevelDefinition),
		redemptions: make(map[string]models.ExternalRedemption),
	}
}

func (m *MemoryStore) FetchPlayer(_ context.Context, id string) (models.PlayerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.players[id]
	if !ok {
		return models.PlayerRecord{}, ErrNotFound
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) CreatePlayer(_ context.Context, rec models.PlayerRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[rec.ID]; ok {
		return false, nil
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.players[rec.ID] = rec.Clone()
	return true, nil
}

func (m *MemoryStore) PersistPlayer(_ context.Context, rec models.PlayerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.players[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	} else if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.players[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) UpdatePlayer(_ context.Context, id string, patch PlayerPatch, pre Precondition) (models.PlayerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.players[id]
	if !ok {
		return models.PlayerRecord{}, ErrNotFound
	}
	if pre.Check && rec.Version != pre.Version {
		return models.PlayerRecord{}, ErrVersionConflict
	}
	if patch.WalletAddress != nil && m.walletOwnedByOther(id, *patch.WalletAddress) {
		return models.PlayerRecord{}, ErrWalletInUse
	}
	rec = rec.Clone()
	patch.Apply(&rec)
	rec.Version++
	rec.UpdatedAt = time.Now()
	m.players[id] = rec
	return rec.Clone(), nil
}

// walletOwnedByOther must be called with m.mu held.
func (m *MemoryStore) walletOwnedByOther(id, address string) bool {
	if address == "" {
		return false
	}
	for otherID, rec := range m.players {
		if otherID != id && rec.WalletAddress == address {
			return true
		}
	}
	return false
}

func (m *MemoryStore) FindPlayerByWallet(_ context.Context, address string) (models.PlayerRecord, error) {
	if address == "" {
		return models.PlayerRecord{}, ErrNotFound
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.players {
		if rec.WalletAddress == address {
			return rec.Clone(), nil
		}
	}
	return models.PlayerRecord{}, ErrNotFound
}

func (m *MemoryStore) FetchLevel(_ context.Context, id int) (models.LevelDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	lvl, ok := m.levels[id]
	if !ok {
		return models.LevelDefinition{}, ErrNotFound
	}
	return lvl, nil
}

func (m *MemoryStore) ListLevels(_ context.Context) ([]models.LevelDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.LevelDefinition, 0, len(m.levels))
	for _, lvl := range m.levels {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpsertLevels(_ context.Context, levels []models.LevelDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, lvl := range levels {
		m.levels[lvl.ID] = lvl
	}
	return nil
}

func (m *MemoryStore) RecordRedemption(_ context.Context, r models.ExternalRedemption) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.redemptions[r.TxHash]; ok {
		return false, nil
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	m.redemptions[r.TxHash] = r
	return true, nil
}

func (m *MemoryStore) PendingRedemptions(_ context.Context, limit int) ([]models.ExternalRedemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.ExternalRedemption
	for _, r := range m.redemptions {
		if !r.Credited {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) MarkRedemptionCredited(_ context.Context, id, playerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, r := range m.redemptions {
		if r.ID != id {
			continue
		}
		r.Credited = true
		r.CreditedAt = &at
		r.PlayerID = playerID
		r.UpdatedAt = time.Now()
		m.redemptions[hash] = r
		return nil
	}
	return ErrNotFound
}
