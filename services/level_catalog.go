// services/level_catalog.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"player-economy/models"
	"player-economy/store"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrLevelNotFound = errors.New("level not found")

// ObjectFetcher loads a content object by key (utils.FetchObjectFromR2 in production).
type ObjectFetcher func(ctx context.Context, key string) ([]byte, error)

// LevelPack is the JSON document imported from object storage.
type LevelPack struct {
	Levels []struct {
		ID         int             `json:"id"`
		Title      string          `json:"title"`
		Reward     int64           `json:"reward"`
		EnergyCost int             `json:"energy_cost"`
		Payload    json.RawMessage `json:"payload"`
	} `json:"levels"`
}

// LevelCatalog serves read-only level definitions from an in-memory cache over the levels store.
type LevelCatalog struct {
	Store     store.LevelStore
	Fetch     ObjectFetcher
	ObjectKey string

	mu     sync.RWMutex
	levels map[int]models.LevelDefinition
}

func NewLevelCatalog(levels store.LevelStore, fetch ObjectFetcher, objectKey string) *LevelCatalog {
	return &LevelCatalog{
		Store:     levels,
		Fetch:     fetch,
		ObjectKey: objectKey,
		levels:    make(map[int]models.LevelDefinition),
	}
}

// FetchLevel returns the level from cache, falling back to the store on a miss.
func (c *LevelCatalog) FetchLevel(ctx context.Context, id int) (models.LevelDefinition, error) {
	c.mu.RLock()
	lvl, ok := c.levels[id]
	c.mu.RUnlock()
	if ok {
		return lvl, nil
	}

	lvl, err := c.Store.FetchLevel(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return lvl, ErrLevelNotFound
	}
	if err != nil {
		return lvl, err
	}
	c.mu.Lock()
	c.levels[id] = lvl
	c.mu.Unlock()
	return lvl, nil
}

// Refresh swaps the cache for the store's current contents.
func (c *LevelCatalog) Refresh(ctx context.Context) (int, error) {
	all, err := c.Store.ListLevels(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh level catalog: %w", err)
	}
	next := make(map[int]models.LevelDefinition, len(all))
	for _, lvl := range all {
		next[lvl.ID] = lvl
	}
	c.mu.Lock()
	c.levels = next
	c.mu.Unlock()
	return len(next), nil
}

// Import pulls the level pack from object storage and upserts it. No-op without a key or fetcher.
func (c *LevelCatalog) Import(ctx context.Context) (int, error) {
	if c.Fetch == nil || c.ObjectKey == "" {
		return 0, nil
	}
	raw, err := c.Fetch(ctx, c.ObjectKey)
	if err != nil {
		return 0, err
	}
	levels, err := ParseLevelPack(raw)
	if err != nil {
		return 0, fmt.Errorf("parse level pack %s: %w", c.ObjectKey, err)
	}
	if err := c.Store.UpsertLevels(ctx, levels); err != nil {
		return 0, err
	}
	return len(levels), nil
}

// Sync imports (when configured) and then refreshes the cache.
// A failed import is logged and the cache is still refreshed from what the store holds.
func (c *LevelCatalog) Sync(ctx context.Context) error {
	imported, err := c.Import(ctx)
	if err != nil {
		log.Printf("[LEVELS] ❌ Import from %s failed: %v", c.ObjectKey, err)
	} else if imported > 0 {
		log.Printf("[LEVELS] 📥 Imported %d level(s) from %s", imported, c.ObjectKey)
	}

	n, err := c.Refresh(ctx)
	if err != nil {
		return err
	}
	log.Printf("[LEVELS] ✅ Catalog holds %d level(s)", n)
	return nil
}

// ParseLevelPack validates a level pack and normalizes titles and slugs.
func ParseLevelPack(raw []byte) ([]models.LevelDefinition, error) {
	var pack LevelPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return nil, err
	}

	titler := cases.Title(language.English)
	seen := make(map[int]bool, len(pack.Levels))
	out := make([]models.LevelDefinition, 0, len(pack.Levels))
	for _, l := range pack.Levels {
		if l.ID <= 0 {
			return nil, fmt.Errorf("level id must be positive, got %d", l.ID)
		}
		if seen[l.ID] {
			return nil, fmt.Errorf("duplicate level id %d", l.ID)
		}
		if l.Reward < 0 || l.EnergyCost < 0 {
			return nil, fmt.Errorf("level %d: reward and energy_cost must not be negative", l.ID)
		}
		seen[l.ID] = true

		title := titler.String(strings.Join(strings.Fields(l.Title), " "))
		if title == "" {
			title = fmt.Sprintf("Level %d", l.ID)
		}
		out = append(out, models.LevelDefinition{
			ID:         l.ID,
			Title:      title,
			Slug:       slug.Make(fmt.Sprintf("%d %s", l.ID, title)),
			Reward:     l.Reward,
			EnergyCost: l.EnergyCost,
			Payload:    l.Payload,
		})
	}
	return out, nil
}
