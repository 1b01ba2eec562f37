// Package notify fans out full player snapshots to realtime subscribers.
package notify

import (
	"log"
	"sync"

	"player-economy/models"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber queue depth before old snapshots are dropped.
const DefaultBuffer = 8

type subscriber struct {
	id string
	mu sync.Mutex
	ch chan models.PlayerRecord

	// newest version handed to ch; older snapshots are discarded
	last int64
	seen bool
}

// Hub delivers every published record to the subscribers of that player id.
// Delivery never blocks the writer: when a subscriber queue is full the oldest
// queued snapshot is dropped, so consumers must treat each snapshot as a full replace.
// A snapshot whose Version is below one already delivered is dropped, so racing
// publishers cannot reorder a subscriber's view of storage.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*subscriber // playerID -> subscriberID -> subscriber
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[string]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers a channel subscriber. The channel is closed by cancel.
func (h *Hub) Subscribe(playerID string) (string, <-chan models.PlayerRecord, func()) {
	sub := &subscriber{
		id: uuid.NewString(),
		ch: make(chan models.PlayerRecord, h.buffer),
	}

	h.mu.Lock()
	if h.subs[playerID] == nil {
		h.subs[playerID] = make(map[string]*subscriber)
	}
	h.subs[playerID][sub.id] = sub
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if byID, ok := h.subs[playerID]; ok {
				delete(byID, sub.id)
				if len(byID) == 0 {
					delete(h.subs, playerID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.id, sub.ch, cancel
}

// Publish sends a copy of rec to every subscriber of rec.ID.
func (h *Hub) Publish(rec models.PlayerRecord) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[rec.ID] {
		sub.mu.Lock()
		if sub.seen && rec.Version < sub.last {
			sub.mu.Unlock()
			continue
		}
		sub.last, sub.seen = rec.Version, true
		snapshot := rec.Clone()
		select {
		case sub.ch <- snapshot:
		default:
			// queue full: drop the oldest snapshot, keep the newest
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- snapshot:
			default:
				log.Printf("[NOTIFY] ⚠️ dropped snapshot for player %s (subscriber %s)", rec.ID, sub.id)
			}
		}
		sub.mu.Unlock()
	}
}

// Subscribers returns the number of live subscribers for a player.
func (h *Hub) Subscribers(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[playerID])
}
