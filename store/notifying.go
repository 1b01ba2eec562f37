package store

import (
	"context"
	"log"

	"player-economy/models"
	"player-economy/notify"
)

// Notifying wraps a PlayerStore and publishes the stored record to a notify.Hub after every write.
// Publishing happens after the inner write returns, so two unguarded writers (legacy
// consistency) may publish out of order; the hub drops the older version in that case.
type Notifying struct {
	PlayerStore
	hub *notify.Hub
}

func NewNotifying(inner PlayerStore, hub *notify.Hub) *Notifying {
	return &Notifying{PlayerStore: inner, hub: hub}
}

func (n *Notifying) CreatePlayer(ctx context.Context, rec models.PlayerRecord) (bool, error) {
	created, err := n.PlayerStore.CreatePlayer(ctx, rec)
	if err != nil || !created {
		return created, err
	}
	n.publishStored(ctx, rec.ID)
	return true, nil
}

func (n *Notifying) PersistPlayer(ctx context.Context, rec models.PlayerRecord) error {
	if err := n.PlayerStore.PersistPlayer(ctx, rec); err != nil {
		return err
	}
	n.publishStored(ctx, rec.ID)
	return nil
}

func (n *Notifying) UpdatePlayer(ctx context.Context, id string, patch PlayerPatch, pre Precondition) (models.PlayerRecord, error) {
	rec, err := n.PlayerStore.UpdatePlayer(ctx, id, patch, pre)
	if err != nil {
		return rec, err
	}
	n.hub.Publish(rec)
	return rec, nil
}

func (n *Notifying) SubscribePlayer(id string) (<-chan models.PlayerRecord, func()) {
	_, updates, cancel := n.hub.Subscribe(id)
	return updates, cancel
}

func (n *Notifying) publishStored(ctx context.Context, id string) {
	rec, err := n.PlayerStore.FetchPlayer(ctx, id)
	if err != nil {
		log.Printf("[STORE] ⚠️ could not load player %s for notification: %v", id, err)
		return
	}
	n.hub.Publish(rec)
}
