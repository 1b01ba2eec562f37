package store

import (
	"context"
	"testing"
	"time"

	"player-economy/models"
	"player-economy/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, ch <-chan models.PlayerRecord) models.PlayerRecord {
	t.Helper()
	select {
	case rec := <-ch:
		return rec
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
		return models.PlayerRecord{}
	}
}

func TestNotifying_PublishesEveryWrite(t *testing.T) {
	hub := notify.NewHub(notify.DefaultBuffer)
	s := NewNotifying(NewMemoryStore(), hub)
	ctx := context.Background()

	_, ch, cancel := hub.Subscribe("alice")
	defer cancel()

	created, err := s.CreatePlayer(ctx, newPlayer("alice"))
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, int64(0), recv(t, ch).Version)

	energy := 7
	_, err = s.UpdatePlayer(ctx, "alice", PlayerPatch{Energy: &energy}, Precondition{})
	require.NoError(t, err)
	snap := recv(t, ch)
	assert.Equal(t, 7, snap.Energy)
	assert.Equal(t, int64(1), snap.Version)
}

func TestNotifying_SkipsFailedAndNoopWrites(t *testing.T) {
	hub := notify.NewHub(notify.DefaultBuffer)
	s := NewNotifying(NewMemoryStore(), hub)
	ctx := context.Background()
	require.NoError(t, s.PlayerStore.PersistPlayer(ctx, newPlayer("alice")))

	_, ch, cancel := hub.Subscribe("alice")
	defer cancel()

	created, err := s.CreatePlayer(ctx, newPlayer("alice"))
	require.NoError(t, err)
	assert.False(t, created)

	energy := 1
	_, err = s.UpdatePlayer(ctx, "alice", PlayerPatch{Energy: &energy}, MatchVersion(99))
	assert.ErrorIs(t, err, ErrVersionConflict)

	select {
	case rec := <-ch:
		t.Fatalf("unexpected snapshot %+v", rec)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifying_SubscribePlayer(t *testing.T) {
	hub := notify.NewHub(notify.DefaultBuffer)
	s := NewNotifying(NewMemoryStore(), hub)
	ctx := context.Background()

	updates, cancel := s.SubscribePlayer("alice")

	require.NoError(t, s.PersistPlayer(ctx, newPlayer("alice")))
	assert.Equal(t, "alice", recv(t, updates).ID)

	cancel()
	assert.Equal(t, 0, hub.Subscribers("alice"))
	_, open := <-updates
	assert.False(t, open)
}

// A legacy-mode writer that stored version 1 can publish after the writer that stored
// version 2; subscribers must still end on version 2.
func TestNotifying_OutOfOrderPublishKeepsNewest(t *testing.T) {
	hub := notify.NewHub(notify.DefaultBuffer)
	s := NewNotifying(NewMemoryStore(), hub)
	ctx := context.Background()
	require.NoError(t, s.PlayerStore.PersistPlayer(ctx, newPlayer("alice")))

	updates, cancel := s.SubscribePlayer("alice")
	defer cancel()

	one, two := 1, 2
	first, err := s.PlayerStore.UpdatePlayer(ctx, "alice", PlayerPatch{Energy: &one}, Precondition{})
	require.NoError(t, err)
	second, err := s.PlayerStore.UpdatePlayer(ctx, "alice", PlayerPatch{Energy: &two}, Precondition{})
	require.NoError(t, err)

	hub.Publish(second)
	hub.Publish(first)

	snap := recv(t, updates)
	assert.Equal(t, int64(2), snap.Version)
	assert.Equal(t, 2, snap.Energy)
	assert.Len(t, updates, 0)
}
