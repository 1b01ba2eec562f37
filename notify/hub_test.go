package notify

import (
	"testing"

	"player-economy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversOnlyToMatchingPlayer(t *testing.T) {
	hub := NewHub(2)
	_, aliceCh, cancelAlice := hub.Subscribe("alice")
	defer cancelAlice()
	_, bobCh, cancelBob := hub.Subscribe("bob")
	defer cancelBob()

	hub.Publish(models.PlayerRecord{ID: "alice", Energy: 5})

	require.Len(t, aliceCh, 1)
	assert.Equal(t, 5, (<-aliceCh).Energy)
	assert.Len(t, bobCh, 0)
}

func TestHub_FullQueueKeepsNewest(t *testing.T) {
	hub := NewHub(2)
	_, ch, cancel := hub.Subscribe("alice")
	defer cancel()

	for i := 1; i <= 5; i++ {
		hub.Publish(models.PlayerRecord{ID: "alice", Version: int64(i)})
	}

	require.Len(t, ch, 2)
	assert.Equal(t, int64(4), (<-ch).Version)
	assert.Equal(t, int64(5), (<-ch).Version)
}

func TestHub_SnapshotsAreIsolated(t *testing.T) {
	hub := NewHub(1)
	_, ch, cancel := hub.Subscribe("alice")
	defer cancel()

	rec := models.PlayerRecord{ID: "alice", Assets: models.Assets{models.AssetAIAssistant: 1}}
	hub.Publish(rec)
	rec.Assets[models.AssetAIAssistant] = 9

	assert.Equal(t, 1, (<-ch).Assets[models.AssetAIAssistant])
}

func TestHub_CancelClosesAndUnregisters(t *testing.T) {
	hub := NewHub(0)
	_, ch, cancel := hub.Subscribe("alice")
	assert.Equal(t, 1, hub.Subscribers("alice"))

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers("alice"))
	_, open := <-ch
	assert.False(t, open)

	assert.NotPanics(t, func() { hub.Publish(models.PlayerRecord{ID: "alice"}) })
}

func TestHub_OlderVersionIsDropped(t *testing.T) {
	hub := NewHub(4)
	_, ch, cancel := hub.Subscribe("alice")
	defer cancel()

	hub.Publish(models.PlayerRecord{ID: "alice", Version: 3, Energy: 30})
	hub.Publish(models.PlayerRecord{ID: "alice", Version: 2, Energy: 20})
	hub.Publish(models.PlayerRecord{ID: "alice", Version: 3, Energy: 30})

	require.Len(t, ch, 2)
	assert.Equal(t, int64(3), (<-ch).Version)
	assert.Equal(t, int64(3), (<-ch).Version)
}
