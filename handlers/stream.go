// handlers/stream.go
package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"player-economy/economy"
	"player-economy/middleware"
	"player-economy/models"

	"github.com/gofiber/fiber/v2"
)

// StreamKeepAlive is how often an idle SSE connection gets a comment line.
var StreamKeepAlive = 15 * time.Second

// StreamPlayer pushes the player's record as an SSE "player" event on connect and after every write.
// Each event is a full snapshot; intermediate snapshots may be skipped under load, the newest never is.
func (h *EconomyHandler) StreamPlayer(c *fiber.Ctx) error {
	userID := middleware.PlayerID(c)

	// subscribe before reading so a write landing in between is still delivered
	updates, cancel := h.Subscriber.SubscribePlayer(userID)

	view, err := h.Engine.GetPlayer(c.UserContext(), userID)
	if errors.Is(err, economy.ErrPlayerNotFound) {
		cancel()
		return c.JSON(fiber.Map{"player": nil, "reason": economy.ReasonNotFound})
	}
	if err != nil {
		cancel()
		return errorResponse(c, err)
	}

	// SSE headers
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		log.Printf("[SSE] 📡 %s connected", userID)
		if err := pumpPlayerEvents(w, view.Player, updates, done, StreamKeepAlive); err != nil {
			log.Printf("[SSE] %s disconnected: %v", userID, err)
			return
		}
		log.Printf("[SSE] %s stream closed", userID)
	})
	return nil
}

// pumpPlayerEvents writes first, then every snapshot from updates that is not older
// than what the client already has. It returns nil when updates is closed or done fires.
func pumpPlayerEvents(w *bufio.Writer, first models.PlayerRecord, updates <-chan models.PlayerRecord, done <-chan struct{}, keepAlive time.Duration) error {
	if err := writePlayerEvent(w, first); err != nil {
		return err
	}
	last := first.Version

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case rec, ok := <-updates:
			if !ok {
				return nil
			}
			if rec.Version < last {
				continue
			}
			last = rec.Version
			if err := writePlayerEvent(w, rec); err != nil {
				return err
			}
		case <-ticker.C:
			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return err
			}
		case <-done:
			return nil
		}
	}
}

func writePlayerEvent(w *bufio.Writer, rec models.PlayerRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: player\ndata: %s\n\n", payload)
	return w.Flush()
}
