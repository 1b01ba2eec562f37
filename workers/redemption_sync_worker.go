package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"player-economy/economy"
	"player-economy/models"
	"player-economy/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Burn is one verified token burn as reported by the burn feed.
type Burn struct {
	TxHash        string          `json:"txHash"`
	WalletAddress string          `json:"walletAddress"`
	PlayerID      string          `json:"playerId,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	BurnedAt      time.Time       `json:"burnedAt"`
}

// RedemptionFeedClient reads the burn feed of the token service.
type RedemptionFeedClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewRedemptionFeedClient(baseURL, token string, httpClient *http.Client) *RedemptionFeedClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RedemptionFeedClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: httpClient,
	}
}

func (c *RedemptionFeedClient) GetBurns(ctx context.Context, since time.Time) ([]Burn, error) {
	u, err := url.Parse(fmt.Sprintf("%s/api/v1/public/burns", c.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call burn feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("burn feed returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Burns []Burn `json:"burns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode burn feed response: %w", err)
	}
	return response.Burns, nil
}

// Crediter applies a verified redemption to a player balance.
type Crediter interface {
	CreditExternalRedemption(ctx context.Context, id string, amount decimal.Decimal) (economy.Outcome, error)
}

// RedemptionSyncWorker records burns in the ledger and credits each one at most once.
type RedemptionSyncWorker struct {
	Client  *RedemptionFeedClient
	Ledger  store.RedemptionStore
	Players store.PlayerStore
	Credit  Crediter
	Now     func() time.Time

	// BatchSize bounds how many pending rows one poll credits.
	BatchSize int

	lastSync time.Time
}

func NewRedemptionSyncWorker(client *RedemptionFeedClient, ledger store.RedemptionStore, players store.PlayerStore, credit Crediter) *RedemptionSyncWorker {
	return &RedemptionSyncWorker{
		Client:    client,
		Ledger:    ledger,
		Players:   players,
		Credit:    credit,
		Now:       time.Now,
		BatchSize: 100,
		lastSync:  time.Now().UTC().Add(-24 * time.Hour),
	}
}

// LastSync is the feed cursor.
func (w *RedemptionSyncWorker) LastSync() time.Time { return w.lastSync }

// Poll runs one sync pass. It is meant to be driven by the scheduler, which never overlaps runs.
func (w *RedemptionSyncWorker) Poll(ctx context.Context) error {
	pollTime := w.Now().UTC()
	log.Printf("[SYNC] Polling for burns since %s...", w.lastSync.Format(time.RFC3339))

	burns, err := w.Client.GetBurns(ctx, w.lastSync)
	if err != nil {
		// keep the cursor so the same window is retried next tick
		return fmt.Errorf("poll burns: %w", err)
	}

	recorded := 0
	for _, b := range burns {
		if b.TxHash == "" || !b.Amount.IsPositive() {
			log.Printf("[SYNC] ⚠️ Ignoring malformed burn %q (amount=%s)", b.TxHash, b.Amount)
			continue
		}
		inserted, err := w.Ledger.RecordRedemption(ctx, models.ExternalRedemption{
			ID:            uuid.NewString(),
			TxHash:        b.TxHash,
			PlayerID:      b.PlayerID,
			WalletAddress: b.WalletAddress,
			Amount:        b.Amount,
			BurnedAt:      b.BurnedAt,
		})
		if err != nil {
			return err
		}
		if inserted {
			recorded++
		}
	}
	w.lastSync = pollTime
	if len(burns) > 0 {
		log.Printf("[SYNC] 📥 Received %d burn(s), %d new", len(burns), recorded)
	}

	credited, err := w.CreditPending(ctx)
	if err != nil {
		return err
	}
	if credited > 0 {
		log.Printf("[SYNC] ✅ Credited %d redemption(s)", credited)
	}
	return nil
}

// CreditPending credits every uncredited ledger row whose player can be resolved.
// Rows without a resolvable player stay pending for a later pass.
func (w *RedemptionSyncWorker) CreditPending(ctx context.Context) (int, error) {
	pending, err := w.Ledger.PendingRedemptions(ctx, w.BatchSize)
	if err != nil {
		return 0, err
	}

	credited := 0
	for _, r := range pending {
		playerID, err := w.resolvePlayer(ctx, r)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[SYNC] ⏳ Burn %s has no known player yet (wallet=%s)", r.TxHash, r.WalletAddress)
			continue
		}
		if err != nil {
			return credited, err
		}

		out, err := w.Credit.CreditExternalRedemption(ctx, playerID, r.Amount)
		if errors.Is(err, economy.ErrPlayerNotFound) {
			log.Printf("[SYNC] ⏳ Burn %s names unknown player %s", r.TxHash, playerID)
			continue
		}
		if err != nil {
			return credited, fmt.Errorf("credit burn %s: %w", r.TxHash, err)
		}
		if !out.Applied {
			continue
		}
		if err := w.Ledger.MarkRedemptionCredited(ctx, r.ID, playerID, w.Now().UTC()); err != nil {
			return credited, fmt.Errorf("mark burn %s credited: %w", r.TxHash, err)
		}
		credited++
	}
	return credited, nil
}

func (w *RedemptionSyncWorker) resolvePlayer(ctx context.Context, r models.ExternalRedemption) (string, error) {
	if r.PlayerID != "" {
		return r.PlayerID, nil
	}
	rec, err := w.Players.FindPlayerByWallet(ctx, r.WalletAddress)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}
