package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"player-economy/config"
	"player-economy/economy"
	"player-economy/models"
	"player-economy/notify"
	"player-economy/services"
	"player-economy/store"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app *fiber.App
	mem *store.MemoryStore
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	mem := store.NewMemoryStore()
	players := store.NewNotifying(mem, notify.NewHub(notify.DefaultBuffer))
	eng := economy.NewEngine(players, config.DefaultEconomy(), economy.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, mem.UpsertLevels(context.Background(), []models.LevelDefinition{
		{ID: 1, Title: "First Steps", Slug: "1-first-steps", Reward: 40, EnergyCost: 3},
	}))

	app := fiber.New()
	SetupEconomyRoutes(app, &EconomyHandler{
		Engine:       eng,
		Levels:       services.NewLevelCatalog(mem, nil, ""),
		Subscriber:   players,
		ServiceToken: "secret",
	})
	return testServer{app: app, mem: mem}
}

func (s testServer) do(t *testing.T, method, path, userID, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	if strings.HasPrefix(path, "/admin/") {
		req.Header.Set("X-Service-Token", "secret")
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestRoutes_RequirePlayerID(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/player", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestRoutes_InitThenGetPlayer(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/player/init", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodPost, "/player/init", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "already_exists", body["reason"])

	status, body = s.do(t, http.MethodGet, "/player", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	player := body["player"].(map[string]any)
	assert.Equal(t, "alice", player["id"])
	assert.Equal(t, float64(100), body["current_energy"])
}

func TestRoutes_InitWithReferral(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")
	status, _ := s.do(t, http.MethodPost, "/player/init", "bob", `{"referralCode":"alice"}`)
	require.Equal(t, fiber.StatusOK, status)

	alice, err := s.mem.FetchPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(1), alice.NumberOfRefs)
}

func TestRoutes_MissingPlayerIsBenign(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/player/energy/spend", "ghost", `{"cost":1}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["energy"])
	assert.Equal(t, "not_found", body["reason"])

	status, body = s.do(t, http.MethodPost, "/player/assets/aiAssistant/purchase", "ghost", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "not_found", body["reason"])
}

func TestRoutes_SpendEnergyValidation(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")

	status, body := s.do(t, http.MethodPost, "/player/energy/spend", "alice", `{"cost":3}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(97), body["energy"])

	status, _ = s.do(t, http.MethodPost, "/player/energy/spend", "alice", `{"cost":-3}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoutes_CompleteLevelPurchaseAndBoost(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")

	status, body := s.do(t, http.MethodGet, "/levels/1", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "First Steps", body["title"])

	status, body = s.do(t, http.MethodPost, "/levels/1/complete", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodPost, "/levels/1/complete", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "level_mismatch", body["reason"])

	status, body = s.do(t, http.MethodPost, "/player/assets/showAvailableMoves/purchase", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodPost, "/player/assets/showAvailableMoves/purchase", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "insufficient_funds", body["reason"])

	status, body = s.do(t, http.MethodPost, "/player/boosts/showAvailableMoves/activate", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodGet, "/player/boosts", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, body["active_boosts"], "showAvailableMoves")

	rec, err := s.mem.FetchPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, rec.Balance.Equal(decimal.NewFromInt(10)), rec.Balance.String())
	assert.Equal(t, 2, rec.CurrentLevelID)
}

func TestRoutes_UnknownLevelAndBadID(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/levels/42", "alice", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	status, _ = s.do(t, http.MethodPost, "/levels/abc/complete", "alice", "")
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoutes_RefillWalletAndRedemption(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")

	status, body := s.do(t, http.MethodPost, "/player/energy/refill", "alice", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "energy_full", body["reason"])

	status, body = s.do(t, http.MethodPost, "/player/wallet", "alice", `{"address":"0xabc"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["applied"])

	status, body = s.do(t, http.MethodPost, "/admin/redemptions", "ops", `{"playerId":"alice","amount":"7.25"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	rec, err := s.mem.FetchPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", rec.WalletAddress)
	assert.True(t, rec.Balance.Equal(decimal.RequireFromString("7.25")))

	status, _ = s.do(t, http.MethodPost, "/admin/redemptions", "ops", `{"playerId":"alice","amount":"-1"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestRoutes_AdminNeedsServiceToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/admin/redemptions", strings.NewReader(`{"playerId":"alice","amount":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "ops")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestRoutes_StreamMissingPlayer(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/player/stream", "ghost", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "not_found", body["reason"])
}

func TestRoutes_AdminDoesNotNeedPlayerID(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")

	status, body := s.do(t, http.MethodPost, "/admin/redemptions", "", `{"playerId":"alice","amount":"2"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["applied"])
}

func TestRoutes_LinkWalletTakenByAnotherPlayer(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/player/init", "alice", "")
	s.do(t, http.MethodPost, "/player/init", "bob", "")

	status, _ := s.do(t, http.MethodPost, "/player/wallet", "alice", `{"address":"EQ-same"}`)
	require.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, http.MethodPost, "/player/wallet", "bob", `{"address":"EQ-same"}`)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "wallet_in_use", body["reason"])
}
