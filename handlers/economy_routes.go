// handlers/economy_routes.go
package handlers

import (
	"errors"
	"strconv"

	"player-economy/economy"
	"player-economy/middleware"
	"player-economy/models"
	"player-economy/services"
	"player-economy/store"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

// EconomyHandler exposes the economy engine to game clients.
type EconomyHandler struct {
	Engine     *economy.Engine
	Levels     *services.LevelCatalog
	Subscriber store.PlayerSubscriber

	// ServiceToken guards /admin routes.
	ServiceToken string
}

func SetupEconomyRoutes(app *fiber.App, h *EconomyHandler) {
	// 🔐 player routes need the gateway-provided player id
	player := app.Group("/player", middleware.PlayerContextMiddleware())
	player.Post("/init", h.InitPlayer)
	player.Get("/", h.GetPlayer)
	player.Post("/energy/spend", h.SpendEnergy)
	player.Post("/energy/refill", h.RefillEnergy)
	player.Post("/assets/:type/purchase", h.PurchaseAsset)
	player.Post("/boosts/:type/activate", h.ActivateBoost)
	player.Get("/boosts", h.GetActiveBoosts)
	player.Post("/wallet", h.LinkWallet)
	player.Get("/stream", h.StreamPlayer)

	levels := app.Group("/levels", middleware.PlayerContextMiddleware())
	levels.Get("/:id", h.GetLevel)
	levels.Post("/:id/complete", h.CompleteLevel)

	// trusted internal callers only, no player context
	admin := app.Group("/admin", middleware.ServiceTokenMiddleware(h.ServiceToken))
	admin.Post("/redemptions", h.CreditRedemption)
}

// outcomeResponse maps an engine result to the wire shape. A missing player stays a
// benign 200 with success=false so existing clients keep working.
func outcomeResponse(c *fiber.Ctx, out economy.Outcome, err error) error {
	if err != nil && !errors.Is(err, economy.ErrPlayerNotFound) {
		return errorResponse(c, err)
	}
	if errors.Is(err, economy.ErrPlayerNotFound) {
		out = economy.Outcome{Reason: economy.ReasonNotFound}
	}
	return c.JSON(out)
}

func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, economy.ErrInvalidCost),
		errors.Is(err, economy.ErrInvalidAmount),
		errors.Is(err, economy.ErrInvalidWallet),
		errors.Is(err, economy.ErrInvalidPlayer):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, store.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "player was modified concurrently",
			"cause": err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "economy operation failed",
			"cause": err.Error(),
		})
	}
}

func badJSON(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": "invalid JSON",
		"cause": err.Error(),
	})
}

func (h *EconomyHandler) InitPlayer(c *fiber.Ctx) error {
	var req struct {
		ReferralCode string `json:"referralCode"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badJSON(c, err)
		}
	}
	out, err := h.Engine.Initialize(c.UserContext(), middleware.PlayerID(c), req.ReferralCode)
	return outcomeResponse(c, out, err)
}

func (h *EconomyHandler) GetPlayer(c *fiber.Ctx) error {
	view, err := h.Engine.GetPlayer(c.UserContext(), middleware.PlayerID(c))
	if errors.Is(err, economy.ErrPlayerNotFound) {
		return c.JSON(fiber.Map{"player": nil, "reason": economy.ReasonNotFound})
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(view)
}

func (h *EconomyHandler) SpendEnergy(c *fiber.Ctx) error {
	var req struct {
		Cost int `json:"cost"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c, err)
	}
	energy, err := h.Engine.SpendEnergy(c.UserContext(), middleware.PlayerID(c), req.Cost)
	if errors.Is(err, economy.ErrPlayerNotFound) {
		return c.JSON(fiber.Map{"energy": 0, "reason": economy.ReasonNotFound})
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"energy": energy})
}

func (h *EconomyHandler) RefillEnergy(c *fiber.Ctx) error {
	out, err := h.Engine.RefillEnergy(c.UserContext(), middleware.PlayerID(c))
	return outcomeResponse(c, out, err)
}

func (h *EconomyHandler) PurchaseAsset(c *fiber.Ctx) error {
	out, err := h.Engine.PurchaseAsset(c.UserContext(), middleware.PlayerID(c), models.AssetType(c.Params("type")))
	return outcomeResponse(c, out, err)
}

func (h *EconomyHandler) ActivateBoost(c *fiber.Ctx) error {
	out, err := h.Engine.ActivateBoost(c.UserContext(), middleware.PlayerID(c), models.AssetType(c.Params("type")))
	return outcomeResponse(c, out, err)
}

func (h *EconomyHandler) GetActiveBoosts(c *fiber.Ctx) error {
	boosts, err := h.Engine.GetActiveBoosts(c.UserContext(), middleware.PlayerID(c))
	if errors.Is(err, economy.ErrPlayerNotFound) {
		return c.JSON(fiber.Map{"active_boosts": boosts, "reason": economy.ReasonNotFound})
	}
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"active_boosts": boosts})
}

func (h *EconomyHandler) LinkWallet(c *fiber.Ctx) error {
	var req struct {
		Address string `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c, err)
	}
	out, err := h.Engine.LinkWallet(c.UserContext(), middleware.PlayerID(c), req.Address)
	return outcomeResponse(c, out, err)
}

// levelParam resolves :id. ok=false means an error response has already been written.
func (h *EconomyHandler) levelParam(c *fiber.Ctx) (lvl models.LevelDefinition, ok bool, err error) {
	id, convErr := strconv.Atoi(c.Params("id"))
	if convErr != nil || id <= 0 {
		return lvl, false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid level id"})
	}
	lvl, err = h.Levels.FetchLevel(c.UserContext(), id)
	if errors.Is(err, services.ErrLevelNotFound) {
		return lvl, false, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "level not found"})
	}
	if err != nil {
		return lvl, false, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load level",
			"cause": err.Error(),
		})
	}
	return lvl, true, nil
}

func (h *EconomyHandler) GetLevel(c *fiber.Ctx) error {
	lvl, ok, err := h.levelParam(c)
	if !ok {
		return err
	}
	return c.JSON(lvl)
}

func (h *EconomyHandler) CompleteLevel(c *fiber.Ctx) error {
	lvl, ok, err := h.levelParam(c)
	if !ok {
		return err
	}
	out, err := h.Engine.CompleteLevel(c.UserContext(), middleware.PlayerID(c), lvl.ID, lvl.Reward)
	return outcomeResponse(c, out, err)
}

func (h *EconomyHandler) CreditRedemption(c *fiber.Ctx) error {
	var req struct {
		PlayerID string          `json:"playerId"`
		Amount   decimal.Decimal `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badJSON(c, err)
	}
	if req.PlayerID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "playerId is required"})
	}
	out, err := h.Engine.CreditExternalRedemption(c.UserContext(), req.PlayerID, req.Amount)
	return outcomeResponse(c, out, err)
}
