// middleware/player_context.go
package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// PlayerContextMiddleware reads the player id forwarded by the gateway in X-User-ID
// and stores it under c.Locals("user_id"). Requests without it are rejected.
func PlayerContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Printf("❌ [PLAYER_CTX] X-User-ID missing on %s %s", c.Method(), c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway",
			})
		}
		c.Locals("user_id", userID)
		return c.Next()
	}
}

// PlayerID returns the id set by PlayerContextMiddleware.
func PlayerID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
