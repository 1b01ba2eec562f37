// middleware/service_token.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware admits only internal callers presenting expectedToken as
// "Authorization: Bearer <token>" or X-Service-Token. An empty expectedToken disables the routes.
func ServiceTokenMiddleware(expectedToken string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expectedToken == "" {
			log.Printf("🚫 [SERVICE_AUTH] GAME_SERVICE_TOKEN not configured, refusing %s", c.Path())
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "internal routes are disabled",
			})
		}

		token := c.Get("X-Service-Token")
		if token == "" {
			token = strings.TrimSpace(strings.TrimPrefix(c.Get("Authorization"), "Bearer "))
		}
		if token == "" {
			log.Printf("🚫 [SERVICE_AUTH] Missing service token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service token missing",
			})
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [SERVICE_AUTH] Invalid service token for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}
		return c.Next()
	}
}
