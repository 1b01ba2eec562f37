package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceTokenMiddleware(t *testing.T) {
	newApp := func(token string) *fiber.App {
		app := fiber.New()
		app.Post("/admin/ping", ServiceTokenMiddleware(token), func(c *fiber.Ctx) error {
			return c.SendStatus(fiber.StatusNoContent)
		})
		return app
	}

	cases := []struct {
		name       string
		configured string
		header     string
		value      string
		want       int
	}{
		{"service header", "secret", "X-Service-Token", "secret", fiber.StatusNoContent},
		{"bearer", "secret", "Authorization", "Bearer secret", fiber.StatusNoContent},
		{"wrong token", "secret", "X-Service-Token", "nope", fiber.StatusUnauthorized},
		{"missing token", "secret", "", "", fiber.StatusUnauthorized},
		{"not configured", "", "X-Service-Token", "secret", fiber.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/admin/ping", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			resp, err := newApp(tc.configured).Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.want, resp.StatusCode)
		})
	}
}
