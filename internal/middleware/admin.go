package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

const adminTokenHeader = "X-Admin-Token"

// AdminOnly guards operator endpoints with a shared token. An empty token
// disables the endpoints entirely.
func AdminOnly(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return fiber.NewError(http.StatusForbidden, "admin endpoints are disabled")
		}
		given := c.Get(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			return fiber.NewError(http.StatusForbidden, "admin token required")
		}
		return c.Next()
	}
}
