package middleware

import (
	"net"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/netaddr"
)

// CallerAddress records the request's client IP on the user context so
// address-based checks see the caller rather than this process. Unspecified
// peers (0.0.0.0, ::) carry no caller identity and fall through to the
// configured resolver.
func CallerAddress() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if parsed := net.ParseIP(ip); parsed != nil && !parsed.IsUnspecified() {
			c.SetUserContext(netaddr.WithCaller(c.UserContext(), parsed.String()))
		}
		return c.Next()
	}
}
