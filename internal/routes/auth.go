package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/auth"
)

// RegisterAuthRoutes wires the public sign-in endpoints.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	if rateLimiter != nil {
		group.Post("/otp/request", rateLimiter, h.RequestCode)
	} else {
		group.Post("/otp/request", h.RequestCode)
	}
	group.Post("/otp/verify", h.Verify)
	group.Post("/federated", h.Federated)
}

// RegisterSessionRoutes wires endpoints that act on the caller's session.
func RegisterSessionRoutes(r fiber.Router, h *auth.Handler) {
	r.Get("/session", h.Current)
	r.Post("/session/refresh", h.Refresh)
	r.Post("/auth/logout", h.Logout)
}
