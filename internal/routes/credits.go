package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/billing"
	"github.com/viralscript/viralscript/internal/ledger"
	"github.com/viralscript/viralscript/internal/metering"
	"github.com/viralscript/viralscript/internal/middleware"
)

// RegisterCreditRoutes wires balance, grant and tier endpoints. Mutations
// pass through the idempotency middleware when one is supplied.
func RegisterCreditRoutes(r fiber.Router, lh *ledger.Handler, mh *metering.Handler, bh *billing.Handler, adminToken string, idempotency fiber.Handler) {
	credits := r.Group("/credits")
	if idempotency != nil {
		credits.Use(idempotency)
	}
	credits.Get("/balance", lh.Balance)
	credits.Get("/history", lh.History)
	credits.Get("/plans", bh.Plans)
	credits.Post("/adjust", middleware.AdminOnly(adminToken), lh.Adjust)
	credits.Post("/tier", bh.Upgrade)
	credits.Post("/ad-reward", mh.RewardAd)
	credits.Post("/refill", mh.Refill)
}

// RegisterGenerationRoutes wires the metered generation endpoint.
func RegisterGenerationRoutes(r fiber.Router, h *metering.Handler) {
	r.Post("/generate", h.Generate)
}
