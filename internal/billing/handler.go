package billing

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
	"github.com/viralscript/viralscript/internal/middleware"
)

// Handler exposes plan listing and upgrade confirmation.
type Handler struct {
	service *Service
}

// NewHandler constructs a billing handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type upgradeRequest struct {
	Tier       string `json:"tier"`
	PaymentRef string `json:"payment_ref"`
}

// Plans lists the purchasable tiers.
func (h *Handler) Plans(c *fiber.Ctx) error {
	plans := Plans()
	out := make([]fiber.Map, 0, len(plans))
	for _, p := range plans {
		out = append(out, fiber.Map{
			"tier":     p.Tier,
			"price":    p.Price,
			"currency": p.Currency,
			"bonus":    p.Bonus,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"plans": out})
}

// Upgrade confirms a payment and moves the session's user onto the tier.
// A replayed confirmation answers 200 with the current user.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	current, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	var req upgradeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	tier, err := identity.ParseTier(req.Tier)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := h.service.ConfirmUpgrade(c.UserContext(), UpgradeInput{
		UserID:     current.ID,
		Tier:       tier,
		PaymentRef: req.PaymentRef,
	})
	switch {
	case err == nil, errors.Is(err, ledger.ErrDuplicateTransaction):
	case errors.Is(err, ErrPaymentDeclined):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.Is(err, ErrNotUpgradable), errors.Is(err, ErrPaymentRefRequired):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return ledger.HTTPError(err)
	}

	if err := middleware.Resync(c, user); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": user.Profile()})
}
