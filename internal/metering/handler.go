package metering

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
	"github.com/viralscript/viralscript/internal/middleware"
)

// Handler exposes the metered generation and grant endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a metering handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Generate produces a script and charges the session's user for it.
func (h *Handler) Generate(c *fiber.Ctx) error {
	current, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	result, err := h.service.Generate(c.UserContext(), current.ID, Request{
		Topic:    req.Topic,
		Platform: req.Platform,
		Tone:     req.Tone,
		Language: req.Language,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			return fiber.NewError(http.StatusPaymentRequired, err.Error())
		case errors.Is(err, ErrTopicRequired):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return ledger.HTTPError(err)
		}
	}
	if err := middleware.Resync(c, result.User); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.Status(http.StatusCreated).JSON(GenerateResponse{
		Script: toScriptResponse(result.Script),
		User:   result.User.Profile(),
	})
}

// RewardAd credits a watched ad.
func (h *Handler) RewardAd(c *fiber.Ctx) error {
	return h.grant(c, h.service.RewardAd)
}

// Refill credits an ad-funded refill.
func (h *Handler) Refill(c *fiber.Ctx) error {
	return h.grant(c, h.service.Refill)
}

func (h *Handler) grant(c *fiber.Ctx, fn func(ctx context.Context, userID, ref string) (identity.User, error)) error {
	current, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	var req GrantRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	user, err := fn(c.UserContext(), current.ID, req.Reference)
	if err != nil {
		if errors.Is(err, ErrReferenceRequired) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return ledger.HTTPError(err)
	}
	if err := middleware.Resync(c, user); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": user.Profile()})
}
