package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/middleware"
)

// Handler exposes balance endpoints for the session's user.
type Handler struct {
	service *Service
}

// NewHandler constructs a ledger handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type adjustRequest struct {
	UserID string `json:"user_id"`
	Delta  int64  `json:"delta"`
}

type entryResponse struct {
	ID           string    `json:"id"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	Reason       Reason    `json:"reason"`
	Reference    string    `json:"reference,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Adjust applies an operator adjustment. The target defaults to the
// session's user.
func (h *Handler) Adjust(c *fiber.Ctx) error {
	var req adjustRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.UserID == "" {
		if u, ok := middleware.SessionUser(c); ok {
			req.UserID = u.ID
		}
	}
	if req.UserID == "" {
		return fiber.NewError(http.StatusBadRequest, "user_id is required")
	}

	user, err := h.service.AdjustBalance(c.UserContext(), req.UserID, req.Delta)
	if err != nil {
		return HTTPError(err)
	}
	if err := middleware.Resync(c, user); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": user.Profile()})
}

// Balance returns the stored balance and refreshes the session with it.
func (h *Handler) Balance(c *fiber.Ctx) error {
	current, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	user, err := h.service.Balance(c.UserContext(), current.ID)
	if err != nil {
		return HTTPError(err)
	}
	if err := middleware.Resync(c, user); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"credits_balance": user.CreditsBalance,
		"user_type":       user.UserType,
	})
}

// History lists recent journal entries, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	current, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	entries, err := h.service.History(c.UserContext(), current.ID, limit)
	if err != nil {
		return HTTPError(err)
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID,
			Delta:        e.Delta,
			BalanceAfter: e.BalanceAfter,
			Reason:       e.Reason,
			Reference:    e.Reference,
			CreatedAt:    e.CreatedAt,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"entries": out})
}

// HTTPError maps ledger and identity errors to responses.
func HTTPError(err error) error {
	switch {
	case errors.Is(err, identity.ErrUnknownUser):
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	case errors.Is(err, ErrDuplicateTransaction):
		return fiber.NewError(http.StatusConflict, "duplicate transaction")
	case errors.Is(err, ErrInvalidTier):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
