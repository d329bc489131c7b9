package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/middleware"
	"github.com/viralscript/viralscript/internal/otp"
)

// Handler exposes auth endpoints for code login, federated login and logout.
type Handler struct {
	svc       *Service
	echoCodes bool
}

// NewHandler constructs an auth handler. With echoCodes set the issued code
// is returned in the response body; this is for development only.
func NewHandler(svc *Service, echoCodes bool) *Handler {
	return &Handler{svc: svc, echoCodes: echoCodes}
}

type codeRequest struct {
	Identifier string `json:"identifier"`
}

type verifyRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type federatedRequest struct {
	Email string `json:"email"`
}

type loginResponse struct {
	SessionToken  string           `json:"session_token"`
	User          identity.Profile `json:"user"`
	EstablishedAt time.Time        `json:"established_at"`
}

// RequestCode issues a one-time code.
func (h *Handler) RequestCode(c *fiber.Ctx) error {
	var req codeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	id, code, err := h.svc.RequestCode(c.UserContext(), req.Identifier)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidIdentifier) || errors.Is(err, otp.ErrInvalidIdentifier) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	resp := fiber.Map{"status": "code_sent", "identifier": id.Value}
	if h.echoCodes {
		resp["code"] = code
	}
	return c.Status(http.StatusAccepted).JSON(resp)
}

// Verify exchanges a code for a session.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	login, err := h.svc.Verify(c.UserContext(), req.Identifier, req.Code)
	if err != nil {
		return loginError(err)
	}
	return c.Status(http.StatusOK).JSON(toLoginResponse(login))
}

// Federated signs in with a provider-verified email.
func (h *Handler) Federated(c *fiber.Ctx) error {
	var req federatedRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	login, err := h.svc.Federated(c.UserContext(), req.Email)
	if err != nil {
		return loginError(err)
	}
	return c.Status(http.StatusOK).JSON(toLoginResponse(login))
}

// Current returns the caller's session snapshot.
func (h *Handler) Current(c *fiber.Ctx) error {
	user, ok := middleware.SessionUser(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, "session expired")
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": user.Profile()})
}

// Refresh reloads the snapshot from the identity store.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	sess, err := h.svc.Refresh(c.UserContext(), middleware.SessionToken(c))
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			return fiber.NewError(http.StatusUnauthorized, "session expired")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"user": sess.User.Profile()})
}

// Logout ends the caller's session.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(c.UserContext(), middleware.SessionToken(c)); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

func loginError(err error) error {
	switch {
	case errors.Is(err, otp.ErrInvalidOrExpired):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrDuplicateDevice):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, identity.ErrInvalidIdentifier):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toLoginResponse(login Login) loginResponse {
	return loginResponse{
		SessionToken:  login.Token,
		User:          login.Session.User.Profile(),
		EstablishedAt: login.Session.EstablishedAt,
	}
}
