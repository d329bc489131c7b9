package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/session"
)

const (
	// SessionTokenHeader carries the opaque token returned at login.
	SessionTokenHeader = "X-Session-Token"

	localSessionToken   = "session_token"
	localSessionManager = "session_manager"
	localSessionUser    = "session_user"
)

// RequireSession resolves the X-Session-Token header to an established
// session and exposes it to downstream handlers.
func RequireSession(registry *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := strings.TrimSpace(c.Get(SessionTokenHeader))
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing session token")
		}
		mgr := registry.For(token)
		current, ok, err := mgr.Current(c.UserContext())
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "session lookup failed")
		}
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "session expired")
		}

		c.Locals(localSessionToken, token)
		c.Locals(localSessionManager, mgr)
		c.Locals(localSessionUser, current.User)
		return c.Next()
	}
}

// SessionToken returns the token RequireSession accepted.
func SessionToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localSessionToken).(string)
	return token
}

// SessionUser returns the session snapshot's user.
func SessionUser(c *fiber.Ctx) (identity.User, bool) {
	user, ok := c.Locals(localSessionUser).(identity.User)
	return user, ok
}

// SessionManager returns the manager for the request's session.
func SessionManager(c *fiber.Ctx) (*session.Manager, bool) {
	mgr, ok := c.Locals(localSessionManager).(*session.Manager)
	return mgr, ok && mgr != nil
}

// Resync refreshes the request's session snapshot with the user returned by
// a ledger operation. It is a no-op outside RequireSession.
func Resync(c *fiber.Ctx, user identity.User) error {
	mgr, ok := SessionManager(c)
	if !ok {
		return nil
	}
	if _, err := mgr.Resync(c.UserContext(), user); err != nil {
		return err
	}
	c.Locals(localSessionUser, user)
	return nil
}
