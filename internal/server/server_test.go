package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/viralscript/viralscript/internal/config"
	"github.com/viralscript/viralscript/internal/logging"
	"github.com/viralscript/viralscript/internal/netaddr"
	"github.com/viralscript/viralscript/internal/routes"
)

func testConfig() config.Config {
	return config.Config{
		AppName:               "viralscript-test",
		AppEnv:                "test",
		AdminToken:            "admin-secret",
		IdempotencyTTL:        time.Minute,
		OTPTTL:                5 * time.Minute,
		OTPDigits:             6,
		OTPHashCost:           4,
		OTPEchoCodes:          true,
		OTPRequestsPerMin:     5,
		SessionTTL:            time.Hour,
		AddressResolveTimeout: time.Second,
		GenerationCost:        10,
		AdRewardCredits:       10,
		RefillCredits:         20,
	}
}

// newTestApp serves requests from app.Test's unspecified peer, so sign-ups
// are bound to the resolver's 203.0.113.9.
func newTestApp(t *testing.T, cache *redis.Client) *fiber.App {
	t.Helper()
	return buildApp(t, testConfig(), cache, netaddr.Static("203.0.113.9"))
}

func buildApp(t *testing.T, cfg config.Config, cache *redis.Client, resolver netaddr.Resolver) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	app := NewApp(cfg, logger)
	require.NoError(t, routes.Setup(app, routes.Deps{Cfg: cfg, Cache: cache, Logger: logger, Resolver: resolver}))
	return app
}

type call struct {
	method  string
	path    string
	token   string
	body    any
	headers map[string]string
}

func do(t *testing.T, app *fiber.App, c call) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, err := json.Marshal(c.body)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set("X-Session-Token", c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, identifier string) (int, map[string]any) {
	t.Helper()
	return loginWith(t, app, identifier, nil)
}

func loginWith(t *testing.T, app *fiber.App, identifier string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	status, body := do(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/otp/request", body: map[string]string{"identifier": identifier}, headers: headers})
	require.Equal(t, fiber.StatusAccepted, status)
	code, ok := body["code"].(string)
	require.True(t, ok, "code must be echoed in test config")

	return do(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/otp/verify", body: map[string]string{"identifier": identifier, "code": code}, headers: headers})
}

func forwardedFor(addr string) map[string]string {
	return map[string]string{fiber.HeaderXForwardedFor: addr}
}

func balanceOf(body map[string]any) float64 {
	user, _ := body["user"].(map[string]any)
	v, _ := user["credits_balance"].(float64)
	return v
}

func TestCreditFlowOverHTTP(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := login(t, app, "A@B.com")
	require.Equal(t, fiber.StatusOK, status, body)
	token, _ := body["session_token"].(string)
	require.NotEmpty(t, token)
	require.Equal(t, float64(100), balanceOf(body))
	require.Equal(t, "Free", body["user"].(map[string]any)["user_type"])
	require.Equal(t, "a@b.com", body["user"].(map[string]any)["email"])

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/generate", token: token, body: map[string]string{"topic": "cold brew", "platform": "tiktok"}})
	require.Equal(t, fiber.StatusCreated, status, body)
	require.Equal(t, float64(90), balanceOf(body))

	status, body = do(t, app, call{method: fiber.MethodGet, path: "/api/v1/session", token: token})
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, float64(90), balanceOf(body), "session must follow the ledger")

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/tier", token: token, body: map[string]string{"tier": "pro", "payment_ref": "pay_1"}})
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, float64(2090), balanceOf(body))

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/ad-reward", token: token, body: map[string]string{"reference": "ad-1"}})
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, float64(2100), balanceOf(body))

	status, _ = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/ad-reward", token: token, body: map[string]string{"reference": "ad-1"}})
	require.Equal(t, fiber.StatusConflict, status)

	status, _ = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/adjust", token: token, body: map[string]any{"delta": -2100}})
	require.Equal(t, fiber.StatusForbidden, status)

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/adjust", token: token, body: map[string]any{"delta": -2100},
		headers: map[string]string{"X-Admin-Token": "admin-secret"}})
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, float64(0), balanceOf(body))

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/generate", token: token, body: map[string]string{"topic": "cold brew"}})
	require.Equal(t, fiber.StatusPaymentRequired, status)
	require.Equal(t, "insufficient credits", body["error"])

	status, body = do(t, app, call{method: fiber.MethodGet, path: "/api/v1/credits/history?limit=10", token: token})
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, body["entries"], 4)

	status, _ = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/logout", token: token})
	require.Equal(t, fiber.StatusOK, status)

	status, _ = do(t, app, call{method: fiber.MethodGet, path: "/api/v1/session", token: token})
	require.Equal(t, fiber.StatusUnauthorized, status)
}

func TestSecondIdentityFromSameAddressForbidden(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := login(t, app, "first@example.com")
	require.Equal(t, fiber.StatusOK, status)

	status, body := login(t, app, "+15550100")
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "multiple accounts detected from this device", body["error"])

	// The existing identity still signs in from the same address.
	status, _ = login(t, app, "first@example.com")
	require.Equal(t, fiber.StatusOK, status)
}

func TestWrongCodeUnauthorized(t *testing.T) {
	app := newTestApp(t, nil)

	status, _ := do(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/otp/request", body: map[string]string{"identifier": "a@b.com"}})
	require.Equal(t, fiber.StatusAccepted, status)

	status, body := do(t, app, call{method: fiber.MethodPost, path: "/api/v1/auth/otp/verify", body: map[string]string{"identifier": "a@b.com", "code": "x"}})
	require.Equal(t, fiber.StatusUnauthorized, status)
	require.Equal(t, "invalid or expired code", body["error"])
}

func TestRedisBackedStores(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	app := newTestApp(t, cache)

	status, body := login(t, app, "a@b.com")
	require.Equal(t, fiber.StatusOK, status, body)
	token := body["session_token"].(string)
	require.True(t, mr.Exists("session:v1:"+token))

	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/refill", token: token,
		body: map[string]string{"reference": "refill-1"}, headers: map[string]string{"Idempotency-Key": "k1"}})
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, float64(120), balanceOf(body))

	// Replayed with the same key: served from the idempotency cache, not a 409.
	status, body = do(t, app, call{method: fiber.MethodPost, path: "/api/v1/credits/refill", token: token,
		body: map[string]string{"reference": "refill-1"}, headers: map[string]string{"Idempotency-Key": "k1"}})
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, float64(120), balanceOf(body))

	status, _ = do(t, app, call{method: fiber.MethodGet, path: "/healthz"})
	require.Equal(t, fiber.StatusOK, status)
}

func TestResolverBindsSignupWithoutCallerAddress(t *testing.T) {
	var calls atomic.Int32
	resolver := netaddr.ResolverFunc(func(context.Context) (string, error) {
		calls.Add(1)
		return "203.0.113.9", nil
	})
	app := buildApp(t, testConfig(), nil, resolver)

	status, body := login(t, app, "a@b.com")
	require.Equal(t, fiber.StatusOK, status, body)
	require.Equal(t, int32(1), calls.Load())

	// Returning identities are found before any address check.
	status, _ = login(t, app, "a@b.com")
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, int32(1), calls.Load())
}

func TestForwardedClientsAreDistinctDevices(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyHeader = fiber.HeaderXForwardedFor
	cfg.TrustedProxies = []string{"0.0.0.0"}
	resolver := netaddr.ResolverFunc(func(context.Context) (string, error) {
		t.Error("resolver must not be consulted when the proxy names the client")
		return "", errors.New("unexpected resolve")
	})
	app := buildApp(t, cfg, nil, resolver)

	status, body := loginWith(t, app, "first@example.com", forwardedFor("198.51.100.1"))
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = loginWith(t, app, "second@example.com", forwardedFor("198.51.100.2, 10.0.0.1"))
	require.Equal(t, fiber.StatusOK, status, body)

	status, body = loginWith(t, app, "third@example.com", forwardedFor("198.51.100.1"))
	require.Equal(t, fiber.StatusForbidden, status)
	require.Equal(t, "multiple accounts detected from this device", body["error"])
}

func TestForwardedHeaderIgnoredFromUntrustedPeer(t *testing.T) {
	cfg := testConfig()
	cfg.ProxyHeader = fiber.HeaderXForwardedFor
	cfg.TrustedProxies = []string{"10.0.0.1"}
	app := buildApp(t, cfg, nil, netaddr.Static("203.0.113.9"))

	status, body := loginWith(t, app, "first@example.com", forwardedFor("198.51.100.1"))
	require.Equal(t, fiber.StatusOK, status, body)

	// A spoofed header from an untrusted peer does not make a new device.
	status, _ = loginWith(t, app, "second@example.com", forwardedFor("198.51.100.2"))
	require.Equal(t, fiber.StatusForbidden, status)
}
