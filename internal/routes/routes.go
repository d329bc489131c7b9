package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/viralscript/viralscript/internal/auth"
	"github.com/viralscript/viralscript/internal/billing"
	"github.com/viralscript/viralscript/internal/config"
	"github.com/viralscript/viralscript/internal/identity"
	"github.com/viralscript/viralscript/internal/ledger"
	"github.com/viralscript/viralscript/internal/metering"
	"github.com/viralscript/viralscript/internal/middleware"
	"github.com/viralscript/viralscript/internal/netaddr"
	"github.com/viralscript/viralscript/internal/notification"
	"github.com/viralscript/viralscript/internal/otp"
	"github.com/viralscript/viralscript/internal/session"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// may be nil in development, in which case memory stores are used. The
// optional collaborators default to the built-in stand-ins.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	Resolver  netaddr.Resolver
	Notifier  notification.Notifier
	Generator metering.Generator
	Gateway   billing.Gateway
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		return fmt.Errorf("logger is required")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))
	app.Use(middleware.CallerAddress())

	// Health
	RegisterHealthRoutes(app, d)

	// Stores
	var (
		identityRepo identity.Repository
		ledgerStore  ledger.Store
		codeStore    otp.Store
		sessionStore session.Store
	)
	if d.DB != nil {
		identityRepo = identity.NewPostgresRepository(d.DB)
		ledgerStore = ledger.NewPostgresLedger(d.DB)
	} else {
		mem := identity.NewMemoryRepository()
		identityRepo = mem
		ledgerStore = ledger.NewInMemory(mem)
	}
	if d.Cache != nil {
		codeStore = otp.NewRedisStore(d.Cache)
		sessionStore = session.NewRedisStore(d.Cache, d.Cfg.SessionTTL)
	} else {
		codeStore = otp.NewMemoryStore()
		sessionStore = session.NewMemoryStore()
	}

	// Services and handlers
	resolver := d.Resolver
	if resolver == nil {
		resolver = netaddr.NewPublicIPService(d.Cfg.AddressResolverURL, d.Cfg.AddressResolveTimeout)
	}
	resolver = netaddr.Bounded(netaddr.Caller(resolver), d.Cfg.AddressResolveTimeout)

	notifier := d.Notifier
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(d.Logger, !d.Cfg.IsDevelopment())
	}

	broker := otp.NewBroker(codeStore, notifier, otp.Config{
		TTL:      d.Cfg.OTPTTL,
		Digits:   d.Cfg.OTPDigits,
		HashCost: d.Cfg.OTPHashCost,
	})
	identitySvc := identity.NewService(identityRepo, resolver)
	sessions := session.NewRegistry(sessionStore)
	authSvc := auth.NewService(broker, identitySvc, sessions)

	ledgerSvc := ledger.NewService(ledgerStore)
	meteringSvc, err := metering.NewService(ledgerSvc, d.Generator, metering.Config{
		GenerationCost: d.Cfg.GenerationCost,
		AdReward:       d.Cfg.AdRewardCredits,
		RefillCredits:  d.Cfg.RefillCredits,
	})
	if err != nil {
		return err
	}
	billingSvc := billing.NewService(d.Gateway, ledgerSvc)

	authHandler := auth.NewHandler(authSvc, d.Cfg.OTPEchoCodes)
	ledgerHandler := ledger.NewHandler(ledgerSvc)
	meteringHandler := metering.NewHandler(meteringSvc)
	billingHandler := billing.NewHandler(billingSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.OTPRateLimit(d.Cache, d.Cfg.OTPRequestsPerMin)
	RegisterAuthRoutes(api, authHandler, rateLimiter)

	// Session routes
	protected := api.Group("", middleware.RequireSession(sessions))
	RegisterSessionRoutes(protected, authHandler)
	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterCreditRoutes(protected, ledgerHandler, meteringHandler, billingHandler, d.Cfg.AdminToken, idempotency)
	RegisterGenerationRoutes(protected, meteringHandler)

	return nil
}
