package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "ViralScript"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultOTPTTL           = 5 * time.Minute
	defaultOTPDigits        = 6
	defaultOTPHashCost      = 10
	defaultOTPPerMinute     = 5
	defaultSessionTTL       = 24 * time.Hour
	defaultResolverURL      = "https://api.ipify.org?format=json"
	defaultResolveTimeout   = 2 * time.Second
	defaultGenerationCost   = 10
	defaultAdRewardCredits  = 10
	defaultRefillCredits    = 20
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	idemTTLSecondsEnvVar    = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar        = "IDEMPOTENCY_TTL"
	otpTTLSecondsEnvVar     = "OTP_TTL_SECONDS"
	otpTTLDurEnvVar         = "OTP_TTL"
	sessionTTLSecondsEnvVar = "SESSION_TTL_SECONDS"
	sessionTTLDurEnvVar     = "SESSION_TTL"
	resolveSecondsEnvVar    = "ADDRESS_RESOLVE_TIMEOUT_SECONDS"
	resolveDurationEnvVar   = "ADDRESS_RESOLVE_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	AdminToken     string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	OTPTTL            time.Duration
	OTPDigits         int
	OTPHashCost       int
	OTPEchoCodes      bool
	OTPRequestsPerMin int

	SessionTTL time.Duration

	AddressResolverURL    string
	AddressResolveTimeout time.Duration

	// ProxyHeader names the header carrying the client address, such as
	// X-Forwarded-For. It is honored only for peers in TrustedProxies; with
	// no trusted proxies listed, every peer is trusted.
	ProxyHeader    string
	TrustedProxies []string

	GenerationCost  int64
	AdRewardCredits int64
	RefillCredits   int64
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:            getEnv("APP_NAME", defaultAppName),
		AppEnv:             strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:               getEnv("PORT", defaultPort),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		AddressResolverURL: getEnv("ADDRESS_RESOLVER_URL", defaultResolverURL),
		ProxyHeader:        os.Getenv("PROXY_HEADER"),
		TrustedProxies:     getList("TRUSTED_PROXIES"),
	}

	var err error
	if cfg.ShutdownPeriod, err = getDuration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = getDuration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.OTPTTL, err = getDuration(otpTTLSecondsEnvVar, otpTTLDurEnvVar, defaultOTPTTL); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = getDuration(sessionTTLSecondsEnvVar, sessionTTLDurEnvVar, defaultSessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.AddressResolveTimeout, err = getDuration(resolveSecondsEnvVar, resolveDurationEnvVar, defaultResolveTimeout); err != nil {
		return Config{}, err
	}

	if cfg.OTPDigits, err = getInt("OTP_DIGITS", defaultOTPDigits); err != nil {
		return Config{}, err
	}
	if cfg.OTPDigits < 4 || cfg.OTPDigits > 10 {
		return Config{}, fmt.Errorf("invalid OTP_DIGITS: %d is outside 4..10", cfg.OTPDigits)
	}
	if cfg.OTPHashCost, err = getInt("OTP_HASH_COST", defaultOTPHashCost); err != nil {
		return Config{}, err
	}
	if cfg.OTPRequestsPerMin, err = getInt("OTP_REQUESTS_PER_MINUTE", defaultOTPPerMinute); err != nil {
		return Config{}, err
	}
	if cfg.OTPEchoCodes, err = getBool("OTP_ECHO_CODES", true); err != nil {
		return Config{}, err
	}

	costs := []struct {
		key      string
		fallback int
		dst      *int64
	}{
		{"GENERATION_COST", defaultGenerationCost, &cfg.GenerationCost},
		{"AD_REWARD_CREDITS", defaultAdRewardCredits, &cfg.AdRewardCredits},
		{"REFILL_CREDITS", defaultRefillCredits, &cfg.RefillCredits},
	}
	for _, c := range costs {
		v, err := getInt(c.key, c.fallback)
		if err != nil {
			return Config{}, err
		}
		if v < 0 {
			return Config{}, fmt.Errorf("invalid %s: must not be negative", c.key)
		}
		*c.dst = int64(v)
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether in-memory stores may stand in for Postgres and Redis.
func (c Config) IsDevelopment() bool {
	switch c.AppEnv {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getList splits a comma-separated variable, dropping blank entries.
func getList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// getDuration prefers the integer-seconds variable and falls back to a Go duration string.
func getDuration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}
