package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultAppName           = "ArenaLedger"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultLogFormat         = "json"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultProfileCacheTTL   = 5 * time.Minute
	defaultDepositMin        = "100"
	defaultDepositMax        = "100000"
	defaultMaxPending        = 5
	defaultPageSize          = 20
	defaultHoldSweepSchedule = "@every 1m"
	defaultRequestRateLimit  = 10
	idemTTLSecondsEnvVar     = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar         = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar    = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar   = "SHUTDOWN_TIMEOUT"
	profileCacheTTLEnvVar    = "PROFILE_CACHE_TTL"
	depositMinEnvVar         = "DEPOSIT_MIN_AMOUNT"
	depositMaxEnvVar         = "DEPOSIT_MAX_AMOUNT"
	maxPendingEnvVar         = "MAX_PENDING_REQUESTS"
	pageSizeEnvVar           = "DEFAULT_PAGE_SIZE"
	requestRateLimitEnvVar   = "REQUEST_RATE_LIMIT"
	runMigrationsEnvVar      = "RUN_MIGRATIONS"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName           string
	AppEnv            string
	Port              string
	LogLevel          string
	LogFormat         string
	DatabaseURL       string
	RedisURL          string
	JWTSecret         string
	ShutdownPeriod    time.Duration
	IdempotencyTTL    time.Duration
	ProfileCacheTTL   time.Duration
	RunMigrations     bool
	HoldSweepSchedule string
	RequestRateLimit  int
	Ledger            LedgerConfig
}

// LedgerConfig holds the deposit workflow limits and listing defaults.
type LedgerConfig struct {
	DepositMin         decimal.Decimal
	DepositMax         decimal.Decimal
	MaxPendingRequests int
	DefaultPageSize    int
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory, when present, fills in unset variables.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		AppName:           getEnv("APP_NAME", defaultAppName),
		AppEnv:            getEnv("APP_ENV", defaultAppEnv),
		Port:              getEnv("PORT", defaultPort),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		LogFormat:         strings.ToLower(getEnv("LOG_FORMAT", defaultLogFormat)),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		ShutdownPeriod:    defaultShutdownDelay,
		IdempotencyTTL:    defaultIdempotencyTTL,
		ProfileCacheTTL:   defaultProfileCacheTTL,
		RunMigrations:     true,
		HoldSweepSchedule: getEnv("HOLD_SWEEP_SCHEDULE", defaultHoldSweepSchedule),
		RequestRateLimit:  defaultRequestRateLimit,
		Ledger: LedgerConfig{
			DepositMin:         decimal.RequireFromString(defaultDepositMin),
			DepositMax:         decimal.RequireFromString(defaultDepositMax),
			MaxPendingRequests: defaultMaxPending,
			DefaultPageSize:    defaultPageSize,
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationFromEnv(shutdownSecondsEnvVar, shutdownDurationEnvVar, cfg.ShutdownPeriod); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = durationFromEnv(idemTTLSecondsEnvVar, idemTTLDurEnvVar, cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.ProfileCacheTTL, err = durationFromEnv("", profileCacheTTLEnvVar, cfg.ProfileCacheTTL); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(runMigrationsEnvVar); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", runMigrationsEnvVar, err)
		}
		cfg.RunMigrations = b
	}

	if cfg.RequestRateLimit, err = intFromEnv(requestRateLimitEnvVar, cfg.RequestRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.MaxPendingRequests, err = intFromEnv(maxPendingEnvVar, cfg.Ledger.MaxPendingRequests); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.DefaultPageSize, err = intFromEnv(pageSizeEnvVar, cfg.Ledger.DefaultPageSize); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.DepositMin, err = decimalFromEnv(depositMinEnvVar, cfg.Ledger.DepositMin); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.DepositMax, err = decimalFromEnv(depositMaxEnvVar, cfg.Ledger.DepositMax); err != nil {
		return Config{}, err
	}
	if cfg.Ledger.DepositMin.GreaterThan(cfg.Ledger.DepositMax) {
		return Config{}, fmt.Errorf("%s must not exceed %s", depositMinEnvVar, depositMaxEnvVar)
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}

	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET must be set")
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if secondsKey != "" {
		if v := os.Getenv(secondsKey); v != "" {
			seconds, err := strconv.Atoi(v)
			if err != nil {
				return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
			}
			return time.Duration(seconds) * time.Second, nil
		}
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

func intFromEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return n, nil
}

func decimalFromEnv(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}
