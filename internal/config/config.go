package config

import (
	"time"

	"github.com/joho/godotenv"

	pkgconfig "github.com/fresh-motors/gateway/pkg/config"
)

// Config holds the runtime configuration for the gateway.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "fm-gateway"
	Env         string // e.g. "dev", "staging", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // gateway HTTP port

	BackendBaseURL string        // Fresh Motors REST backend, e.g. https://api.freshmotors.com
	RefreshTimeout time.Duration // upper bound on a single token refresh call
	RequestTimeout time.Duration // outbound HTTP client timeout

	RedisAddr string // e.g. localhost:6379
	RedisDB   int
	RedisPass string

	DatabaseURL string // Postgres for telemetry beacons; empty disables the sink
	NATSURL     string // e.g. nats://localhost:4222

	AWSRegion     string // for AWS SDK client
	ServiceSecret string // Secrets Manager key holding the backend service credentials

	AccessCookieMaxAge  time.Duration // browser lifetime of the access_token cookie
	RefreshCookieMaxAge time.Duration // browser lifetime of the refresh_token cookie
	SecureCookies       bool          // set the Secure attribute (HTTPS deployments)

	SessionTTL  time.Duration // TTL for the Redis session mirror
	CleanupFreq time.Duration // frequency for the secrets-cache cleanup goroutine

	RateRPS   int // outbound requests per second to the backend
	RateBurst int

	EventSubject string // NATS subject for auth lifecycle events
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:         pkgconfig.GetEnv("SERVICE_NAME", "fm-gateway"),
		Env:                 pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:            pkgconfig.GetEnv("LOG_LEVEL", "info"),
		Port:                pkgconfig.GetEnvInt("PORT", 9100),
		BackendBaseURL:      pkgconfig.GetEnv("BACKEND_BASE_URL", "https://api.freshmotors.example"),
		RefreshTimeout:      pkgconfig.GetEnvDuration("REFRESH_TIMEOUT", 10*time.Second),
		RequestTimeout:      pkgconfig.GetEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RedisAddr:           pkgconfig.GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:             pkgconfig.GetEnvInt("REDIS_DB", 0),
		RedisPass:           pkgconfig.GetEnv("REDIS_PASS", ""),
		DatabaseURL:         pkgconfig.GetEnv("DATABASE_URL", ""),
		NATSURL:             pkgconfig.GetEnv("NATS_URL", "nats://localhost:4222"),
		AWSRegion:           pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		ServiceSecret:       pkgconfig.GetEnv("SERVICE_SECRET", ""),
		AccessCookieMaxAge:  pkgconfig.GetEnvDuration("ACCESS_COOKIE_MAX_AGE", 7*24*time.Hour),
		RefreshCookieMaxAge: pkgconfig.GetEnvDuration("REFRESH_COOKIE_MAX_AGE", 30*24*time.Hour),
		SecureCookies:       pkgconfig.GetEnvBool("SECURE_COOKIES", true),
		SessionTTL:          pkgconfig.GetEnvDuration("SESSION_TTL", 30*24*time.Hour),
		CleanupFreq:         pkgconfig.GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
		RateRPS:             pkgconfig.GetEnvInt("RATE_RPS", 20),
		RateBurst:           pkgconfig.GetEnvInt("RATE_BURST", 40),
		EventSubject:        pkgconfig.GetEnv("EVENT_SUBJECT", "evt.fm.auth"),
	}

	return cfg
}
