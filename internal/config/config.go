package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	HTTPPort string
	LogLevel string

	BackendURL     string
	BackendTimeout time.Duration
	BackendPort    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	QueryStore        string
	QueryTTL          time.Duration
	QueryRetry        int
	QueryFetchTimeout time.Duration

	ReadyAttempts int
	ReadyDelay    time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration

	InquiryRateLimit  int
	InquiryRateWindow time.Duration
}

func NewConfig() *Config {
	return &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8081"),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 5*time.Second),
		BackendPort:    getEnv("BACKEND_PORT", "8081"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret"),

		QueryStore:        getEnv("QUERY_STORE", "memory"),
		QueryTTL:          getEnvDuration("QUERY_TTL", 5*time.Minute),
		QueryRetry:        getEnvInt("QUERY_RETRY", 0),
		QueryFetchTimeout: getEnvDuration("QUERY_FETCH_TIMEOUT", 10*time.Second),

		ReadyAttempts: getEnvInt("READY_ATTEMPTS", 5),
		ReadyDelay:    getEnvDuration("READY_DELAY", 500*time.Millisecond),

		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 5),
		BreakerTimeout:   getEnvDuration("BREAKER_TIMEOUT", 10*time.Second),

		InquiryRateLimit:  getEnvInt("INQUIRY_RATE_LIMIT", 10),
		InquiryRateWindow: getEnvDuration("INQUIRY_RATE_WINDOW", time.Minute),
	}
}

// UseRedis reports whether a Redis address was configured.
func (c *Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// LoadEnv reads .env.local into the process environment when APP_ENV is
// "local". Variables already set in the environment win.
func LoadEnv() {
	if os.Getenv("APP_ENV") != "local" {
		return
	}
	if err := godotenv.Load(".env.local"); err != nil {
		slog.Warn("Could not load .env.local, using process environment", "error", err)
		return
	}
	slog.Info("Loaded .env.local")
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("Invalid integer in environment, using default", "key", key, "value", value)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("Invalid duration in environment, using default", "key", key, "value", value)
		return fallback
	}
	return d
}
