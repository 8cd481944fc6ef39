package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer    string // Required: issuer claim for tokens
	Algorithm string // Optional: JWT signing algorithm (ES256, EdDSA) (default: EdDSA)

	DatabaseFile string // Optional: path to SQLite database file (default: ./oauth2d.db)
	RedisAddr    string // Optional: Redis address; empty selects the in-memory stores

	AccessTokenTTL   time.Duration // Optional: access token lifetime (default: 1h)
	RefreshTokenTTL  time.Duration // Optional: refresh token lifetime (default: 720h)
	AuthCodeTTL      time.Duration // Optional: authorization code lifetime (default: 5m)
	MFAChallengeTTL  time.Duration // Optional: MFA challenge lifetime (default: 2m)
	RequirePKCE      bool          // Optional: force PKCE for public clients (default: true)
	MaxLoginFailures int           // Optional: failures before lockout (default: 10)
	LockoutDuration  time.Duration // Optional: lockout length (default: 15m)

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
	TokenSweepInterval  time.Duration // Expired token sweep interval (default: 1h)
	CodeSweepInterval   time.Duration // Expired code sweep interval (default: 15m)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "oauth2d"),
		Algorithm: getEnvOrDefault("AUTH_ALGORITHM", "EdDSA"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "oauth2d.db"),
		RedisAddr:    os.Getenv("AUTH_REDIS_ADDR"),

		AccessTokenTTL:   getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", time.Hour),
		RefreshTokenTTL:  getEnvDurationOrDefault("AUTH_REFRESH_TOKEN_TTL", 30*24*time.Hour),
		AuthCodeTTL:      getEnvDurationOrDefault("AUTH_CODE_TTL", 5*time.Minute),
		MFAChallengeTTL:  getEnvDurationOrDefault("AUTH_MFA_CHALLENGE_TTL", 2*time.Minute),
		RequirePKCE:      getEnvBoolOrDefault("AUTH_REQUIRE_PKCE", true),
		MaxLoginFailures: getEnvIntOrDefault("AUTH_MAX_LOGIN_FAILURES", 10),
		LockoutDuration:  getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 15*time.Minute),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		TokenSweepInterval:  getEnvDurationOrDefault("TOKEN_SWEEP_INTERVAL", time.Hour),
		CodeSweepInterval:   getEnvDurationOrDefault("CODE_SWEEP_INTERVAL", 15*time.Minute),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	return defaultValue
}
