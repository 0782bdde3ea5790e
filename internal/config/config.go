package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	SeedFile      string        // path to the prompt seed yaml (optional, empty = seeding disabled)
	SeedInterval  time.Duration // interval to re-read the seed file (default: 24h)
	SweepInterval time.Duration // interval of the default-mapping consistency sweep (default: 1h)

	// Tokens maps bearer tokens to a permission ("read" or "write").
	Tokens map[string]string

	CORSOrigins []string // origins allowed by CORS; "*" allows everything
	TrustProxy  bool     // true => trust X-Forwarded-For headers

	RateLimitBurst      int // token bucket burst per client IP
	RateLimitPerMin     int // refill per client IP per minute
	RateLimitMaxEntries int // bucket table cap

	// Redis
	RedisAddr             string        // ex: "localhost:6379"
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password, false => allow empty password
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold    int           // warn after this many attempts
}

func Load() *Config {
	cfg := &Config{
		// Server settings
		ListenPort:      getenv("PROMPTD_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("PROMPTD_SHUTDOWN_TIMEOUT", 5*time.Second),

		// Logging
		LogLevel:  getenv("PROMPTD_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PROMPTD_PRETTY_LOG", false),

		// Seeding and sweeping
		SeedFile:      getenv("PROMPTD_SEED_FILE", ""), // Optional, empty = seeding disabled
		SeedInterval:  mustDuration("PROMPTD_SEED_RELOAD_INTERVAL", 24*time.Hour),
		SweepInterval: mustDuration("PROMPTD_SWEEP_INTERVAL", time.Hour),

		// Access
		Tokens:      parseTokens(requireEnv("PROMPTD_API_TOKENS")),
		CORSOrigins: splitAndTrim(getenv("PROMPTD_CORS_ORIGINS", "")),
		TrustProxy:  mustBool("PROMPTD_TRUST_PROXY", false),

		RateLimitBurst:      getenvInt("PROMPTD_RATE_LIMIT_BURST", 20),
		RateLimitPerMin:     getenvInt("PROMPTD_RATE_LIMIT_PER_MIN", 120),
		RateLimitMaxEntries: getenvInt("PROMPTD_RATE_LIMIT_MAX_ENTRIES", 10_000),

		// Redis settings
		RedisAddr:             requireEnv("PROMPTD_REDIS_ADDR"),
		RedisUser:             getenv("PROMPTD_REDIS_USERNAME", "default"),
		RedisPasswordRequired: mustBool("PROMPTD_REDIS_PASSWORD_REQUIRED", true),
		RedisPassword:         getenv("PROMPTD_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("PROMPTD_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 5*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second),
		RedisWarnThreshold:    getenvInt("REDIS_WARN_THRESHOLD", 3),
	}

	// Validate Redis password configuration
	if cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("FATAL: PROMPTD_REDIS_PASSWORD is required when PROMPTD_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		cfgCopy.Tokens = map[string]string{"***REDACTED***": ""}
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// parseTokens parses "token=read,token2=write" into the permission table.
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		token, perm, ok := strings.Cut(pair, "=")
		if !ok {
			panic(fmt.Sprintf("FATAL: invalid PROMPTD_API_TOKENS entry %q, want token=read|write", pair))
		}
		token = strings.TrimSpace(token)
		perm = strings.TrimSpace(perm)
		if token == "" || (perm != "read" && perm != "write") {
			panic(fmt.Sprintf("FATAL: invalid PROMPTD_API_TOKENS entry %q, want token=read|write", pair))
		}
		tokens[token] = perm
	}
	if len(tokens) == 0 {
		panic("FATAL: PROMPTD_API_TOKENS defined no usable token")
	}
	return tokens
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
