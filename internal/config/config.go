package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nexushub.org/internal/auth"
)

// Config holds process-wide settings. Everything is read once at startup
// from the environment and never mutated afterwards.
type Config struct {
	HTTPAddr string
	PGDSN    string

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Argon2 auth.Argon2Params

	RateLimitPerSecond int
	RateLimitBurst     int
	MaxBodyBytes       int64
}

const minSecretLength = 32

// Load reads configuration from the environment, applying defaults.
// The JWT secret is required and must be at least 32 bytes.
func Load() (Config, error) {
	cfg := Config{
		HTTPAddr:   getenv("NEXUSHUB_HTTP_ADDR", ":8080"),
		PGDSN:      os.Getenv("NEXUSHUB_PG_DSN"),
		JWTSecret:  strings.TrimSpace(os.Getenv("NEXUSHUB_JWT_SECRET")),
		Issuer:     getenv("NEXUSHUB_JWT_ISSUER", "nexushub"),
		AccessTTL:  getduration("NEXUSHUB_ACCESS_TTL", 60*time.Minute),
		RefreshTTL: getduration("NEXUSHUB_REFRESH_TTL", 30*24*time.Hour),
		Argon2: auth.Argon2Params{
			Time:        uint32(getint("NEXUSHUB_ARGON2_TIME", 2)),
			Memory:      uint32(getint("NEXUSHUB_ARGON2_MEMORY_KB", 64*1024)),
			Parallelism: uint8(getint("NEXUSHUB_ARGON2_PARALLELISM", 4)),
		},
		RateLimitPerSecond: getint("NEXUSHUB_RATE_LIMIT_PER_SECOND", 50),
		RateLimitBurst:     getint("NEXUSHUB_RATE_LIMIT_BURST", 100),
		MaxBodyBytes:       int64(getint("NEXUSHUB_MAX_BODY_BYTES", 1<<20)),
	}
	if cfg.JWTSecret == "" {
		return Config{}, errors.New("NEXUSHUB_JWT_SECRET is required")
	}
	if len(cfg.JWTSecret) < minSecretLength {
		return Config{}, fmt.Errorf("NEXUSHUB_JWT_SECRET must be at least %d bytes", minSecretLength)
	}
	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getint(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
