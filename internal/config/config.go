package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is assembled once at startup from the environment. A local .env
// file is honored for development; real deployments set the variables
// directly.
type Config struct {
	ListenAddr  string
	DatabaseURL string

	// Origin of the booking portal. Overridable so tests and staging can
	// point the whole stack at a fake.
	PortalBaseURL string

	CookieHashKey  []byte
	CookieBlockKey []byte

	// 32 bytes, AES-256-GCM, protects member credentials at rest.
	CredEncKey []byte

	// Scheduler reconciliation interval.
	PollInterval time.Duration

	DevMode bool
}

func FromEnv() (Config, error) {
	// Best effort; absence of a .env file is the normal production case.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:    envDefault("LISTEN_ADDR", ":8080"),
		DatabaseURL:   strings.TrimSpace(os.Getenv("DATABASE_URL")),
		PortalBaseURL: envDefault("PORTAL_BASE_URL", "https://members.brsgolf.com"),
		DevMode:       strings.TrimSpace(os.Getenv("DEV_MODE")) == "1",
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	pollSec, err := strconv.Atoi(envDefault("SCHED_POLL_SECONDS", "5"))
	if err != nil || pollSec < 1 {
		return Config{}, fmt.Errorf("invalid SCHED_POLL_SECONDS")
	}
	cfg.PollInterval = time.Duration(pollSec) * time.Second

	if cfg.CookieHashKey, err = mustB64("COOKIE_HASH_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.CookieBlockKey, err = mustB64("COOKIE_BLOCK_KEY"); err != nil {
		return Config{}, err
	}
	if cfg.CredEncKey, err = mustB64("CRED_ENC_KEY"); err != nil {
		return Config{}, err
	}
	if len(cfg.CredEncKey) != 32 {
		return Config{}, fmt.Errorf("CRED_ENC_KEY must decode to 32 bytes (got %d)", len(cfg.CredEncKey))
	}

	return cfg, nil
}

func envDefault(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	// Allow pointing at a file for secret mounts.
	if b, err := os.ReadFile(v); err == nil {
		v = strings.TrimSpace(string(b))
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
