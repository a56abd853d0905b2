package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for accountd.
type Config struct {
	// Root address of the account server: scheme+host+port, no path.
	ServerURL string `env:"ACCOUNT_SERVER_URL"`

	// Credentials for the password grant. When empty, the daemon only
	// reports that authentication is required; it never authenticates
	// on its own.
	Username string `env:"ACCOUNT_USERNAME"`
	Password string `env:"ACCOUNT_PASSWORD"`

	// Settings database location. Defaults to ~/.accountd/state.db.
	StateDB string `env:"ACCOUNT_STATE_DB"`

	// How often the daemon exercises the stored token with an
	// authenticated profile request.
	ProfileRefresh time.Duration `env:"PROFILE_REFRESH" envDefault:"5m"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("ACCOUNT_SERVER_URL is required")
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("ACCOUNT_SERVER_URL is not a valid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("ACCOUNT_SERVER_URL must use http or https")
	}

	if u.Host == "" {
		return fmt.Errorf("ACCOUNT_SERVER_URL is missing a host")
	}

	// Stored tokens are keyed by scheme+host+port; a path here would
	// silently produce requests against the wrong endpoints.
	if u.Path != "" || u.RawQuery != "" {
		return fmt.Errorf("ACCOUNT_SERVER_URL must be a root address without path or query")
	}

	if (c.Username == "") != (c.Password == "") {
		return fmt.Errorf("ACCOUNT_USERNAME and ACCOUNT_PASSWORD must be set together")
	}

	if c.ProfileRefresh <= 0 {
		return fmt.Errorf("PROFILE_REFRESH must be positive")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
