// Package config loads server settings.
//
// PRECEDENCE (highest first):
//  1. command-line flags (-port, -db)
//  2. environment variables
//  3. a .env file in the working directory, if present
//  4. built-in defaults
//
// godotenv.Load never overrides a variable that is already set, which is
// what makes real environment variables win over the .env file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// MinSecretLength mirrors auth.NewTokenService's requirement.
const MinSecretLength = 16

type Config struct {
	Port      int
	DBPath    string
	StaticDir string
	LogLevel  string
	LogFormat string // "text" or "json"

	JWTSecret string
	// GeneratedSecret is true when JWT_SECRET was unset and a random one was
	// made up. Sessions then do not survive a restart.
	GeneratedSecret   bool
	SessionTTL        time.Duration
	ModeratorUsername string

	CORSOrigins []string

	NATSURL     string
	NATSSubject string

	RateLimitRPS   float64
	RateLimitBurst int

	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// GitHubEnabled reports whether both OAuth credentials are configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// Load reads configuration from a .env file, the environment and args
// (usually os.Args[1:]).
func Load(args []string) (Config, error) {
	// A missing .env file is normal in production.
	_ = godotenv.Load()
	return parse(args, os.Getenv)
}

func parse(args []string, getenv func(string) string) (Config, error) {
	var cfg Config
	var errs []error

	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	port, err := strconv.Atoi(env("PORT", "8080"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid PORT: %w", err))
	}
	cfg.Port = port
	cfg.DBPath = env("DB_PATH", "data/forum.db")
	cfg.StaticDir = env("STATIC_DIR", "")
	cfg.LogLevel = env("LOG_LEVEL", "info")
	cfg.LogFormat = env("LOG_FORMAT", "text")

	cfg.JWTSecret = env("JWT_SECRET", "")
	cfg.SessionTTL, err = time.ParseDuration(env("SESSION_TTL", "24h"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid SESSION_TTL: %w", err))
	}
	cfg.ModeratorUsername = env("MODERATOR_USERNAME", "mod")

	cfg.CORSOrigins = splitList(env("CORS_ORIGINS", ""))

	cfg.NATSURL = env("NATS_URL", "")
	cfg.NATSSubject = env("NATS_SUBJECT", "forum.events")

	cfg.RateLimitRPS, err = strconv.ParseFloat(env("RATE_LIMIT_RPS", "5"), 64)
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err))
	}
	cfg.RateLimitBurst, err = strconv.Atoi(env("RATE_LIMIT_BURST", "10"))
	if err != nil {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err))
	}

	cfg.GitHubClientID = env("GITHUB_CLIENT_ID", "")
	cfg.GitHubClientSecret = env("GITHUB_CLIENT_SECRET", "")
	cfg.GitHubCallbackURL = env("GITHUB_CALLBACK_URL", "")

	// Flags override the environment.
	fs := flag.NewFlagSet("xswarm-forum", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP port")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (or :memory:)")
	if err := fs.Parse(args); err != nil {
		errs = append(errs, fmt.Errorf("parsing flags: %w", err))
	}

	if cfg.GitHubCallbackURL == "" {
		cfg.GitHubCallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", cfg.Port)
	}

	if cfg.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			errs = append(errs, err)
		}
		cfg.JWTSecret = secret
		cfg.GeneratedSecret = true
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("DB_PATH must not be empty"))
	}
	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d characters", MinSecretLength))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPS must not be negative"))
	}
	if c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_BURST must not be negative"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	if (c.GitHubClientID == "") != (c.GitHubClientSecret == "") {
		errs = append(errs, errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
