// Package config loads assistantd configuration from .env files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/creastat/assistant"
)

// Config holds the service configuration.
type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	PublicURL   string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"/"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"auto"`

	// Timezone is used to stamp conversation entries.
	Timezone string `env:"DISPLAY_TIMEZONE" envDefault:"UTC"`

	DataDir       string        `env:"DATA_DIR" envDefault:"./data"`
	StagingDir    string        `env:"STAGING_DIR"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1h"`

	TenantStore       string `env:"TENANT_STORE" envDefault:"supabase"`
	QuotaStore        string `env:"QUOTA_STORE" envDefault:"sqlite"`
	ConversationStore string `env:"CONVERSATION_STORE" envDefault:"sqlite"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SupabaseURL    string        `env:"SUPABASE_URL"`
	SupabaseKey    string        `env:"SUPABASE_KEY"`
	SupabaseBucket string        `env:"SUPABASE_BUCKET" envDefault:"user-files"`
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	DriveFolder        string `env:"DRIVE_FOLDER" envDefault:"RK AI Files"`
	// OAuthStateSecret signs Drive connect state; defaults to GoogleClientSecret.
	OAuthStateSecret string `env:"OAUTH_STATE_SECRET"`

	GeminiKeys  []string `env:"GEMINI_API_KEYS" envSeparator:","`
	GeminiModel string   `env:"GEMINI_MODEL" envDefault:"gemma-3-12b-it"`
	Persona     string   `env:"ASSISTANT_PERSONA"`

	DeAPIKey      string `env:"DEAPI_API_KEY"`
	HFToken       string `env:"HF_TOKEN"`
	AssemblyAIKey string `env:"ASSEMBLYAI_API_KEY"`
	YouTubeKey    string `env:"YOUTUBE_API_KEY"`
}

// Load reads the first .env file found, then parses the environment.
func Load() (*Config, error) {
	for _, path := range envPaths() {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			break
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = filepath.Join(cfg.DataDir, "staging")
	}
	return cfg, nil
}

// envPaths returns the .env locations checked by Load, in order.
func envPaths() []string {
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".env"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "assistantd", ".env"))
	}
	return paths
}

// Validate checks store selections and the secrets they need.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(oneOf(c.TenantStore, "supabase", "memory"), "TENANT_STORE must be supabase or memory")
	check(oneOf(c.QuotaStore, "memory", "redis", "sqlite"), "QUOTA_STORE must be memory, redis or sqlite")
	check(oneOf(c.ConversationStore, "memory", "redis", "sqlite", "object"), "CONVERSATION_STORE must be memory, redis, sqlite or object")

	if c.QuotaStore == "redis" || c.ConversationStore == "redis" {
		check(c.RedisAddr != "", "REDIS_ADDR is required for redis stores")
	}
	// Supabase Storage backs every artifact write, even for Drive tenants.
	check(c.SupabaseURL != "" && c.SupabaseKey != "", "SUPABASE_URL and SUPABASE_KEY are required")
	check(len(c.GeminiKeys) > 0, "GEMINI_API_KEYS needs at least one key")
	if (c.GoogleClientID == "") != (c.GoogleClientSecret == "") {
		problems = append(problems, "GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set together")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("DISPLAY_TIMEZONE %q: %v", c.Timezone, err))
	}
	check(c.SweepInterval > 0, "SWEEP_INTERVAL must be positive")

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", assistant.ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// DriveEnabled reports whether Drive OAuth credentials are configured.
func (c *Config) DriveEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// StateSecret returns the key used to sign OAuth state.
func (c *Config) StateSecret() []byte {
	if c.OAuthStateSecret != "" {
		return []byte(c.OAuthStateSecret)
	}
	return []byte(c.GoogleClientSecret)
}

// Location returns the display timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabasePath is the sqlite file shared by the sqlite stores.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "assistant.db")
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
