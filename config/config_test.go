package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creastat/assistant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("DATA_DIR", "/var/lib/assistantd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.QuotaStore)
	assert.Equal(t, "supabase", cfg.TenantStore)
	assert.Equal(t, "user-files", cfg.SupabaseBucket)
	assert.Equal(t, 5*time.Minute, cfg.TenantCacheTTL)
	assert.Equal(t, time.Hour, cfg.SweepInterval)
	assert.Equal(t, "/var/lib/assistantd/staging", cfg.StagingDir)
	assert.Equal(t, "/var/lib/assistantd/assistant.db", cfg.DatabasePath())
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", t.TempDir())
	// Registered so t.Setenv restores the prior state after godotenv sets them.
	t.Setenv("GEMINI_API_KEYS", "")
	t.Setenv("QUOTA_STORE", "")
	require.NoError(t, os.Unsetenv("GEMINI_API_KEYS"))
	require.NoError(t, os.Unsetenv("QUOTA_STORE"))

	env := "GEMINI_API_KEYS=k1,k2\nQUOTA_STORE=redis\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, cfg.GeminiKeys)
	assert.Equal(t, "redis", cfg.QuotaStore)
}

func validConfig() *Config {
	return &Config{
		TenantStore:       "memory",
		QuotaStore:        "memory",
		ConversationStore: "memory",
		GeminiKeys:        []string{"k"},
		SupabaseURL:       "https://project.supabase.co",
		SupabaseKey:       "service-key",
		Timezone:          "UTC",
		SweepInterval:     time.Hour,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown quota store", func(c *Config) { c.QuotaStore = "etcd" }, "QUOTA_STORE"},
		{"redis without addr", func(c *Config) { c.ConversationStore = "redis" }, "REDIS_ADDR"},
		{"supabase without secrets", func(c *Config) { c.SupabaseKey = "" }, "SUPABASE_URL"},
		{"no gemini keys", func(c *Config) { c.GeminiKeys = nil }, "GEMINI_API_KEYS"},
		{"half google creds", func(c *Config) { c.GoogleClientID = "id" }, "GOOGLE_CLIENT_SECRET"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "DISPLAY_TIMEZONE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, assistant.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDriveEnabled(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.DriveEnabled())
	cfg.GoogleClientID, cfg.GoogleClientSecret = "id", "secret"
	assert.True(t, cfg.DriveEnabled())
}

func TestStateSecretFallsBackToClientSecret(t *testing.T) {
	cfg := validConfig()
	cfg.GoogleClientSecret = "client-secret"
	assert.Equal(t, []byte("client-secret"), cfg.StateSecret())

	cfg.OAuthStateSecret = "state-secret"
	assert.Equal(t, []byte("state-secret"), cfg.StateSecret())
}
