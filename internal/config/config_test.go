package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-dashboard/internal/models"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, cfg.Chain.TTL)
	assert.Equal(t, 3*time.Minute, cfg.Positions.PollInterval)
	assert.Equal(t, models.NIFTY, cfg.DefaultUnderlying())
	assert.Equal(t, []models.Underlying{models.NIFTY, models.SENSEX, models.BANKNIFTY}, cfg.Underlyings())
	assert.Equal(t, 25, cfg.LotSize(models.NIFTY))
	assert.Equal(t, 15, cfg.LotSize(models.BANKNIFTY))
	assert.Equal(t, 10, cfg.LotSize(models.SENSEX))
	assert.True(t, cfg.IsPaperMode())
	assert.Equal(t, "all", cfg.Notify.Level)
	assert.False(t, cfg.Notify.Webhook.Enabled)
}

func TestLoadWritesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// The written template must load back to the same settings.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Chain, again.Chain)
	assert.Equal(t, cfg.Notify, again.Notify)
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[chain]
ttl = "30s"
underlyings = ["BANKNIFTY", "NIFTY"]
default = "BANKNIFTY"

[orders.lot_sizes]
nifty = 75
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`
[kite]
api_key = "from-file"
`), 0600))

	t.Setenv("OPTDASH_BACKEND_URL", "http://backend:9000")
	t.Setenv("OPTDASH_CHAIN_TTL", "45s")
	t.Setenv("OPTDASH_WEBHOOK_URL", "http://hooks.local/optdash")
	t.Setenv("KITE_ACCESS_TOKEN", "token-from-env")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", cfg.Backend.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Chain.TTL)
	assert.Equal(t, models.BANKNIFTY, cfg.DefaultUnderlying())
	assert.Equal(t, 75, cfg.LotSize(models.NIFTY))
	assert.Equal(t, "from-file", cfg.Credentials.Kite.APIKey)
	assert.Equal(t, "token-from-env", cfg.Credentials.Kite.AccessToken)
	assert.True(t, cfg.Notify.Webhook.Enabled)
	assert.Equal(t, "http://hooks.local/optdash", cfg.Notify.Webhook.URL)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty backend", func(c *Config) { c.Backend.BaseURL = "" }},
		{"zero ttl", func(c *Config) { c.Chain.TTL = 0 }},
		{"unknown underlying", func(c *Config) { c.Chain.Underlyings = []string{"MIDCAP"} }},
		{"bad mode", func(c *Config) { c.Server.Mode = "live" }},
		{"negative hedge", func(c *Config) { c.Orders.HedgeStrikes = -1 }},
		{"bad notify level", func(c *Config) { c.Notify.Level = "loud" }},
		{"webhook without url", func(c *Config) { c.Notify.Webhook.Enabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestMaskCredential(t *testing.T) {
	assert.Equal(t, "", MaskCredential(""))
	assert.Equal(t, "***", MaskCredential("abc"))
	assert.Equal(t, "ab****", MaskCredential("abcdef"))
	assert.Equal(t, "abcd****mnop", MaskCredential("abcdefghmnop"))
}
