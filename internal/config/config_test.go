package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "BALANCED", cfg.ActiveMode)
	assert.Equal(t, "off", cfg.Execution.Channel)
	assert.Equal(t, "upstox", cfg.Execution.Broker)
	assert.False(t, cfg.IsLive())

	assert.Equal(t, 65, cfg.Risk.Quantity())
	assert.InDelta(t, -5000, cfg.Risk.DailyLossLimit(), 1e-9)
	assert.Equal(t, 5, cfg.Risk.MaxTradesPerDay)

	assert.Equal(t, "15:15", cfg.Exit.TimeExit)
	assert.Len(t, cfg.Exit.VIXRegimes, 5)
	assert.InDelta(t, 0.28, cfg.Exit.VIXRegimes["normal"].TrailDistance, 1e-9)

	mode := cfg.ActiveModeConfig()
	assert.Equal(t, 4, mode.MinConfluence)
	assert.InDelta(t, 0.80, mode.Alpha1Call, 1e-9)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	toml := `
active_mode = "RELAXED"

[risk]
position_size_lots = 2
lot_size = 65

[execution]
channel = "paper"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "RELAXED", cfg.ActiveMode)
	assert.Equal(t, 130, cfg.Risk.Quantity())
	assert.Equal(t, "paper", cfg.Execution.Channel)
	// Unset sections keep their defaults.
	assert.Equal(t, "15:15", cfg.Exit.TimeExit)
}

func TestLoadRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	toml := `
[execution]
channel = "yolo"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid execution channel")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("UPSTOX_ACCESS_TOKEN", "env-token")
	t.Setenv("EXECUTION_CHANNEL", "paper")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "env-token", cfg.Broker.Upstox.AccessToken)
	assert.Equal(t, "paper", cfg.Execution.Channel)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(t.TempDir())
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.ActiveMode = "SLOPPY" }, "invalid active_mode"},
		{"bad broker", func(c *Config) { c.Execution.Broker = "zerodha" }, "invalid broker"},
		{
			"live without token",
			func(c *Config) {
				c.Execution.Channel = "live"
				c.Broker.Upstox.AccessToken = ""
			},
			"access token",
		},
		{"zero lots", func(c *Config) { c.Risk.PositionSizeLots = 0 }, "position_size_lots"},
		{"positive max loss", func(c *Config) { c.Exit.MTMMaxLoss = 100 }, "mtm_max_loss"},
		{"bad protect pct", func(c *Config) { c.Exit.MTMProtectPct = 1.5 }, "mtm_protect_pct"},
		{"no regimes", func(c *Config) { c.Exit.VIXRegimes = nil }, "regime"},
		{
			"bad trail distance",
			func(c *Config) {
				band := c.Exit.VIXRegimes["normal"]
				band.TrailDistance = 1.2
				c.Exit.VIXRegimes["normal"] = band
			},
			"trail_distance",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestSaveActiveMode(t *testing.T) {
	dir := t.TempDir()
	toml := `
active_mode = "RELAXED"

[execution]
channel = "paper"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(toml), 0644))

	require.NoError(t, SaveActiveMode(dir, ModeStrict))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ModeStrict, cfg.ActiveMode)
	// The rest of the file survives the rewrite.
	assert.Equal(t, "paper", cfg.Execution.Channel)
}

func TestSaveActiveModeCreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")

	require.NoError(t, SaveActiveMode(dir, ModeRelaxed))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, ModeRelaxed, cfg.ActiveMode)
}
