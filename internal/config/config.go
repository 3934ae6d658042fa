// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Strictness modes, in cycle order.
const (
	ModeStrict   = "STRICT"
	ModeBalanced = "BALANCED"
	ModeRelaxed  = "RELAXED"
)

// Config holds all application configuration.
type Config struct {
	ActiveMode string                `mapstructure:"active_mode"` // STRICT, BALANCED, RELAXED
	Expiry     string                `mapstructure:"expiry"`      // YYYY-MM-DD, empty = nearest weekly
	Modes      map[string]ModeConfig `mapstructure:"modes"`
	Risk       RiskConfig            `mapstructure:"risk"`
	Exit       ExitConfig            `mapstructure:"exit"`
	Filters    FilterConfig          `mapstructure:"filters"`
	Timing     TimingConfig          `mapstructure:"timing"`
	Execution  ExecutionConfig       `mapstructure:"execution"`
	Broker     BrokerConfig          `mapstructure:"broker"`
	Telegram   TelegramConfig        `mapstructure:"telegram"`
	Store      StoreConfig           `mapstructure:"store"`
}

// ModeConfig holds the entry thresholds for one strictness mode.
type ModeConfig struct {
	Alpha1Call           float64 `mapstructure:"alpha_1_call"`
	Alpha1Put            float64 `mapstructure:"alpha_1_put"`
	Alpha2Call           float64 `mapstructure:"alpha_2_call"`
	Alpha2Put            float64 `mapstructure:"alpha_2_put"`
	MinConfidence        float64 `mapstructure:"min_confidence"`
	MinQualityScore      float64 `mapstructure:"min_quality_score"`
	MinConfluence        int     `mapstructure:"min_confluence"`
	VolumeRatioThreshold float64 `mapstructure:"volume_ratio_threshold"`
	OIChangeVelocity     float64 `mapstructure:"oi_change_velocity"`
	OIPersistenceBars    int     `mapstructure:"oi_persistence_bars"`
}

// RiskConfig holds position sizing and daily risk limits.
type RiskConfig struct {
	PositionSizeLots   int     `mapstructure:"position_size_lots"`
	LotSize            int     `mapstructure:"lot_size"`
	Capital            float64 `mapstructure:"capital"`
	MaxRiskPerTradePct float64 `mapstructure:"max_risk_per_trade_pct"`
	DailyLossLimitPct  float64 `mapstructure:"daily_loss_limit_pct"`
	MaxTradesPerDay    int     `mapstructure:"max_trades_per_day"`
	CooldownMinutes    int     `mapstructure:"cooldown_minutes"`
}

// Quantity returns the order quantity in units.
func (r RiskConfig) Quantity() int {
	return r.LotSize * r.PositionSizeLots
}

// DailyLossLimit returns the rupee loss limit derived from capital.
func (r RiskConfig) DailyLossLimit() float64 {
	return -(r.Capital * r.DailyLossLimitPct / 100)
}

// RegimeBand holds the risk parameters for one VIX regime.
type RegimeBand struct {
	MaxVIX          float64 `mapstructure:"max_vix"`
	InitialSLPct    float64 `mapstructure:"initial_sl_pct"`
	TrailActivation float64 `mapstructure:"trail_activation"`
	TrailDistance   float64 `mapstructure:"trail_distance"`
}

// ExitConfig holds exit rule parameters.
type ExitConfig struct {
	ProfitTargetPct   float64               `mapstructure:"profit_target_pct"`
	TimeExit          string                `mapstructure:"time_exit"` // HH:MM IST
	MTMMaxLoss        float64               `mapstructure:"mtm_max_loss"`
	MTMProtectTrigger float64               `mapstructure:"mtm_protect_trigger"`
	MTMProtectPct     float64               `mapstructure:"mtm_protect_pct"`
	MinHoldSeconds    int                   `mapstructure:"min_hold_seconds"`
	VIXRegimes        map[string]RegimeBand `mapstructure:"vix_regimes"`
}

// FilterConfig holds entry candidate filters.
type FilterConfig struct {
	MinOptionPrice     float64 `mapstructure:"min_option_price"`
	MaxOptionPrice     float64 `mapstructure:"max_option_price"`
	MinVolume          int64   `mapstructure:"min_volume"`
	MaxSpreadPct       float64 `mapstructure:"max_spread_pct"`
	MinATR14           float64 `mapstructure:"min_atr_14"`
	MinTrendStrength   float64 `mapstructure:"min_trend_strength"`
	MinVIX             float64 `mapstructure:"min_vix"`
	MinOIChangeWriting float64 `mapstructure:"min_oi_change_writing"`
}

// TimingConfig holds intraday window boundaries, all HH:MM IST.
type TimingConfig struct {
	TradingStart    string `mapstructure:"trading_start"`
	LunchAvoidStart string `mapstructure:"lunch_avoid_start"`
	LunchAvoidEnd   string `mapstructure:"lunch_avoid_end"`
	EODSquareOff    string `mapstructure:"eod_squareoff"`
	MarketClose     string `mapstructure:"market_close"`
}

// ExecutionConfig holds order routing configuration.
type ExecutionConfig struct {
	Channel             string `mapstructure:"channel"` // off, paper, live
	Broker              string `mapstructure:"broker"`  // upstox, dhan
	OrderType           string `mapstructure:"order_type"`
	ProductType         string `mapstructure:"product_type"`
	OrderTimeoutSeconds int    `mapstructure:"order_timeout_seconds"`
	MaxRetryAttempts    int    `mapstructure:"max_retry_attempts"`
}

// BrokerConfig holds broker API credentials.
type BrokerConfig struct {
	Upstox UpstoxCredentials `mapstructure:"upstox"`
	Dhan   DhanCredentials   `mapstructure:"dhan"`
}

// UpstoxCredentials holds Upstox API credentials.
type UpstoxCredentials struct {
	AccessToken string `mapstructure:"access_token"`
}

// DhanCredentials holds Dhan API credentials.
type DhanCredentials struct {
	AccessToken string `mapstructure:"access_token"`
	ClientID    string `mapstructure:"client_id"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// StoreConfig holds persistence paths.
type StoreConfig struct {
	SessionFile string `mapstructure:"session_file"`
	CacheFile   string `mapstructure:"cache_file"`
	JournalDB   string `mapstructure:"journal_db"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/skew-hunter"
	}
	return filepath.Join(home, ".config", "skew-hunter")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config.toml: %w", err)
		}
		// Missing file is fine, defaults apply.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// SaveActiveMode persists a new active_mode into config.toml, keeping
// the file's other keys. A missing file is created with just the mode;
// defaults are never materialized.
func SaveActiveMode(configDir, mode string) error {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	path := filepath.Join(configDir, "config.toml")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config.toml: %w", err)
		}
	}

	v.Set("active_mode", mode)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}
	return v.WriteConfigAs(path)
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("active_mode", "BALANCED")
	v.SetDefault("expiry", "")

	v.SetDefault("modes.STRICT", map[string]interface{}{
		"alpha_1_call": 0.85, "alpha_1_put": 0.85,
		"alpha_2_call": 0.85, "alpha_2_put": 0.85,
		"min_confidence": 85.0, "min_quality_score": 85.0,
		"min_confluence": 5, "volume_ratio_threshold": 2.5,
		"oi_change_velocity": 12.0, "oi_persistence_bars": 3,
	})
	v.SetDefault("modes.BALANCED", map[string]interface{}{
		"alpha_1_call": 0.80, "alpha_1_put": 0.80,
		"alpha_2_call": 0.82, "alpha_2_put": 0.82,
		"min_confidence": 80.0, "min_quality_score": 80.0,
		"min_confluence": 4, "volume_ratio_threshold": 2.3,
		"oi_change_velocity": 10.0, "oi_persistence_bars": 2,
	})
	v.SetDefault("modes.RELAXED", map[string]interface{}{
		"alpha_1_call": 0.65, "alpha_1_put": 0.65,
		"alpha_2_call": 0.68, "alpha_2_put": 0.68,
		"min_confidence": 65.0, "min_quality_score": 65.0,
		"min_confluence": 2, "volume_ratio_threshold": 1.5,
		"oi_change_velocity": 5.0, "oi_persistence_bars": 1,
	})

	v.SetDefault("risk.position_size_lots", 1)
	v.SetDefault("risk.lot_size", 65)
	v.SetDefault("risk.capital", 100000.0)
	v.SetDefault("risk.max_risk_per_trade_pct", 2.0)
	v.SetDefault("risk.daily_loss_limit_pct", 5.0)
	v.SetDefault("risk.max_trades_per_day", 5)
	v.SetDefault("risk.cooldown_minutes", 15)

	v.SetDefault("exit.profit_target_pct", 20.0)
	v.SetDefault("exit.time_exit", "15:15")
	v.SetDefault("exit.mtm_max_loss", -5000.0)
	v.SetDefault("exit.mtm_protect_trigger", 5000.0)
	v.SetDefault("exit.mtm_protect_pct", 0.5)
	v.SetDefault("exit.min_hold_seconds", 30)
	v.SetDefault("exit.vix_regimes.low", map[string]interface{}{
		"max_vix": 12.0, "initial_sl_pct": 0.25, "trail_activation": 0.20, "trail_distance": 0.25,
	})
	v.SetDefault("exit.vix_regimes.normal", map[string]interface{}{
		"max_vix": 15.0, "initial_sl_pct": 0.25, "trail_activation": 0.22, "trail_distance": 0.28,
	})
	v.SetDefault("exit.vix_regimes.elevated", map[string]interface{}{
		"max_vix": 20.0, "initial_sl_pct": 0.25, "trail_activation": 0.25, "trail_distance": 0.32,
	})
	v.SetDefault("exit.vix_regimes.high", map[string]interface{}{
		"max_vix": 25.0, "initial_sl_pct": 0.25, "trail_activation": 0.28, "trail_distance": 0.38,
	})
	v.SetDefault("exit.vix_regimes.extreme", map[string]interface{}{
		"max_vix": 100.0, "initial_sl_pct": 0.25, "trail_activation": 0.32, "trail_distance": 0.42,
	})

	v.SetDefault("filters.min_option_price", 20.0)
	v.SetDefault("filters.max_option_price", 150.0)
	v.SetDefault("filters.min_volume", 25000)
	v.SetDefault("filters.max_spread_pct", 2.5)
	v.SetDefault("filters.min_atr_14", 80.0)
	v.SetDefault("filters.min_trend_strength", 0.6)
	v.SetDefault("filters.min_vix", 10.0)
	v.SetDefault("filters.min_oi_change_writing", 400000.0)

	v.SetDefault("timing.trading_start", "09:45")
	v.SetDefault("timing.lunch_avoid_start", "12:00")
	v.SetDefault("timing.lunch_avoid_end", "12:45")
	v.SetDefault("timing.eod_squareoff", "15:15")
	v.SetDefault("timing.market_close", "15:30")

	v.SetDefault("execution.channel", "off")
	v.SetDefault("execution.broker", "upstox")
	v.SetDefault("execution.order_type", "MARKET")
	v.SetDefault("execution.product_type", "I")
	v.SetDefault("execution.order_timeout_seconds", 30)
	v.SetDefault("execution.max_retry_attempts", 3)

	v.SetDefault("telegram.enabled", false)

	v.SetDefault("store.session_file", filepath.Join(configDir, "session_state.json"))
	v.SetDefault("store.cache_file", filepath.Join(configDir, "market_cache.json"))
	v.SetDefault("store.journal_db", filepath.Join(configDir, "trades.db"))
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("UPSTOX_ACCESS_TOKEN"); v != "" {
		cfg.Broker.Upstox.AccessToken = v
	}
	if v := os.Getenv("DHAN_ACCESS_TOKEN"); v != "" {
		cfg.Broker.Dhan.AccessToken = v
	}
	if v := os.Getenv("DHAN_CLIENT_ID"); v != "" {
		cfg.Broker.Dhan.ClientID = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("EXECUTION_CHANNEL"); v != "" {
		cfg.Execution.Channel = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.ActiveMode {
	case ModeStrict, ModeBalanced, ModeRelaxed:
	default:
		return fmt.Errorf("invalid active_mode: %s", c.ActiveMode)
	}
	if _, ok := c.Modes[c.ActiveMode]; !ok {
		return fmt.Errorf("active_mode %s has no mode block", c.ActiveMode)
	}

	switch c.Execution.Channel {
	case "off", "paper", "live":
	default:
		return fmt.Errorf("invalid execution channel: %s (must be off, paper or live)", c.Execution.Channel)
	}
	switch c.Execution.Broker {
	case "upstox", "dhan":
	default:
		return fmt.Errorf("invalid broker: %s (must be upstox or dhan)", c.Execution.Broker)
	}
	if c.Execution.Channel == "live" {
		if c.Execution.Broker == "upstox" && c.Broker.Upstox.AccessToken == "" {
			return fmt.Errorf("live channel requires an upstox access token")
		}
		if c.Execution.Broker == "dhan" && (c.Broker.Dhan.AccessToken == "" || c.Broker.Dhan.ClientID == "") {
			return fmt.Errorf("live channel requires dhan access token and client id")
		}
	}

	if c.Risk.PositionSizeLots < 1 {
		return fmt.Errorf("position_size_lots must be at least 1")
	}
	if c.Risk.LotSize < 1 {
		return fmt.Errorf("lot_size must be at least 1")
	}
	if c.Risk.MaxTradesPerDay < 1 {
		return fmt.Errorf("max_trades_per_day must be at least 1")
	}
	if c.Exit.MTMMaxLoss >= 0 {
		return fmt.Errorf("mtm_max_loss must be negative")
	}
	if c.Exit.MTMProtectPct <= 0 || c.Exit.MTMProtectPct > 1 {
		return fmt.Errorf("mtm_protect_pct must be in (0, 1]")
	}
	if len(c.Exit.VIXRegimes) == 0 {
		return fmt.Errorf("at least one vix regime band is required")
	}
	for name, band := range c.Exit.VIXRegimes {
		if band.InitialSLPct <= 0 || band.InitialSLPct >= 1 {
			return fmt.Errorf("regime %s: initial_sl_pct must be in (0, 1)", name)
		}
		if band.TrailDistance <= 0 || band.TrailDistance >= 1 {
			return fmt.Errorf("regime %s: trail_distance must be in (0, 1)", name)
		}
	}

	return nil
}

// ActiveModeConfig returns the thresholds for the active mode.
func (c *Config) ActiveModeConfig() ModeConfig {
	return c.Modes[c.ActiveMode]
}

// IsLive returns true when real broker orders are enabled.
func (c *Config) IsLive() bool {
	return c.Execution.Channel == "live"
}
