// Package config provides configuration management for the options dashboard.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"options-dashboard/internal/logging"
	"options-dashboard/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Backend     BackendConfig     `mapstructure:"backend"`
	Chain       ChainConfig       `mapstructure:"chain"`
	Positions   PositionsConfig   `mapstructure:"positions"`
	Payoff      PayoffConfig      `mapstructure:"payoff"`
	Orders      OrdersConfig      `mapstructure:"orders"`
	Server      ServerConfig      `mapstructure:"server"`
	UI          UIConfig          `mapstructure:"ui"`
	Logging     logging.LogConfig `mapstructure:"logging"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Notify      NotifyConfig      `mapstructure:"notifications"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
}

// BackendConfig describes the trading backend the dashboard talks to.
type BackendConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	UserID        string        `mapstructure:"user_id"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

// ChainConfig holds option-chain cache settings.
type ChainConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	Underlyings     []string      `mapstructure:"underlyings"`
	Default         string        `mapstructure:"default"`
}

// PositionsConfig holds position polling settings.
type PositionsConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PolicyConfig is the payoff sampling policy for one underlying.
type PolicyConfig struct {
	StrikeStep  int `mapstructure:"strike_step"`
	RangeOffset int `mapstructure:"range_offset"`
}

// PayoffConfig holds payoff engine settings.
type PayoffConfig struct {
	SampleDivisor int                     `mapstructure:"sample_divisor"`
	Reference     string                  `mapstructure:"reference"` // entry, current
	Policies      map[string]PolicyConfig `mapstructure:"policies"`
}

// OrdersConfig holds order entry defaults.
type OrdersConfig struct {
	LotSizes     map[string]int `mapstructure:"lot_sizes"`
	DefaultLots  int            `mapstructure:"default_lots"`
	StrategyName string         `mapstructure:"strategy_name"`
	HedgeStrikes int            `mapstructure:"hedge_strikes"`
}

// ServerConfig holds settings for the bundled backend server.
type ServerConfig struct {
	Addr         string             `mapstructure:"addr"`
	Mode         string             `mapstructure:"mode"` // paper, kite
	DBPath       string             `mapstructure:"db_path"`
	StrikeWindow int                `mapstructure:"strike_window"`
	Volatility   float64            `mapstructure:"volatility"`
	RiskFreeRate float64            `mapstructure:"risk_free_rate"`
	SpotPrices   map[string]float64 `mapstructure:"spot_prices"`
	AllowOrigins []string           `mapstructure:"allow_origins"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	TimeFormat   string `mapstructure:"time_format"`
	ChartWidth   int    `mapstructure:"chart_width"`
	ChartHeight  int    `mapstructure:"chart_height"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	PrettyPrint bool   `mapstructure:"pretty_print"`
}

// NotifyConfig holds notification settings.
type NotifyConfig struct {
	// Level is "all", "trades_only" or "errors_only".
	Level      string        `mapstructure:"level"`
	QueueSize  int           `mapstructure:"queue_size"`
	MaxVisible int           `mapstructure:"max_visible"`
	ShowFor    time.Duration `mapstructure:"show_for"`
	Webhook    WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect credentials used by the live backend.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
}

// MaskCredential hides all but the ends of a secret.
func MaskCredential(value string) string {
	switch n := len(value); {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	default:
		return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
	}
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/options-dashboard"
	}
	return filepath.Join(home, ".config", "options-dashboard")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// A .env file in the working directory is applied before environment overrides.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	_ = godotenv.Load()

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated only from built-in defaults.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", "http://localhost:8000")
	v.SetDefault("backend.user_id", "1")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.max_retries", 3)
	v.SetDefault("backend.rate_per_second", 5.0)
	v.SetDefault("backend.burst", 5)

	v.SetDefault("chain.ttl", 60*time.Second)
	v.SetDefault("chain.refresh_interval", 60*time.Second)
	v.SetDefault("chain.fetch_timeout", 15*time.Second)
	v.SetDefault("chain.underlyings", []string{"NIFTY", "SENSEX", "BANKNIFTY"})
	v.SetDefault("chain.default", "NIFTY")

	v.SetDefault("positions.poll_interval", 3*time.Minute)

	v.SetDefault("payoff.sample_divisor", 2)
	v.SetDefault("payoff.reference", "entry")
	v.SetDefault("payoff.policies", map[string]interface{}{
		"nifty":     map[string]interface{}{"strike_step": 50, "range_offset": 1000},
		"banknifty": map[string]interface{}{"strike_step": 100, "range_offset": 1000},
		"sensex":    map[string]interface{}{"strike_step": 100, "range_offset": 2000},
	})

	v.SetDefault("orders.lot_sizes", map[string]interface{}{
		"nifty":     25,
		"banknifty": 15,
		"sensex":    10,
	})
	v.SetDefault("orders.default_lots", 1)
	v.SetDefault("orders.strategy_name", "Manual Trade")
	v.SetDefault("orders.hedge_strikes", 0)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.mode", "paper")
	v.SetDefault("server.db_path", filepath.Join(DefaultConfigDir(), "trades.db"))
	v.SetDefault("server.strike_window", 20)
	v.SetDefault("server.volatility", 0.14)
	v.SetDefault("server.risk_free_rate", 0.065)
	v.SetDefault("server.allow_origins", []string{"http://localhost:3005"})
	v.SetDefault("server.spot_prices", map[string]interface{}{
		"nifty":     22000.0,
		"banknifty": 51000.0,
		"sensex":    80000.0,
	})

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.time_format", "15:04:05")
	v.SetDefault("ui.chart_width", 60)
	v.SetDefault("ui.chart_height", 15)

	def := logging.DefaultLogConfig()
	v.SetDefault("logging.level", def.Level)
	v.SetDefault("logging.console", def.Console)
	v.SetDefault("logging.file", def.File)
	v.SetDefault("logging.file_path", def.FilePath)
	v.SetDefault("logging.max_size", def.MaxSize)
	v.SetDefault("logging.max_backups", def.MaxBackups)
	v.SetDefault("logging.max_age", def.MaxAge)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "optdash")
	v.SetDefault("tracing.pretty_print", true)

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.queue_size", 32)
	v.SetDefault("notifications.max_visible", 3)
	v.SetDefault("notifications.show_for", 30*time.Second)
	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.timeout", 10*time.Second)
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write a commented template and continue on defaults.
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTDASH_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("OPTDASH_USER_ID"); v != "" {
		cfg.Backend.UserID = v
	}
	if v := os.Getenv("OPTDASH_MODE"); v != "" {
		cfg.Server.Mode = v
	}
	if v := os.Getenv("OPTDASH_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("OPTDASH_CHAIN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Chain.TTL = d
		}
	}
	if v := os.Getenv("OPTDASH_STRIKE_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.StrikeWindow = n
		}
	}

	if v := os.Getenv("OPTDASH_WEBHOOK_URL"); v != "" {
		cfg.Notify.Webhook.URL = v
		cfg.Notify.Webhook.Enabled = true
	}

	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must be set")
	}
	if c.Backend.MaxRetries < 1 {
		return fmt.Errorf("backend.max_retries must be at least 1")
	}

	if c.Chain.TTL <= 0 {
		return fmt.Errorf("chain.ttl must be positive")
	}
	if c.Chain.RefreshInterval <= 0 {
		return fmt.Errorf("chain.refresh_interval must be positive")
	}
	if len(c.Chain.Underlyings) == 0 {
		return fmt.Errorf("chain.underlyings must list at least one index")
	}
	for _, u := range c.Chain.Underlyings {
		if _, err := models.ParseUnderlying(u); err != nil {
			return fmt.Errorf("chain.underlyings: %w", err)
		}
	}
	if c.Chain.Default != "" {
		if _, err := models.ParseUnderlying(c.Chain.Default); err != nil {
			return fmt.Errorf("chain.default: %w", err)
		}
	}

	if c.Positions.PollInterval <= 0 {
		return fmt.Errorf("positions.poll_interval must be positive")
	}

	if c.Payoff.SampleDivisor < 1 {
		return fmt.Errorf("payoff.sample_divisor must be at least 1")
	}
	if c.Payoff.Reference != "entry" && c.Payoff.Reference != "current" {
		return fmt.Errorf("invalid payoff reference: %s (must be 'entry' or 'current')", c.Payoff.Reference)
	}
	for name, p := range c.Payoff.Policies {
		if _, err := models.ParseUnderlying(name); err != nil {
			return fmt.Errorf("payoff.policies: %w", err)
		}
		if p.StrikeStep <= 0 || p.RangeOffset < 0 {
			return fmt.Errorf("payoff.policies.%s: strike_step must be positive and range_offset non-negative", name)
		}
	}

	for name, size := range c.Orders.LotSizes {
		if size <= 0 {
			return fmt.Errorf("orders.lot_sizes.%s must be positive", name)
		}
	}
	if c.Orders.HedgeStrikes < 0 {
		return fmt.Errorf("orders.hedge_strikes must be non-negative")
	}

	if c.Server.Mode != "paper" && c.Server.Mode != "kite" {
		return fmt.Errorf("invalid server mode: %s (must be 'paper' or 'kite')", c.Server.Mode)
	}
	if c.Server.StrikeWindow < 1 {
		return fmt.Errorf("server.strike_window must be at least 1")
	}

	switch c.Notify.Level {
	case "", "all", "trades_only", "errors_only":
	default:
		return fmt.Errorf("invalid notifications.level: %s", c.Notify.Level)
	}
	if c.Notify.Webhook.Enabled && c.Notify.Webhook.URL == "" {
		return fmt.Errorf("notifications.webhook.url must be set when the webhook is enabled")
	}

	return nil
}

// IsPaperMode returns true if the bundled backend should simulate fills.
func (c *Config) IsPaperMode() bool {
	return c.Server.Mode == "paper"
}

// Underlyings returns the configured indices in refresh order.
func (c *Config) Underlyings() []models.Underlying {
	out := make([]models.Underlying, 0, len(c.Chain.Underlyings))
	for _, s := range c.Chain.Underlyings {
		if u, err := models.ParseUnderlying(s); err == nil {
			out = append(out, u)
		}
	}
	return out
}

// DefaultUnderlying returns the index selected when the dashboard starts.
func (c *Config) DefaultUnderlying() models.Underlying {
	if u, err := models.ParseUnderlying(c.Chain.Default); err == nil {
		return u
	}
	if us := c.Underlyings(); len(us) > 0 {
		return us[0]
	}
	return models.NIFTY
}

// LotSize returns the configured lot size for an underlying, falling back
// to the exchange default.
func (c *Config) LotSize(u models.Underlying) int {
	if n, ok := c.Orders.LotSizes[strings.ToLower(string(u))]; ok && n > 0 {
		return n
	}
	return u.Contract().LotSize
}

// SpotPrice returns the configured synthetic spot for the paper backend.
func (c *Config) SpotPrice(u models.Underlying) float64 {
	if p, ok := c.Server.SpotPrices[strings.ToLower(string(u))]; ok && p > 0 {
		return p
	}
	return u.Contract().DefaultSpot
}
