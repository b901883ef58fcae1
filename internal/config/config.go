package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"claude-quota-alerts/internal/logging"
	"claude-quota-alerts/internal/tier"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Monitor     MonitorConfig     `mapstructure:"monitor"`
	API         APIConfig         `mapstructure:"api"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Thresholds  ThresholdsConfig  `mapstructure:"thresholds"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MonitorConfig governs polling cadence.
type MonitorConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// APIConfig covers usage endpoint access.
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UsagePath      string        `mapstructure:"usage_path"`
	BetaHeader     string        `mapstructure:"beta_header"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// CredentialsConfig tunes token resolution.
type CredentialsConfig struct {
	Token string `mapstructure:"token"`
	File  string `mapstructure:"file"`
	Watch bool   `mapstructure:"watch"`
}

// CacheConfig locates the on-disk snapshot mirror.
type CacheConfig struct {
	Path string        `mapstructure:"path"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// ThresholdsConfig holds the three tier boundaries as fractions of 1.
type ThresholdsConfig struct {
	Warning  float64 `mapstructure:"warning"`
	Danger   float64 `mapstructure:"danger"`
	Critical float64 `mapstructure:"critical"`
}

// Classifier builds the tier classifier from the configured thresholds.
func (t ThresholdsConfig) Classifier() (tier.Classifier, error) {
	return tier.NewClassifier(t.Warning, t.Danger, t.Critical)
}

// AlertingConfig defines which crossings fire and where they go.
type AlertingConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	NotifyTiers []string       `mapstructure:"notify_tiers"`
	Desktop     DesktopConfig  `mapstructure:"desktop"`
	Telegram    TelegramConfig `mapstructure:"telegram"`
}

// FireTiers parses notify_tiers into tier values.
func (a AlertingConfig) FireTiers() ([]tier.Tier, error) {
	tiers := make([]tier.Tier, 0, len(a.NotifyTiers))
	for _, name := range a.NotifyTiers {
		t, err := tier.ParseTier(strings.TrimSpace(name))
		if err != nil {
			return nil, fmt.Errorf("alerting.notify_tiers: %w", err)
		}
		tiers = append(tiers, t)
	}
	return tiers, nil
}

// DesktopConfig toggles OS notifications.
type DesktopConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("QUOTAWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "quotawatcher")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("monitor.interval", "120s")
	v.SetDefault("monitor.startup_delay", "0s")

	v.SetDefault("api.base_url", "https://api.anthropic.com")
	v.SetDefault("api.usage_path", "/api/oauth/usage")
	v.SetDefault("api.beta_header", "oauth-2025-04-20")
	v.SetDefault("api.request_timeout", "10s")
	v.SetDefault("api.user_agent", "quotawatcher/1.0")

	v.SetDefault("credentials.watch", true)

	v.SetDefault("cache.ttl", "60s")

	v.SetDefault("thresholds.warning", 0.70)
	v.SetDefault("thresholds.danger", 0.85)
	v.SetDefault("thresholds.critical", 0.95)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.notify_tiers", []string{"danger", "critical"})
	v.SetDefault("alerting.desktop.enabled", true)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values. Any
// failure here is fatal before the poll loop starts.
func (c *Config) Validate() error {
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be greater than zero")
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be greater than zero")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be greater than zero")
	}
	if _, err := c.Thresholds.Classifier(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}
	if _, err := c.Alerting.FireTiers(); err != nil {
		return err
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}
