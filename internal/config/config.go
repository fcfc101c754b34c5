// Package config defines all configuration for the trading bot.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via BOT_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	Trading   TradingConfig   `mapstructure:"trading"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ExchangeConfig holds venue credentials and environment selection.
// ApiKey/ApiSecret authenticate signed REST calls and the user-data stream.
// Testnet switches every REST and WebSocket URL to the venue's test
// environment.
type ExchangeConfig struct {
	ApiKey    string `mapstructure:"api_key"`
	ApiSecret string `mapstructure:"api_secret"`
	Testnet   bool   `mapstructure:"testnet"`
}

// TradingConfig selects what the bot watches.
//
///   - Symbols: canonical BASE/QUOTE pairs to subscribe and trade.
//   - Intervals: candle intervals to subscribe per symbol (e.g. 1m, 5m).
type TradingConfig struct {
	Symbols   []string `mapstructure:"symbols"`
	Intervals []string `mapstructure:"intervals"`
}

// ReconcileConfig controls the periodic registry-versus-venue sweep.
type ReconcileConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	CancelStray bool          `mapstructure:"cancel_stray"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: BOT_API_KEY, BOT_API_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("BOT_API_KEY"); key != "" {
		cfg.Exchange.ApiKey = key
	}
	if secret := os.Getenv("BOT_API_SECRET"); secret != "" {
		cfg.Exchange.ApiSecret = secret
	}
	if os.Getenv("BOT_TESTNET") == "true" || os.Getenv("BOT_TESTNET") == "1" {
		cfg.Exchange.Testnet = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Exchange.ApiKey == "" {
		return fmt.Errorf("exchange.api_key is required (set BOT_API_KEY)")
	}
	if c.Exchange.ApiSecret == "" {
		return fmt.Errorf("exchange.api_secret is required (set BOT_API_SECRET)")
	}
	if len(c.Trading.Symbols) == 0 {
		return fmt.Errorf("trading.symbols must list at least one pair")
	}
	for _, s := range c.Trading.Symbols {
		if !strings.Contains(s, "/") {
			return fmt.Errorf("trading.symbols entry %q must be in BASE/QUOTE form", s)
		}
	}
	if c.Reconcile.Interval <= 0 {
		return fmt.Errorf("reconcile.interval must be > 0")
	}
	return nil
}
