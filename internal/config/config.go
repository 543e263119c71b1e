package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Exchange  ExchangeConfig
	Database  DatabaseConfig
	Feed      FeedConfig
	Logging   LoggingConfig
}

// ArbitrageConfig defines the path search and sizing settings.
type ArbitrageConfig struct {
	BaseCurrencies          []string      `mapstructure:"base_currencies"`
	ReferenceCurrency       string        `mapstructure:"reference_currency"`
	FloorCurrency           string        `mapstructure:"floor_currency"`
	MinFloorValue           float64       `mapstructure:"min_floor_value"`
	BaseFeeRate             float64       `mapstructure:"base_fee_rate"`
	FeeSafetyFactor         float64       `mapstructure:"fee_safety_factor"`
	AcceptanceThreshold     float64       `mapstructure:"acceptance_threshold"`
	MaxLiquidityFraction    float64       `mapstructure:"max_liquidity_fraction"`
	SearchSlack             float64       `mapstructure:"search_slack"`
	MinOrderMargin          float64       `mapstructure:"min_order_margin"`
	SearchTolerance         float64       `mapstructure:"search_tolerance"`
	OrderTimeout            time.Duration `mapstructure:"order_timeout"`
	CycleInterval           time.Duration `mapstructure:"cycle_interval"`
	OrderBookWait           time.Duration `mapstructure:"orderbook_wait"`
	MaxConcurrentCurrencies int           `mapstructure:"max_concurrent_currencies"`
	DryRun                  bool          `mapstructure:"dry_run"`
}

// FeeRate is the per-hop fee used in every profitability estimate: the
// exchange fee inflated by the safety factor.
func (a ArbitrageConfig) FeeRate() float64 {
	return a.BaseFeeRate * a.FeeSafetyFactor
}

// ExchangeConfig defines the exchange endpoint and credentials.
type ExchangeConfig struct {
	Name              string        `mapstructure:"name"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	APISecret         string        `mapstructure:"api_secret"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

// DSN builds the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", d.User, d.Password, d.Host, d.Port, d.DBName)
}

// FeedConfig defines the report WebSocket feed.
type FeedConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig defines log level and file rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arbitrage.base_currencies", []string{"BTC", "ETH", "USDT"})
	v.SetDefault("arbitrage.reference_currency", "USDT")
	v.SetDefault("arbitrage.floor_currency", "BTC")
	v.SetDefault("arbitrage.min_floor_value", 0.001)
	v.SetDefault("arbitrage.base_fee_rate", 0.0025)
	v.SetDefault("arbitrage.fee_safety_factor", 1.5)
	v.SetDefault("arbitrage.acceptance_threshold", 0.998)
	v.SetDefault("arbitrage.max_liquidity_fraction", 0.2)
	v.SetDefault("arbitrage.search_slack", 1.1)
	v.SetDefault("arbitrage.min_order_margin", 1.1)
	v.SetDefault("arbitrage.search_tolerance", 2e-5)
	v.SetDefault("arbitrage.order_timeout", 5*time.Second)
	v.SetDefault("arbitrage.cycle_interval", time.Duration(0))
	v.SetDefault("arbitrage.orderbook_wait", 10*time.Second)
	v.SetDefault("arbitrage.max_concurrent_currencies", 8)
	v.SetDefault("arbitrage.dry_run", false)

	v.SetDefault("exchange.name", "bittrex")
	v.SetDefault("exchange.base_url", "https://bittrex.com/api/v1.1")
	v.SetDefault("exchange.api_key", "")
	v.SetDefault("exchange.api_secret", "")
	v.SetDefault("exchange.requests_per_second", 10.0)
	v.SetDefault("exchange.burst", 10)
	v.SetDefault("exchange.timeout", 10*time.Second)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "cycletrader")

	v.SetDefault("feed.enabled", false)
	v.SetDefault("feed.listen_addr", ":8090")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "logs/cycletrader.log")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", true)
}

// LoadConfig reads configuration from file or environment variables.
// A .env file next to the config is loaded first so credentials can stay out
// of the YAML file. A missing config.yaml is not an error.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load(filepath.Join(path, ".env"))

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("decode config: %w", err)
	}
	err = config.Validate()
	return
}

// Validate rejects settings the search cannot work with.
func (c Config) Validate() error {
	a := c.Arbitrage
	switch {
	case len(a.BaseCurrencies) == 0:
		return errors.New("arbitrage.base_currencies must not be empty")
	case a.ReferenceCurrency == "":
		return errors.New("arbitrage.reference_currency must be set")
	case a.FloorCurrency == "":
		return errors.New("arbitrage.floor_currency must be set")
	case a.BaseFeeRate < 0 || a.FeeSafetyFactor <= 0 || a.FeeRate() >= 1:
		return fmt.Errorf("invalid fee rate %v x %v", a.BaseFeeRate, a.FeeSafetyFactor)
	case a.MaxLiquidityFraction <= 0 || a.MaxLiquidityFraction > 1:
		return fmt.Errorf("arbitrage.max_liquidity_fraction must be in (0, 1], got %v", a.MaxLiquidityFraction)
	case a.SearchTolerance <= 0:
		return fmt.Errorf("arbitrage.search_tolerance must be positive, got %v", a.SearchTolerance)
	case a.SearchSlack <= 0 || a.MinOrderMargin < 1:
		return fmt.Errorf("invalid search slack %v or min order margin %v", a.SearchSlack, a.MinOrderMargin)
	case a.MaxConcurrentCurrencies <= 0:
		return fmt.Errorf("arbitrage.max_concurrent_currencies must be positive, got %d", a.MaxConcurrentCurrencies)
	}
	if c.Exchange.RequestsPerSecond <= 0 || c.Exchange.Burst <= 0 {
		return fmt.Errorf("invalid exchange rate limit %v/%d", c.Exchange.RequestsPerSecond, c.Exchange.Burst)
	}
	return nil
}
