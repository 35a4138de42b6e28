package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Environment    string               `mapstructure:"environment"`
	LogLevel       string               `mapstructure:"log_level"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	JWT            JWTConfig            `mapstructure:"jwt"`
	Ledger         LedgerConfig         `mapstructure:"ledger"`
	PalmPay        ProviderConfig       `mapstructure:"palmpay"`
	Reloadly       ProviderConfig       `mapstructure:"reloadly"`
	VTPass         ProviderConfig       `mapstructure:"vtpass"`
	ChainGateway   ProviderConfig       `mapstructure:"chain_gateway"`
	Workers        WorkerConfig         `mapstructure:"workers"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	Host            string   `mapstructure:"host"`
	ReadTimeout     int      `mapstructure:"read_timeout"`
	WriteTimeout    int      `mapstructure:"write_timeout"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimitPerMin int      `mapstructure:"rate_limit_per_min"`
}

type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// LedgerConfig carries ledger-wide tunables.
type LedgerConfig struct {
	// SendFeeUSD is the flat network-fee surcharge applied to sends and
	// swaps, denominated in USD and converted at execute time.
	SendFeeUSD float64 `mapstructure:"send_fee_usd"`
	// PriceCacheTTL is the Redis TTL for price points, in seconds.
	PriceCacheTTL int `mapstructure:"price_cache_ttl"`
	// PriceMaxAge rejects price points older than this many seconds.
	PriceMaxAge int `mapstructure:"price_max_age"`
}

// ProviderConfig is the shared shape for external provider credentials.
type ProviderConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	APISecret     string `mapstructure:"api_secret"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	Timeout       int    `mapstructure:"timeout"`
	MaxRetries    int    `mapstructure:"max_retries"`
}

// WorkerConfig contains background worker configuration.
type WorkerConfig struct {
	Count        int `mapstructure:"count"`
	PollInterval int `mapstructure:"poll_interval"`
	BatchSize    int `mapstructure:"batch_size"`
}

// ReconciliationConfig controls the pending-transaction status poller.
type ReconciliationConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	CronSpec      string `mapstructure:"cron_spec"`
	PendingMaxAge int    `mapstructure:"pending_max_age"` // minutes before a pending tx is polled
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Build database URL if not provided
	if config.Database.URL == "" {
		config.Database.URL = fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			config.Database.User,
			config.Database.Password,
			config.Database.Host,
			config.Database.Port,
			config.Database.Name,
			config.Database.SSLMode,
		)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 30)
	viper.SetDefault("server.write_timeout", 30)
	viper.SetDefault("server.rate_limit_per_min", 120)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "terescrow_ledger")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 300)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)

	// JWT defaults
	viper.SetDefault("jwt.issuer", "terescrow")

	// Ledger defaults
	viper.SetDefault("ledger.send_fee_usd", 5.0)
	viper.SetDefault("ledger.price_cache_ttl", 30)
	viper.SetDefault("ledger.price_max_age", 900)

	// Provider defaults
	viper.SetDefault("palmpay.timeout", 30)
	viper.SetDefault("palmpay.max_retries", 3)
	viper.SetDefault("reloadly.timeout", 30)
	viper.SetDefault("reloadly.max_retries", 3)
	viper.SetDefault("vtpass.timeout", 30)
	viper.SetDefault("vtpass.max_retries", 3)
	viper.SetDefault("chain_gateway.timeout", 30)
	viper.SetDefault("chain_gateway.max_retries", 3)

	// Worker defaults
	viper.SetDefault("workers.count", 5)
	viper.SetDefault("workers.poll_interval", 5)
	viper.SetDefault("workers.batch_size", 20)

	// Reconciliation defaults
	viper.SetDefault("reconciliation.enabled", true)
	viper.SetDefault("reconciliation.cron_spec", "*/10 * * * *")
	viper.SetDefault("reconciliation.pending_max_age", 15)
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Environment == "production" && cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required in production")
	}
	if cfg.Ledger.SendFeeUSD < 0 {
		return fmt.Errorf("ledger.send_fee_usd cannot be negative")
	}
	return nil
}
