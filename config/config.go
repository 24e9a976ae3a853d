package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Reader      ReaderConfig      `yaml:"reader"`
	Cache       CacheConfig       `yaml:"cache"`
	Exchanges   ExchangesConfig   `yaml:"exchanges"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DashboardConfig struct {
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	WindowDays      int           `yaml:"window_days"`
	ArbLookbackDays int           `yaml:"arb_lookback_days"`
	TopPositions    int           `yaml:"top_positions"`
}

type ReaderConfig struct {
	Timeout   time.Duration        `yaml:"timeout"`
	RateLimit RateLimitConfig      `yaml:"rate_limit"`
	Pool      ConnectionPoolConfig `yaml:"connection_pool"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `yaml:"requests_per_second"`
	BurstSize         int `yaml:"burst_size"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type CacheConfig struct {
	PositionsTTL    time.Duration `yaml:"positions_ttl"`
	FundingTTL      time.Duration `yaml:"funding_ttl"`
	JanitorInterval time.Duration `yaml:"janitor_interval"`
}

type ExchangesConfig struct {
	Binance     ExchangeConfig `yaml:"binance"`
	Bybit       ExchangeConfig `yaml:"bybit"`
	Okx         ExchangeConfig `yaml:"okx"`
	Hyperliquid ExchangeConfig `yaml:"hyperliquid"`
	Rabbitx     ExchangeConfig `yaml:"rabbitx"`
}

// ExchangeConfig holds one venue's credentials and quirks. Passphrase is
// OKX-only, JWTToken is RabbitX-only and WalletAddress is Hyperliquid-only;
// the other venues leave them empty.
type ExchangeConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Secret        string  `yaml:"secret"`
	Passphrase    string  `yaml:"passphrase"`
	JWTToken      string  `yaml:"jwt_token"`
	WalletAddress string  `yaml:"wallet_address"`
	IntervalHours float64 `yaml:"funding_interval_hours"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// LoadConfig reads and validates the YAML configuration at path.
// Credentials may be supplied (or overridden) through environment
// variables so secrets never have to live in the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dashboard.RefreshInterval <= 0 {
		cfg.Dashboard.RefreshInterval = time.Minute
	}
	if cfg.Dashboard.WindowDays <= 0 {
		cfg.Dashboard.WindowDays = 7
	}
	if cfg.Dashboard.ArbLookbackDays <= 0 {
		cfg.Dashboard.ArbLookbackDays = 1
	}
	if cfg.Dashboard.TopPositions <= 0 {
		cfg.Dashboard.TopPositions = 5
	}
	if cfg.Reader.Timeout <= 0 {
		cfg.Reader.Timeout = 10 * time.Second
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		cfg.Reader.RateLimit.RequestsPerSecond = 5
	}
	if cfg.Reader.RateLimit.BurstSize <= 0 {
		cfg.Reader.RateLimit.BurstSize = 1
	}
	if cfg.Reader.Pool.MaxIdleConns <= 0 {
		cfg.Reader.Pool.MaxIdleConns = 10
	}
	if cfg.Reader.Pool.MaxConnsPerHost <= 0 {
		cfg.Reader.Pool.MaxConnsPerHost = 10
	}
	if cfg.Reader.Pool.IdleConnTimeout <= 0 {
		cfg.Reader.Pool.IdleConnTimeout = 90 * time.Second
	}
	if cfg.Cache.PositionsTTL <= 0 {
		cfg.Cache.PositionsTTL = time.Minute
	}
	if cfg.Cache.FundingTTL <= 0 {
		cfg.Cache.FundingTTL = 5 * time.Minute
	}
	if cfg.Cache.JanitorInterval <= 0 {
		cfg.Cache.JanitorInterval = time.Minute
	}

	// Hyperliquid and RabbitX settle hourly; the rest settle every 8h.
	if cfg.Exchanges.Binance.IntervalHours <= 0 {
		cfg.Exchanges.Binance.IntervalHours = 8
	}
	if cfg.Exchanges.Bybit.IntervalHours <= 0 {
		cfg.Exchanges.Bybit.IntervalHours = 8
	}
	if cfg.Exchanges.Okx.IntervalHours <= 0 {
		cfg.Exchanges.Okx.IntervalHours = 8
	}
	if cfg.Exchanges.Hyperliquid.IntervalHours <= 0 {
		cfg.Exchanges.Hyperliquid.IntervalHours = 1
	}
	if cfg.Exchanges.Rabbitx.IntervalHours <= 0 {
		cfg.Exchanges.Rabbitx.IntervalHours = 1
	}

	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "Fundingflow"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

func applyEnvOverrides(cfg *Config) {
	override := func(dst *string, env string) {
		if v := os.Getenv(env); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	override(&cfg.Exchanges.Binance.APIKey, "BINANCE_API_KEY")
	override(&cfg.Exchanges.Binance.Secret, "BINANCE_SECRET")
	override(&cfg.Exchanges.Bybit.APIKey, "BYBIT_API_KEY")
	override(&cfg.Exchanges.Bybit.Secret, "BYBIT_SECRET")
	override(&cfg.Exchanges.Okx.APIKey, "OKX_API_KEY")
	override(&cfg.Exchanges.Okx.Secret, "OKX_SECRET")
	override(&cfg.Exchanges.Okx.Passphrase, "OKX_PASSWORD")
	override(&cfg.Exchanges.Hyperliquid.WalletAddress, "HYPERLIQUID_API_KEY")
	override(&cfg.Exchanges.Hyperliquid.Secret, "HYPERLIQUID_SECRET_KEY")
	override(&cfg.Exchanges.Rabbitx.APIKey, "RABBITX_API_KEY")
	override(&cfg.Exchanges.Rabbitx.Secret, "RABBITX_SECRET_KEY")
	override(&cfg.Exchanges.Rabbitx.JWTToken, "RABBITX_JWT_TOKEN")
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}
	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Dashboard.WindowDays > 90 {
		return fmt.Errorf("dashboard.window_days must not exceed 90")
	}

	enabled := 0
	for _, ex := range []ExchangeConfig{
		cfg.Exchanges.Binance,
		cfg.Exchanges.Bybit,
		cfg.Exchanges.Okx,
		cfg.Exchanges.Hyperliquid,
		cfg.Exchanges.Rabbitx,
	} {
		if ex.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one exchange must be enabled")
	}

	if cfg.Exchanges.Okx.Enabled && cfg.Exchanges.Okx.Passphrase == "" {
		return fmt.Errorf("exchanges.okx.passphrase is required when okx is enabled")
	}
	if cfg.Exchanges.Hyperliquid.Enabled && cfg.Exchanges.Hyperliquid.WalletAddress == "" {
		return fmt.Errorf("exchanges.hyperliquid.wallet_address is required when hyperliquid is enabled")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
