package discourse

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the file/environment representation of the client configuration.
// Durations are expressed in milliseconds. Precedence is defaults, then the
// YAML file, then environment variables.
type Config struct {
	BaseURL     string `yaml:"base_url" env:"DISCOURSE_BASE_URL"`
	APIKey      string `yaml:"api_key" env:"DISCOURSE_API_KEY"`
	APIUsername string `yaml:"api_username" env:"DISCOURSE_API_USERNAME"`

	TimeoutMS         int     `yaml:"timeout_ms" env:"DISCOURSE_TIMEOUT_MS"`
	MaxRetries        int     `yaml:"max_retries" env:"DISCOURSE_MAX_RETRIES"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"DISCOURSE_RPS"`
	Burst             int     `yaml:"burst" env:"DISCOURSE_BURST"`
	RateLimitStrategy string  `yaml:"rate_limit_strategy" env:"DISCOURSE_RATE_LIMIT_STRATEGY"`
	BucketIdleTTLMS   int     `yaml:"bucket_idle_ttl_ms" env:"DISCOURSE_BUCKET_IDLE_TTL_MS"`
	MaxBuckets        int     `yaml:"max_buckets" env:"DISCOURSE_MAX_BUCKETS"`

	CacheMaxEntries int `yaml:"cache_max_entries" env:"DISCOURSE_CACHE_MAX_ENTRIES"`
	CacheTTLMS      int `yaml:"cache_ttl_ms" env:"DISCOURSE_CACHE_TTL_MS"`

	NonceTTLMS           int `yaml:"nonce_ttl_ms" env:"DISCOURSE_NONCE_TTL_MS"`
	NonceSweepIntervalMS int `yaml:"nonce_sweep_interval_ms" env:"DISCOURSE_NONCE_SWEEP_INTERVAL_MS"`

	WalletAuthURL string `yaml:"wallet_auth_url" env:"NEAR_WALLET_AUTH_URL"`
}

// DefaultConfig returns a Config mirroring the client's construction defaults.
func DefaultConfig() *Config {
	return &Config{
		TimeoutMS:         30000,
		MaxRetries:        3,
		RequestsPerSecond: 10,
		Burst:             1,
		RateLimitStrategy: string(StrategyGlobal),
		BucketIdleTTLMS:   300000,
		MaxBuckets:        256,

		CacheMaxEntries: 512,
		CacheTTLMS:      60000,

		NonceTTLMS:           600000,
		NonceSweepIntervalMS: 60000,

		WalletAuthURL: "https://app.mynearwallet.com/login",
	}
}

// LoadConfig reads an optional YAML file and applies environment overrides on
// top. An empty path skips the file and uses environment/defaults only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return cfg, nil
}

// Options expands the configuration into functional options for New.
func (cfg *Config) Options() []Option {
	return []Option{
		WithAPIKey(cfg.APIKey, cfg.APIUsername),
		WithTimeout(time.Duration(cfg.TimeoutMS) * time.Millisecond),
		WithMaxRetries(cfg.MaxRetries),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
		WithRateLimitStrategy(RateLimitStrategy(cfg.RateLimitStrategy)),
		WithBucketIdleTTL(time.Duration(cfg.BucketIdleTTLMS) * time.Millisecond),
		WithMaxBuckets(cfg.MaxBuckets),
		WithCache(cfg.CacheMaxEntries, time.Duration(cfg.CacheTTLMS)*time.Millisecond),
		WithNonceTTL(time.Duration(cfg.NonceTTLMS) * time.Millisecond),
		WithNonceSweepInterval(time.Duration(cfg.NonceSweepIntervalMS) * time.Millisecond),
		WithWalletAuthURL(cfg.WalletAuthURL),
	}
}

// NewFromConfig builds a Client from a loaded configuration.
func NewFromConfig(cfg *Config, extra ...Option) *Client {
	return New(cfg.BaseURL, append(cfg.Options(), extra...)...)
}
