package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Probe   ProbeConfig   `json:"probe"`
	Pool    PoolConfig    `json:"pool"`
	Output  OutputConfig  `json:"output"`
	Storage StorageConfig `json:"storage"`
	API     APIConfig     `json:"api"`
	Metrics MetricsConfig `json:"metrics"`
	Logging LoggingConfig `json:"logging"`
}

type ProbeConfig struct {
	TimeoutMs            int      `json:"timeout_ms"`
	RetryAttempts        int      `json:"retry_attempts"`
	RetryDelayMs         int      `json:"retry_delay_ms"`
	CheckEndpoints       []string `json:"check_endpoints"`
	Protocol             string   `json:"protocol"` // "http" or "socks5"
	UserAgent            string   `json:"user_agent"`
	EnablePrefilter      bool     `json:"enable_prefilter"`
	PrefilterTimeoutMs   int      `json:"prefilter_timeout_ms"`
	PrefilterConcurrency int      `json:"prefilter_concurrency"`
	PrefilterMinProxies  int      `json:"prefilter_min_proxies"`
}

type PoolConfig struct {
	Concurrency   int `json:"concurrency"` // 0 = NumCPU-1
	ETAWindowSize int `json:"eta_window_size"`
}

type OutputConfig struct {
	WorkingPath string `json:"working_path"`
	FailedPath  string `json:"failed_path"`
}

type StorageConfig struct {
	Enabled                bool   `json:"enabled"`
	Type                   string `json:"type"` // "file", "sqlite", "redis"
	Path                   string `json:"path"`
	PersistIntervalSeconds int    `json:"persist_interval_seconds"`
}

type APIConfig struct {
	Enabled            bool   `json:"enabled"`
	Addr               string `json:"addr"`
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultCheckEndpoints are tried in order; each returns the caller's public
// IP in one of the schema shapes the probe extractors understand.
func DefaultCheckEndpoints() []string {
	return []string{
		"http://ip-api.com/json",
		"https://httpbin.org/ip",
		"https://api.ipify.org?format=json",
	}
}

// Load reads configuration from a JSON file. A missing file is not an
// error: the tool runs on defaults so the CLI works out of the box.
func Load(filePath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Probe.TimeoutMs == 0 {
		c.Probe.TimeoutMs = 10000
	}
	if c.Probe.RetryAttempts == 0 {
		c.Probe.RetryAttempts = 3
	}
	if c.Probe.RetryDelayMs == 0 {
		c.Probe.RetryDelayMs = 1000
	}
	if len(c.Probe.CheckEndpoints) == 0 {
		c.Probe.CheckEndpoints = DefaultCheckEndpoints()
	}
	if c.Probe.Protocol == "" {
		c.Probe.Protocol = "http"
	}
	if c.Probe.PrefilterTimeoutMs == 0 {
		c.Probe.PrefilterTimeoutMs = 3000
	}
	if c.Probe.PrefilterConcurrency == 0 {
		c.Probe.PrefilterConcurrency = 500
	}
	if c.Probe.PrefilterMinProxies == 0 {
		c.Probe.PrefilterMinProxies = 1000
	}
	if c.Pool.ETAWindowSize == 0 {
		c.Pool.ETAWindowSize = 100
	}
	if c.Output.WorkingPath == "" {
		c.Output.WorkingPath = "working_proxies.json"
	}
	if c.Output.FailedPath == "" {
		c.Output.FailedPath = "failed_proxies.json"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "run_snapshot.json"
	}
	if c.Storage.PersistIntervalSeconds == 0 {
		c.Storage.PersistIntervalSeconds = 30
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8083"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 1200
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "proxy_vitals"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Pool.Concurrency < 0 || c.Pool.Concurrency > 100000 {
		return fmt.Errorf("concurrency must be between 0 and 100000")
	}
	if c.Probe.TimeoutMs < 100 || c.Probe.TimeoutMs > 300000 {
		return fmt.Errorf("timeout_ms must be between 100 and 300000")
	}
	if c.Probe.RetryAttempts < 1 || c.Probe.RetryAttempts > 100 {
		return fmt.Errorf("retry_attempts must be between 1 and 100")
	}
	if c.Probe.Protocol != "http" && c.Probe.Protocol != "socks5" {
		return fmt.Errorf("protocol must be 'http' or 'socks5'")
	}
	if c.Pool.ETAWindowSize < 2 {
		return fmt.Errorf("eta_window_size must be at least 2")
	}
	if c.Storage.Type != "file" && c.Storage.Type != "sqlite" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'file', 'sqlite', or 'redis'")
	}
	return nil
}
