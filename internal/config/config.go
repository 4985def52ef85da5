package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Assets []string `yaml:"assets"`

	Markets struct {
		RefreshMin     int `yaml:"refresh_min"`
		HistoryDays    int `yaml:"history_days"`
		CacheTTLMin    int `yaml:"cache_ttl_min"`
		RequestDelayMs int `yaml:"request_delay_ms"`
		RetryAttempts  int `yaml:"retry_attempts"`
		RetryDelayMs   int `yaml:"retry_delay_ms"`
	} `yaml:"markets"`

	Predict struct {
		RefreshMin    int `yaml:"refresh_min"`
		AssetsPerRun  int `yaml:"assets_per_run"`
		RetentionDays int `yaml:"retention_days"`
		RollupHours   int `yaml:"rollup_hours"`
	} `yaml:"predict"`

	Limits struct {
		MarketPerDay    int `yaml:"market_per_day"`
		InferencePerDay int `yaml:"inference_per_day"`
		EmailPerDay     int `yaml:"email_per_day"`
	} `yaml:"limits"`

	Gemini struct {
		Model  string `yaml:"model"`
		APIKey string `yaml:"api_key"`
	} `yaml:"gemini"`

	SMTP struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		User string `yaml:"user"`
		Pass string `yaml:"pass"`
		From string `yaml:"from"`
	} `yaml:"smtp"`

	Email struct {
		MinGapMin    int  `yaml:"min_gap_min"`
		OnChangeOnly bool `yaml:"on_change_only"`
	} `yaml:"email"`

	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`
}

var defaultAssets = []string{"bitcoin", "ethereum", "solana", "dogecoin", "cardano"}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("ASSETS"); v != "" {
		cfg.Assets = splitList(v)
	}
	envInt("MARKETS_REFRESH_MIN", &cfg.Markets.RefreshMin)
	envInt("MARKET_REQUEST_DELAY_MS", &cfg.Markets.RequestDelayMs)
	envInt("MARKET_RETRY_ATTEMPTS", &cfg.Markets.RetryAttempts)
	envInt("MARKET_RETRY_DELAY_MS", &cfg.Markets.RetryDelayMs)
	envInt("PREDICT_REFRESH_MIN", &cfg.Predict.RefreshMin)
	envInt("PREDICT_ASSETS_PER_RUN", &cfg.Predict.AssetsPerRun)
	envInt("RAW_RETENTION_DAYS", &cfg.Predict.RetentionDays)
	envInt("ROLLUP_INTERVAL_HOURS", &cfg.Predict.RollupHours)
	envInt("MAX_MARKET_REQ_PER_DAY", &cfg.Limits.MarketPerDay)
	envInt("MAX_INFERENCE_REQ_PER_DAY", &cfg.Limits.InferencePerDay)
	envInt("EMAIL_MAX_PER_DAY", &cfg.Limits.EmailPerDay)
	envInt("EMAIL_MIN_GAP_MIN", &cfg.Email.MinGapMin)
	if v := os.Getenv("SEND_EMAIL_ON_CHANGE_ONLY"); v != "" {
		cfg.Email.OnChangeOnly = parseBool(v)
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	envInt("SMTP_PORT", &cfg.SMTP.Port)
	if v := os.Getenv("SMTP_USER"); v != "" {
		cfg.SMTP.User = v
	}
	if v := os.Getenv("SMTP_PASS"); v != "" {
		cfg.SMTP.Pass = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	// Defaults
	if len(cfg.Assets) == 0 {
		cfg.Assets = defaultAssets
	}
	if cfg.Markets.RefreshMin == 0 {
		cfg.Markets.RefreshMin = 5
	}
	if cfg.Markets.HistoryDays == 0 {
		cfg.Markets.HistoryDays = 7
	}
	if cfg.Markets.CacheTTLMin == 0 {
		cfg.Markets.CacheTTLMin = 15
	}
	if cfg.Markets.RequestDelayMs == 0 {
		cfg.Markets.RequestDelayMs = 1500
	}
	if cfg.Markets.RetryAttempts == 0 {
		cfg.Markets.RetryAttempts = 2
	}
	if cfg.Markets.RetryDelayMs == 0 {
		cfg.Markets.RetryDelayMs = 10000
	}
	if cfg.Predict.RefreshMin == 0 {
		cfg.Predict.RefreshMin = 10
	}
	if cfg.Predict.AssetsPerRun == 0 {
		cfg.Predict.AssetsPerRun = 5
	}
	if cfg.Predict.RetentionDays == 0 {
		cfg.Predict.RetentionDays = 90
	}
	if cfg.Predict.RollupHours == 0 {
		cfg.Predict.RollupHours = 1
	}
	if cfg.Limits.MarketPerDay == 0 {
		cfg.Limits.MarketPerDay = 250
	}
	if cfg.Limits.InferencePerDay == 0 {
		cfg.Limits.InferencePerDay = 800
	}
	if cfg.Limits.EmailPerDay == 0 {
		cfg.Limits.EmailPerDay = 100
	}
	if cfg.Email.MinGapMin == 0 {
		cfg.Email.MinGapMin = 60
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.0-flash"
	}
	if cfg.SMTP.Host == "" {
		cfg.SMTP.Host = "smtp.gmail.com"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.SMTP.From == "" && cfg.SMTP.User != "" {
		cfg.SMTP.From = "Quantora AI <" + cfg.SMTP.User + ">"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/quantora.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	return cfg, nil
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Assets) == 0 {
		return fmt.Errorf("assets must not be empty")
	}
	if c.Predict.AssetsPerRun <= 0 {
		return fmt.Errorf("predict.assets_per_run must be positive")
	}
	if c.Predict.RefreshMin <= 0 {
		return fmt.Errorf("predict.refresh_min must be positive")
	}
	if c.Predict.RollupHours <= 0 || 24%c.Predict.RollupHours != 0 {
		return fmt.Errorf("predict.rollup_hours must divide 24")
	}
	return nil
}

// RequestDelay is the minimum delay between outbound provider requests.
func (c *Config) RequestDelay() time.Duration {
	return time.Duration(c.Markets.RequestDelayMs) * time.Millisecond
}

// RetryDelay is the base backoff for rate-limited provider retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Markets.RetryDelayMs) * time.Millisecond
}

// EmailMinGap is the per-recipient per-asset notification cooldown.
func (c *Config) EmailMinGap() time.Duration {
	return time.Duration(c.Email.MinGapMin) * time.Minute
}

// SnapshotTTL is how long a persisted snapshot counts as fresh.
func (c *Config) SnapshotTTL() time.Duration {
	return time.Duration(c.Markets.CacheTTLMin) * time.Minute
}

func envInt(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
