package models

import "github.com/shopspring/decimal"

// Config holds all bot configuration loaded from the JSON config file.
// API credentials and webhook URLs come from the environment, not from here.
type Config struct {
	APIBaseURL string `json:"api_base_url"`
	WSBaseURL  string `json:"ws_base_url"`
	DBPath     string `json:"db_path"`
	QueuePath  string `json:"queue_path"`

	// Budget safety rails. Floors are absolute balance thresholds; the
	// remaining knobs are fractions of the current balance.
	HardFloor        decimal.Decimal `json:"hard_floor"`
	SoftFloor        decimal.Decimal `json:"soft_floor"`
	MaxRiskPerTrade  decimal.Decimal `json:"max_risk_per_trade"`
	MaxTotalExposure decimal.Decimal `json:"max_total_exposure"`
	MinReservePct    decimal.Decimal `json:"min_reserve_pct"`

	// Trading economics.
	FeeRate      decimal.Decimal `json:"fee_rate"`       // marketplace sale fee, default 0.15
	MinMarginPct decimal.Decimal `json:"min_margin_pct"` // minimum acceptable sell margin, default 3

	// API protection.
	RateLimitPerMinute int `json:"rate_limit_per_minute"` // default 30
	RequestDelayMs     int `json:"request_delay_ms"`      // default 100
	BreakerThreshold   int `json:"breaker_threshold"`     // default 10
	BreakerRecoverySec int `json:"breaker_recovery_sec"`  // default 300

	// Execution.
	WorkerCount     int `json:"worker_count"`
	MaxAttempts     int `json:"max_attempts"` // queue redeliveries per opportunity
	ScanIntervalSec int `json:"scan_interval_sec"`

	DryRun bool `json:"dry_run"`

	LogConfig LogConfig `json:"log"`
}

// LogConfig mirrors the logger package's needs: level, output target and
// rotation settings for the file sink.
type LogConfig struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "console", "file" or "both"
	File       string `json:"file"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

// ApplyDefaults fills unset fields with safe defaults.
func (c *Config) ApplyDefaults() {
	if c.FeeRate.IsZero() {
		c.FeeRate = decimal.NewFromFloat(0.15)
	}
	if c.MinMarginPct.IsZero() {
		c.MinMarginPct = decimal.NewFromInt(3)
	}
	if c.MaxRiskPerTrade.IsZero() {
		c.MaxRiskPerTrade = decimal.NewFromFloat(0.10)
	}
	if c.MaxTotalExposure.IsZero() {
		c.MaxTotalExposure = decimal.NewFromFloat(0.50)
	}
	if c.MinReservePct.IsZero() {
		c.MinReservePct = decimal.NewFromFloat(0.05)
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 30
	}
	if c.RequestDelayMs == 0 {
		c.RequestDelayMs = 100
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 10
	}
	if c.BreakerRecoverySec == 0 {
		c.BreakerRecoverySec = 300
	}
	if c.WorkerCount == 0 {
		c.WorkerCount = 4
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 5
	}
	if c.ScanIntervalSec == 0 {
		c.ScanIntervalSec = 300
	}
	if c.DBPath == "" {
		c.DBPath = "bot.db"
	}
	if c.QueuePath == "" {
		c.QueuePath = "queue"
	}
}
