package config

import (
	"encoding/json"
	"fmt"
	"os"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	zeroDecimal = decimal.Zero
	oneDecimal  = decimal.NewFromInt(1)
)

// Load reads the JSON config file, applies defaults and validates the
// safety rails before the bot is allowed to start.
func Load(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &models.Config{}
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that would disable the capital
// protections. A bot with a soft floor below the hard floor would never
// enter the emergency state before lockdown.
func Validate(cfg *models.Config) error {
	if cfg.HardFloor.IsNegative() {
		return fmt.Errorf("hard_floor must not be negative")
	}
	if cfg.SoftFloor.LessThanOrEqual(cfg.HardFloor) {
		return fmt.Errorf("soft_floor (%s) must be above hard_floor (%s)",
			cfg.SoftFloor, cfg.HardFloor)
	}
	if cfg.FeeRate.IsNegative() || cfg.FeeRate.GreaterThanOrEqual(oneDecimal) {
		return fmt.Errorf("fee_rate must be in [0, 1), got %s", cfg.FeeRate)
	}
	if cfg.MaxRiskPerTrade.LessThanOrEqual(zeroDecimal) || cfg.MaxRiskPerTrade.GreaterThan(oneDecimal) {
		return fmt.Errorf("max_risk_per_trade must be in (0, 1], got %s", cfg.MaxRiskPerTrade)
	}
	if cfg.MaxTotalExposure.LessThanOrEqual(zeroDecimal) || cfg.MaxTotalExposure.GreaterThan(oneDecimal) {
		return fmt.Errorf("max_total_exposure must be in (0, 1], got %s", cfg.MaxTotalExposure)
	}
	if cfg.MinReservePct.IsNegative() || cfg.MinReservePct.GreaterThanOrEqual(oneDecimal) {
		return fmt.Errorf("min_reserve_pct must be in [0, 1), got %s", cfg.MinReservePct)
	}
	if cfg.APIBaseURL == "" {
		return fmt.Errorf("api_base_url is required")
	}
	return nil
}
