package config

import (
	"os"
	"path/filepath"
	"testing"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"api_base_url": "https://api.example.com",
		"hard_floor": "50",
		"soft_floor": "100"
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.FeeRate.Equal(decimal.NewFromFloat(0.15)))
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 100, cfg.RequestDelayMs)
	assert.Equal(t, 10, cfg.BreakerThreshold)
	assert.Equal(t, 300, cfg.BreakerRecoverySec)
}

func TestLoadRejectsInvertedFloors(t *testing.T) {
	path := writeConfig(t, `{
		"api_base_url": "https://api.example.com",
		"hard_floor": "100",
		"soft_floor": "50"
	}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soft_floor")
}

func TestValidateBounds(t *testing.T) {
	base := func() *models.Config {
		cfg := &models.Config{
			APIBaseURL: "https://api.example.com",
			HardFloor:  decimal.NewFromInt(50),
			SoftFloor:  decimal.NewFromInt(100),
		}
		cfg.ApplyDefaults()
		return cfg
	}

	cfg := base()
	require.NoError(t, Validate(cfg))

	cfg = base()
	cfg.FeeRate = decimal.NewFromInt(1)
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.MaxRiskPerTrade = decimal.NewFromInt(2)
	assert.Error(t, Validate(cfg))

	cfg = base()
	cfg.APIBaseURL = ""
	assert.Error(t, Validate(cfg))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}
