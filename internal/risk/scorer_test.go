package risk

import (
	"testing"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func liquidStats() *models.MarketStats {
	// A calm, liquid, well-documented item: no factor should fire.
	return &models.MarketStats{
		ItemName:       "Liquid Item",
		Min30d:         decimal.NewFromInt(20),
		StdDev:         0.5,
		SalesCount30d:  40,
		AvgSalesPerDay: 5.0,
		VelocityKnown:  true,
	}
}

func TestScoreMissingStatsIsMaxRisk(t *testing.T) {
	s := NewScorer()
	got := s.Score(nil, decimal.NewFromInt(10), 0)
	assert.Equal(t, MaxScore, got)
	assert.False(t, Acceptable(got))
}

func TestScoreCalmItemIsZero(t *testing.T) {
	s := NewScorer()
	got := s.Score(liquidStats(), decimal.NewFromInt(30), 0)
	assert.Equal(t, 0.0, got)
}

func TestScoreVolatilityFactor(t *testing.T) {
	s := NewScorer()

	stats := liquidStats()
	stats.StdDev = 2.0
	assert.Equal(t, 3.0, s.Score(stats, decimal.NewFromInt(30), 0))

	stats.StdDev = 1.99 // below the activation threshold
	assert.Equal(t, 0.0, s.Score(stats, decimal.NewFromInt(30), 0))

	stats.StdDev = 10.0 // capped at 6.0
	assert.Equal(t, 6.0, s.Score(stats, decimal.NewFromInt(30), 0))
}

func TestScoreNearThirtyDayLow(t *testing.T) {
	s := NewScorer()
	stats := liquidStats() // min 20

	// 21 is exactly 5% above the low: factor fires on the boundary.
	assert.Equal(t, 2.0, s.Score(stats, decimal.NewFromInt(21), 0))
	assert.Equal(t, 0.0, s.Score(stats, decimal.NewFromFloat(21.01), 0))
}

func TestScoreLiquidityFactor(t *testing.T) {
	s := NewScorer()

	stats := liquidStats()
	stats.AvgSalesPerDay = 1.0 // 2.0 * (2.0/1.0) = 4.0, at the cap
	assert.Equal(t, 4.0, s.Score(stats, decimal.NewFromInt(30), 0))

	stats.AvgSalesPerDay = 0
	stats.VelocityKnown = false // unknown velocity: flat 2.0
	assert.Equal(t, 2.0, s.Score(stats, decimal.NewFromInt(30), 0))
}

func TestScoreConcentrationAndInsufficientData(t *testing.T) {
	s := NewScorer()

	stats := liquidStats()
	assert.Equal(t, 3.0, s.Score(stats, decimal.NewFromInt(30), 2)) // 1.5 * 2

	stats.SalesCount30d = 9
	assert.Equal(t, 5.0, s.Score(stats, decimal.NewFromInt(30), 2))
}

func TestScoreCapsAtTen(t *testing.T) {
	s := NewScorer()
	stats := &models.MarketStats{
		Min30d:        decimal.NewFromInt(30),
		StdDev:        10.0, // 6.0
		SalesCount30d: 1,    // 2.0
		VelocityKnown: false, // 2.0
	}
	got := s.Score(stats, decimal.NewFromInt(100), 4) // + 6.0 concentration
	assert.Equal(t, MaxScore, got)
}

func TestScoreSpecExample(t *testing.T) {
	// Unknown velocity plus stddev 3.0 must contribute at least
	// 4.5 (volatility) + 2.0 (liquidity unknown).
	s := NewScorer()
	stats := &models.MarketStats{
		Min30d:         decimal.NewFromInt(10),
		StdDev:         3.0,
		SalesCount30d:  30,
		AvgSalesPerDay: 0,
		VelocityKnown:  false,
	}
	got := s.Score(stats, decimal.NewFromInt(100), 0)
	assert.GreaterOrEqual(t, got, 5.0)
	assert.Equal(t, 6.5, got) // 3.0*(3.0/2.0) + 2.0
}
