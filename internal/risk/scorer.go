package risk

import (
	"math"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

const (
	// MaxScore is returned when no market stats exist: absence of data is
	// worst-case risk, never a skip.
	MaxScore = 10.0

	// AcceptableThreshold is the fixed cut-off the buy pipeline applies,
	// independent of item tier.
	AcceptableThreshold = 7.0
)

// Scorer rates a candidate purchase 0-10 from independent additive
// factors. Scores are plain float64: they are heuristics, not money.
type Scorer struct{}

func NewScorer() *Scorer { return &Scorer{} }

// Score combines volatility, proximity to the 30-day low, liquidity,
// portfolio concentration and data sufficiency. Each factor is capped
// individually and the sum is capped at 10.0, rounded to one decimal.
func (s *Scorer) Score(stats *models.MarketStats, currentPrice decimal.Decimal, currentHoldings int) float64 {
	if stats == nil {
		return MaxScore
	}

	var score float64

	// Price volatility, scaled from a stddev of 2.0 upwards.
	if stats.StdDev >= 2.0 {
		score += math.Min(3.0*(stats.StdDev/2.0), 6.0)
	}

	// Buying near the 30-day low leaves little room before a floor breach.
	if stats.Min30d.IsPositive() {
		aboveLowPct, _ := currentPrice.Sub(stats.Min30d).
			Div(stats.Min30d).Mul(decimal.NewFromInt(100)).Float64()
		if aboveLowPct <= 5.0 {
			score += 2.0
		}
	}

	// Illiquid items take longer to exit; unknown velocity is treated as
	// illiquid.
	if !stats.VelocityKnown || stats.AvgSalesPerDay <= 0 {
		score += 2.0
	} else if stats.AvgSalesPerDay < 2.0 {
		score += math.Min(2.0*(2.0/stats.AvgSalesPerDay), 4.0)
	}

	// Concentration: every unit already held raises the stake in one item.
	score += 1.5 * float64(currentHoldings)

	// Thin history makes every other factor unreliable.
	if stats.SalesCount30d < 10 {
		score += 2.0
	}

	if score > MaxScore {
		score = MaxScore
	}
	return math.Round(score*10) / 10
}

// Acceptable reports whether a score passes the fixed threshold.
func Acceptable(score float64) bool {
	return score <= AcceptableThreshold
}
