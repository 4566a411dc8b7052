package pipeline

import (
	"testing"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSellPipeline() *SellPipeline {
	cfg := &models.Config{}
	cfg.ApplyDefaults() // fee 0.15, min margin 3%
	return NewSellPipeline(cfg, zap.NewNop().Sugar())
}

// holdingPosition: bought at 10.00. minProfitable = 12.12, breakEven = 11.76,
// target = 12.94.
func holdingPosition(daysHeld int, now time.Time) *models.Position {
	return &models.Position{
		SaleID:          "own-1",
		ItemName:        "Test Item",
		PurchasePrice:   dec("10.00"),
		PurchasedAt:     now.AddDate(0, 0, -daysHeld),
		TargetSellPrice: dec("12.94"),
		Status:          models.StatusHolding,
	}
}

func listings(prices ...string) []models.Listing {
	out := make([]models.Listing, 0, len(prices))
	for i, p := range prices {
		out = append(out, models.Listing{
			SaleID:   "comp-" + string(rune('a'+i)),
			ItemName: "Test Item",
			Price:    dec(p),
		})
	}
	return out
}

func TestHoldingUndercutReachesTarget(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	opp, err := p.Evaluate(SellCandidate{
		Position: holdingPosition(1, now),
		Listings: listings("13.50", "14.00"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellList, opp.Action)
	assert.Equal(t, "13.49", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "target achievable")
}

func TestHoldingProfitableUndercut(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// undercut 12.49 is below target 12.94 but above minProfitable 12.12.
	opp, err := p.Evaluate(SellCandidate{
		Position: holdingPosition(1, now),
		Listings: listings("12.50"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellList, opp.Action)
	assert.Equal(t, "12.49", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "%")
}

func TestHoldingExcludesOwnListing(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	ls := listings("13.50")
	ls = append(ls, models.Listing{SaleID: "own-1", ItemName: "Test Item", Price: dec("9.00")})

	opp, err := p.Evaluate(SellCandidate{
		Position: holdingPosition(1, now),
		Listings: ls,
		Now:      now,
	})
	require.NoError(t, err)
	// Our own 9.00 listing must not count as competition.
	assert.Equal(t, "13.49", opp.Price.StringFixed(2))
}

func TestHoldingHeldTooLongExitsAtBreakEvenOrBetter(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// cheapest 12.00 >= breakEven 11.76, undercut 11.99 below minProfitable.
	opp, err := p.Evaluate(SellCandidate{
		Position: holdingPosition(8, now),
		Listings: listings("12.00"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellList, opp.Action)
	assert.Equal(t, "11.99", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "held too long")

	// cheapest exactly at break-even: undercut would dip below, so the
	// price is clamped up to break-even.
	opp, err = p.Evaluate(SellCandidate{
		Position: holdingPosition(8, now),
		Listings: listings("11.76"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, "11.76", opp.Price.StringFixed(2))
}

func TestHoldingStopLossOnMarketDrop(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	opp, err := p.Evaluate(SellCandidate{
		Position:  holdingPosition(2, now),
		Listings:  listings("10.00"),
		MarketAvg: dec("8.90"), // 11% below the 10.00 purchase
		Now:       now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellList, opp.Action)
	assert.Equal(t, "9.99", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "stop-loss")
}

func TestHoldingNoExitHolds(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	opp, err := p.Evaluate(SellCandidate{
		Position:  holdingPosition(2, now),
		Listings:  listings("10.00"),
		MarketAvg: dec("9.50"), // only 5% down: no stop-loss
		Now:       now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellHold, opp.Action)
}

func TestHoldingNoCompetitionListsAtTarget(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	opp, err := p.Evaluate(SellCandidate{
		Position: holdingPosition(1, now),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellList, opp.Action)
	assert.Equal(t, "12.94", opp.Price.StringFixed(2))
}

func listedPosition(daysHeld int, listedAt string, now time.Time) *models.Position {
	pos := holdingPosition(daysHeld, now)
	pos.Status = models.StatusListed
	pos.ListedPrice = dec(listedAt)
	return pos
}

func TestListedStillCompetitiveHolds(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// Exactly one cent above the cheapest competitor: tie goes to hold.
	opp, err := p.Evaluate(SellCandidate{
		Position: listedPosition(1, "12.01", now),
		Listings: listings("12.00"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellHold, opp.Action)
	assert.Equal(t, "still competitive", opp.Reason)
}

func TestListedSmallGapFreshListingHolds(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// Gap 0.30 <= 0.50 and listed under 3 days: no churn.
	opp, err := p.Evaluate(SellCandidate{
		Position: listedPosition(1, "12.70", now),
		Listings: listings("12.40"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellHold, opp.Action)
}

func TestListedWideGapUndercuts(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// Gap 0.60 > 0.50, undercut 12.39 >= minProfitable 12.12.
	opp, err := p.Evaluate(SellCandidate{
		Position: listedPosition(1, "13.00", now),
		Listings: listings("12.40"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellAdjust, opp.Action)
	assert.Equal(t, "12.39", opp.Price.StringFixed(2))
}

func TestListedStaleListingUndercuts(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	opp, err := p.Evaluate(SellCandidate{
		Position: listedPosition(3, "12.70", now),
		Listings: listings("12.40"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellAdjust, opp.Action)
	assert.Equal(t, "12.39", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "3d")
}

func TestListedCutsLossesAfterFiveDays(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	// undercut 11.89 below minProfitable 12.12 but above breakEven 11.76.
	opp, err := p.Evaluate(SellCandidate{
		Position: listedPosition(5, "13.00", now),
		Listings: listings("11.90"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellAdjust, opp.Action)
	assert.Equal(t, "11.89", opp.Price.StringFixed(2))
	assert.Contains(t, opp.Reason, "cutting losses")

	// Same market but only four days in: not yet.
	opp, err = p.Evaluate(SellCandidate{
		Position: listedPosition(4, "13.00", now),
		Listings: listings("11.90"),
		Now:      now,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SellHold, opp.Action)
}

func TestSellRejectsTerminalPositions(t *testing.T) {
	now := time.Now()
	p := newSellPipeline()

	pos := holdingPosition(1, now)
	pos.Status = models.StatusSold
	_, err := p.Evaluate(SellCandidate{Position: pos, Now: now})
	var invalid *models.ValidationError
	require.ErrorAs(t, err, &invalid)
}

func TestPositionStatusTransitions(t *testing.T) {
	assert.True(t, models.StatusHolding.CanTransitionTo(models.StatusListed))
	assert.True(t, models.StatusListed.CanTransitionTo(models.StatusSold))
	assert.True(t, models.StatusHolding.CanTransitionTo(models.StatusFailed))
	assert.False(t, models.StatusListed.CanTransitionTo(models.StatusHolding))
	assert.False(t, models.StatusSold.CanTransitionTo(models.StatusListed))
	assert.False(t, models.StatusFailed.CanTransitionTo(models.StatusHolding))
}
