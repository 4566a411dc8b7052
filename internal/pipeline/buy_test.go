package pipeline

import (
	"testing"
	"time"

	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/risk"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubBudget struct {
	state      models.TradingState
	affordable bool
	failedGate string
	balance    decimal.Decimal
}

func (s *stubBudget) CanAfford(price decimal.Decimal) (bool, string) {
	return s.affordable, s.failedGate
}
func (s *stubBudget) TradingState() models.TradingState { return s.state }
func (s *stubBudget) Balance() decimal.Decimal          { return s.balance }

type stubHistory struct {
	count      int
	err        error
	askedPrice decimal.Decimal
}

func (s *stubHistory) CountSalesAtOrAbove(item string, price decimal.Decimal, since time.Time) (int, error) {
	s.askedPrice = price
	return s.count, s.err
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testEntry() *models.WhitelistEntry {
	return &models.WhitelistEntry{
		ItemName:        "Test Item",
		Tier:            models.Tier1,
		MinDiscountPct:  dec("20"),
		MinSpreadPct:    dec("5"),
		TargetProfitPct: dec("10"),
		MaxHoldings:     3,
		Active:          true,
	}
}

func testStats() *models.MarketStats {
	return &models.MarketStats{
		ItemName:       "Test Item",
		Avg7d:          dec("35.50"),
		Min30d:         dec("25.00"),
		StdDev:         0.8,
		SalesCount30d:  40,
		AvgSalesPerDay: 4.0,
		VelocityKnown:  true,
	}
}

func newBuyPipeline(budget *stubBudget, history *stubHistory) *BuyPipeline {
	cfg := &models.Config{}
	cfg.ApplyDefaults()
	cfg.MaxRiskPerTrade = dec("0.10")
	return NewBuyPipeline(budget, risk.NewScorer(), history, cfg, zap.NewNop().Sugar())
}

func candidate() BuyCandidate {
	return BuyCandidate{
		Listing: models.Listing{SaleID: "sale-1", ItemName: "Test Item", Price: dec("28.00")},
		Entry:   testEntry(),
		Stats:   testStats(),
	}
}

func TestBuyAcceptsDiscountedListing(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	history := &stubHistory{count: 5}
	p := newBuyPipeline(budget, history)

	opp, rej, err := p.Evaluate(candidate())
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, opp)

	// 28.00 * 1.10 / 0.85 = 36.2352... -> 36.24
	assert.Equal(t, "36.24", opp.TargetSellPrice.StringFixed(2))
	assert.Equal(t, "36.24", history.askedPrice.StringFixed(2))
	// net(36.24) = 36.24 - 5.44 = 30.80
	assert.Equal(t, "2.80", opp.ExpectedProfit.StringFixed(2))
	assert.Equal(t, "sale-1", opp.SaleID)
	assert.NotEmpty(t, opp.ID)
	assert.Equal(t, models.Tier1, opp.Tier)
}

func TestBuyRejectsInLockdownAndEmergency(t *testing.T) {
	for _, state := range []models.TradingState{models.StateLockdown, models.StateEmergency} {
		budget := &stubBudget{state: state, affordable: true, balance: dec("1000")}
		p := newBuyPipeline(budget, &stubHistory{count: 5})

		opp, rej, err := p.Evaluate(candidate())
		require.NoError(t, err)
		assert.Nil(t, opp)
		require.NotNil(t, rej)
		assert.Equal(t, GateTradingState, rej.Gate)
	}
}

func TestBuyRejectsMissingOrInactiveWhitelist(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	c := candidate()
	c.Entry = nil
	_, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateWhitelist, rej.Gate)

	c = candidate()
	c.Entry.Active = false
	_, rej, _ = p.Evaluate(c)
	require.NotNil(t, rej)
	assert.Equal(t, GateWhitelist, rej.Gate)
}

func TestBuyRejectsWithoutStats(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	c := candidate()
	c.Stats = nil
	_, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateDiscount, rej.Gate)
}

func TestBuyDiscountBoundary(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	// avg 35.50, price 28.00 -> 21.1% discount, passes the 20% minimum.
	opp, rej, err := p.Evaluate(candidate())
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, opp)

	// price 28.50 -> 19.7% discount, fails.
	c := candidate()
	c.Listing.Price = dec("28.50")
	_, rej, _ = p.Evaluate(c)
	require.NotNil(t, rej)
	assert.Equal(t, GateDiscount, rej.Gate)
}

func TestBuySpreadGate(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	// Known next-cheapest with a thin spread: reject.
	c := candidate()
	c.NextCheapest = decPtr("28.50") // 1.8% over 28.00, below the 5% minimum
	_, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateSpread, rej.Gate)

	// Wide spread passes.
	c.NextCheapest = decPtr("30.00") // 7.1%
	opp, rej, _ := p.Evaluate(c)
	assert.Nil(t, rej)
	assert.NotNil(t, opp)

	// Unknown next-cheapest is an explicit pass, not a rejection.
	c.NextCheapest = nil
	opp, rej, _ = p.Evaluate(c)
	assert.Nil(t, rej)
	assert.NotNil(t, opp)
}

func TestBuyBudgetGate(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: false, failedGate: "hard_floor", balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	_, rej, err := p.Evaluate(candidate())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateBudget, rej.Gate)
	assert.Contains(t, rej.Reason, "hard_floor")
}

func TestBuyPortfolioGate(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	c := candidate()
	c.Holdings = 3 // == MaxHoldings
	_, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GatePortfolio, rej.Gate)
}

func TestBuyViabilityGate(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 2})

	_, rej, err := p.Evaluate(candidate())
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateViability, rej.Gate)
}

func TestBuyRiskGate(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	c := candidate()
	c.Stats.StdDev = 6.0     // capped volatility factor: 6.0
	c.Stats.SalesCount30d = 5 // thin history: +2.0, total 8.0 > 7.0
	_, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.NotNil(t, rej)
	assert.Equal(t, GateRisk, rej.Gate)
}

func TestBuyConservativeTightensSizingAndMargin(t *testing.T) {
	// Balance 1000, max risk 10% -> normal cap 100, conservative cap 50.
	budget := &stubBudget{state: models.StateConservative, affordable: true, balance: dec("1000")}
	history := &stubHistory{count: 5}
	p := newBuyPipeline(budget, history)

	c := candidate() // price 28.00, below the halved cap
	opp, rej, err := p.Evaluate(c)
	require.NoError(t, err)
	require.Nil(t, rej)
	require.NotNil(t, opp)
	// Margin raised by 5 points: 28.00 * 1.15 / 0.85 = 37.88...
	assert.Equal(t, "37.88", opp.TargetSellPrice.StringFixed(2))

	// A price above the halved cap is rejected even though CanAfford passes.
	c.Listing.Price = dec("60.00")
	c.Stats.Avg7d = dec("100.00") // keep the discount gate satisfied
	_, rej, _ = p.Evaluate(c)
	require.NotNil(t, rej)
	assert.Equal(t, GateBudget, rej.Gate)
	assert.Contains(t, rej.Reason, "conservative sizing")
}

func TestBuyValidatesInput(t *testing.T) {
	budget := &stubBudget{state: models.StateNormal, affordable: true, balance: dec("1000")}
	p := newBuyPipeline(budget, &stubHistory{count: 5})

	c := candidate()
	c.Listing.Price = decimal.Zero
	_, _, err := p.Evaluate(c)
	var invalid *models.ValidationError
	require.ErrorAs(t, err, &invalid)

	c = candidate()
	c.Listing.SaleID = ""
	_, _, err = p.Evaluate(c)
	require.ErrorAs(t, err, &invalid)
}

func TestTargetSellPriceSpecExample(t *testing.T) {
	// Purchase 10.00, target profit 10%, fee 15% -> 12.94; selling nets
	// 11.00 after a 1.94 fee, a 1.00 (10%) profit.
	target := TargetSellPrice(dec("10.00"), dec("10"), dec("0.15"))
	assert.Equal(t, "12.94", target.StringFixed(2))
	assert.Equal(t, "11.00", NetProceeds(target, dec("0.15")).StringFixed(2))
	assert.Equal(t, "1.00", ExpectedProfit(dec("10.00"), target, dec("0.15")).StringFixed(2))
}
