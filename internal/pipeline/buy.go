package pipeline

import (
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/risk"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BudgetGate is the slice of the ledger the buy pipeline needs. The
// pipeline only checks; reserving is the executor's job.
type BudgetGate interface {
	CanAfford(price decimal.Decimal) (bool, string)
	TradingState() models.TradingState
	Balance() decimal.Decimal
}

// BuyCandidate is one listing under evaluation together with the context
// the gates need. NextCheapest is nil when the next-cheapest competing
// price is unknown; the spread gate then passes by design (spread data can
// require an extra fetch, and the discount gate already bounds the entry
// price).
type BuyCandidate struct {
	Listing      models.Listing
	Entry        *models.WhitelistEntry
	Stats        *models.MarketStats
	NextCheapest *decimal.Decimal
	Holdings     int
}

// BuyPipeline turns a market listing into an accepted BuyOpportunity or a
// named rejection. Gates run in a fixed order and short-circuit on the
// first failure.
type BuyPipeline struct {
	budget          BudgetGate
	scorer          *risk.Scorer
	history         HistoryCounter
	feeRate         decimal.Decimal
	maxRiskPerTrade decimal.Decimal
	log             *zap.SugaredLogger
}

func NewBuyPipeline(budget BudgetGate, scorer *risk.Scorer, history HistoryCounter, cfg *models.Config, log *zap.SugaredLogger) *BuyPipeline {
	return &BuyPipeline{
		budget:          budget,
		scorer:          scorer,
		history:         history,
		feeRate:         cfg.FeeRate,
		maxRiskPerTrade: cfg.MaxRiskPerTrade,
		log:             log,
	}
}

// Evaluate runs the gates. A non-nil error means the input was malformed
// (ValidationError) or a collaborator failed; a nil opportunity with a
// non-nil rejection is the normal "no trade" outcome.
func (p *BuyPipeline) Evaluate(c BuyCandidate) (*models.BuyOpportunity, *Rejection, error) {
	if c.Listing.Price.LessThanOrEqual(decimal.Zero) {
		return nil, nil, &models.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if c.Listing.SaleID == "" {
		return nil, nil, &models.ValidationError{Field: "sale_id", Reason: "missing"}
	}

	price := c.Listing.Price.Round(2)

	// Gate 0: trading state. Lockdown and emergency forbid all buys;
	// conservative tightens the later gates.
	state := p.budget.TradingState()
	if !state.AllowsBuying() {
		return nil, &Rejection{Gate: GateTradingState,
			Reason: fmt.Sprintf("no buys in %s state", state)}, nil
	}
	conservative := state == models.StateConservative

	// Gate 1: whitelist.
	if c.Entry == nil || !c.Entry.Active {
		return nil, &Rejection{Gate: GateWhitelist, Reason: "item not whitelisted or inactive"}, nil
	}

	// Gate 2: discount against the 7-day average. No stats means no basis
	// to judge the price: reject, unlike the spread gate below.
	if c.Stats == nil || !c.Stats.Avg7d.IsPositive() {
		return nil, &Rejection{Gate: GateDiscount, Reason: "no market stats for item"}, nil
	}
	discount := DiscountPct(c.Stats.Avg7d, price)
	if discount.LessThan(c.Entry.MinDiscountPct) {
		return nil, &Rejection{Gate: GateDiscount,
			Reason: fmt.Sprintf("discount %s%% below required %s%%",
				discount.StringFixed(1), c.Entry.MinDiscountPct.StringFixed(1))}, nil
	}

	// Gate 3: spread to the next-cheapest listing, best effort.
	if c.NextCheapest != nil {
		spread := c.NextCheapest.Sub(price).Div(price).Mul(hundred)
		if spread.LessThan(c.Entry.MinSpreadPct) {
			return nil, &Rejection{Gate: GateSpread,
				Reason: fmt.Sprintf("spread %s%% below required %s%%",
					spread.StringFixed(1), c.Entry.MinSpreadPct.StringFixed(1))}, nil
		}
	} else {
		p.log.Debugw("spread gate skipped, next-cheapest unknown",
			"item", c.Listing.ItemName, "sale_id", c.Listing.SaleID)
	}

	// Gate 4: budget. Conservative state additionally halves the per-trade
	// sizing cap; the ledger itself stays state-agnostic.
	if ok, gate := p.budget.CanAfford(price); !ok {
		return nil, &Rejection{Gate: GateBudget, Reason: "ledger gate failed: " + gate}, nil
	}
	if conservative {
		halfCap := p.budget.Balance().Mul(p.maxRiskPerTrade).Div(decimal.NewFromInt(2))
		if price.GreaterThan(halfCap) {
			return nil, &Rejection{Gate: GateBudget,
				Reason: fmt.Sprintf("conservative sizing: price %s above halved cap %s",
					price.StringFixed(2), halfCap.StringFixed(2))}, nil
		}
	}

	// Gate 5: portfolio concentration.
	if c.Holdings >= c.Entry.MaxHoldings {
		return nil, &Rejection{Gate: GatePortfolio,
			Reason: fmt.Sprintf("already holding %d of max %d", c.Holdings, c.Entry.MaxHoldings)}, nil
	}

	// Target price; conservative raises the required margin by 5 points.
	profitPct := c.Entry.TargetProfitPct
	if conservative {
		profitPct = profitPct.Add(decimal.NewFromInt(5))
	}
	target := TargetSellPrice(price, profitPct, p.feeRate)

	// Gate 6: historical viability. The target is only real if the market
	// actually clears at that level.
	since := time.Now().AddDate(0, 0, -30)
	sold, err := p.history.CountSalesAtOrAbove(c.Listing.ItemName, target, since)
	if err != nil {
		return nil, nil, fmt.Errorf("count sales for %s: %w", c.Listing.ItemName, err)
	}
	if sold < 3 {
		return nil, &Rejection{Gate: GateViability,
			Reason: fmt.Sprintf("only %d sales at or above target %s in 30d, need 3",
				sold, target.StringFixed(2))}, nil
	}

	// Gate 7: risk score.
	score := p.scorer.Score(c.Stats, price, c.Holdings)
	if !risk.Acceptable(score) {
		return nil, &Rejection{Gate: GateRisk,
			Reason: fmt.Sprintf("risk score %.1f above threshold %.1f", score, risk.AcceptableThreshold)}, nil
	}

	opp := &models.BuyOpportunity{
		ID:              uuid.NewString(),
		SaleID:          c.Listing.SaleID,
		ItemName:        c.Listing.ItemName,
		Price:           price,
		TargetSellPrice: target,
		ExpectedProfit:  ExpectedProfit(price, target, p.feeRate),
		RiskScore:       score,
		Tier:            c.Entry.Tier,
		CreatedAt:       time.Now(),
	}
	p.log.Infow("buy opportunity accepted",
		"item", opp.ItemName,
		"sale_id", opp.SaleID,
		"price", opp.Price.StringFixed(2),
		"target", opp.TargetSellPrice.StringFixed(2),
		"expected_profit", opp.ExpectedProfit.StringFixed(2),
		"risk", opp.RiskScore,
	)
	return opp, nil, nil
}
