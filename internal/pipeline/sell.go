package pipeline

import (
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SellCandidate is one owned position with the market context needed to
// decide list/adjust/hold. Listings may include our own listing; it is
// excluded by sale id. MarketAvg is the current 7-day average, used for
// the stop-loss check; zero means unknown.
type SellCandidate struct {
	Position  *models.Position
	Listings  []models.Listing
	MarketAvg decimal.Decimal
	Now       time.Time
}

// SellPipeline evaluates positions against competing listings. All prices
// are compared at cent precision; exact ties favor holding to avoid
// pointless price-edit churn against the API.
type SellPipeline struct {
	feeRate      decimal.Decimal
	minMarginPct decimal.Decimal
	log          *zap.SugaredLogger
}

func NewSellPipeline(cfg *models.Config, log *zap.SugaredLogger) *SellPipeline {
	return &SellPipeline{
		feeRate:      cfg.FeeRate,
		minMarginPct: cfg.MinMarginPct,
		log:          log,
	}
}

// Evaluate returns what to do with the position right now. Hold decisions
// are SellOpportunity values too, so dry-run audits see every outcome.
func (p *SellPipeline) Evaluate(c SellCandidate) (*models.SellOpportunity, error) {
	pos := c.Position
	if pos == nil {
		return nil, &models.ValidationError{Field: "position", Reason: "missing"}
	}
	if !pos.PurchasePrice.IsPositive() {
		return nil, &models.ValidationError{Field: "purchase_price", Reason: "must be positive"}
	}

	switch pos.Status {
	case models.StatusHolding:
		return p.evaluateHolding(c), nil
	case models.StatusListed:
		return p.evaluateListed(c), nil
	default:
		return nil, &models.ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("position %s is %s, nothing to decide", pos.SaleID, pos.Status),
		}
	}
}

// minProfitablePrice is the lowest sale price that still clears the
// minimum margin after fees.
func (p *SellPipeline) minProfitablePrice(purchase decimal.Decimal) decimal.Decimal {
	margin := one.Add(p.minMarginPct.Div(hundred))
	return purchase.Mul(margin).Div(one.Sub(p.feeRate)).Round(2)
}

// breakEven is the sale price at which net proceeds equal the purchase
// price exactly.
func (p *SellPipeline) breakEven(purchase decimal.Decimal) decimal.Decimal {
	return purchase.Div(one.Sub(p.feeRate)).Round(2)
}

// cheapestCompetitor finds the lowest listing that is not ours. The bool
// is false when there is no competition at all.
func cheapestCompetitor(listings []models.Listing, ownSaleID string) (decimal.Decimal, bool) {
	var cheapest decimal.Decimal
	found := false
	for _, l := range listings {
		if l.SaleID == ownSaleID {
			continue
		}
		price := l.Price.Round(2)
		if !found || price.LessThan(cheapest) {
			cheapest = price
			found = true
		}
	}
	return cheapest, found
}

func hold(pos *models.Position, reason string) *models.SellOpportunity {
	return &models.SellOpportunity{
		SaleID:   pos.SaleID,
		ItemName: pos.ItemName,
		Action:   models.SellHold,
		Reason:   reason,
	}
}

func (p *SellPipeline) evaluateHolding(c SellCandidate) *models.SellOpportunity {
	pos := c.Position
	minProfitable := p.minProfitablePrice(pos.PurchasePrice)
	breakEven := p.breakEven(pos.PurchasePrice)

	cheapest, hasCompetition := cheapestCompetitor(c.Listings, pos.SaleID)
	if !hasCompetition {
		// Nobody else is selling: ask for our full target.
		return &models.SellOpportunity{
			SaleID:   pos.SaleID,
			ItemName: pos.ItemName,
			Action:   models.SellList,
			Price:    pos.TargetSellPrice,
			Reason:   "no competing listings, listing at target",
		}
	}
	undercut := cheapest.Sub(cent)

	if undercut.GreaterThanOrEqual(pos.TargetSellPrice) {
		return &models.SellOpportunity{
			SaleID:   pos.SaleID,
			ItemName: pos.ItemName,
			Action:   models.SellList,
			Price:    undercut,
			Reason:   "target achievable by undercutting",
		}
	}

	if undercut.GreaterThanOrEqual(minProfitable) {
		profit := NetProceeds(undercut, p.feeRate).Sub(pos.PurchasePrice)
		profitPct := profit.Div(pos.PurchasePrice).Mul(hundred)
		return &models.SellOpportunity{
			SaleID:   pos.SaleID,
			ItemName: pos.ItemName,
			Action:   models.SellList,
			Price:    undercut,
			Reason:   fmt.Sprintf("undercut at %s%% profit", profitPct.StringFixed(1)),
		}
	}

	holdDays := pos.HoldDays(c.Now)
	if holdDays >= 7 && cheapest.GreaterThanOrEqual(breakEven) {
		price := decimal.Max(undercut, breakEven)
		return &models.SellOpportunity{
			SaleID:   pos.SaleID,
			ItemName: pos.ItemName,
			Action:   models.SellList,
			Price:    price,
			Reason:   fmt.Sprintf("held too long (%dd), exiting at break-even or better", holdDays),
		}
	}

	// Stop-loss: the market moved at least 10% below our entry.
	if c.MarketAvg.IsPositive() {
		stopLevel := pos.PurchasePrice.Mul(decimal.NewFromFloat(0.90))
		if c.MarketAvg.LessThanOrEqual(stopLevel) {
			return &models.SellOpportunity{
				SaleID:   pos.SaleID,
				ItemName: pos.ItemName,
				Action:   models.SellList,
				Price:    undercut,
				Reason: fmt.Sprintf("stop-loss: market average %s is 10%%+ below purchase %s",
					c.MarketAvg.StringFixed(2), pos.PurchasePrice.StringFixed(2)),
			}
		}
	}

	return hold(pos, "no profitable exit yet")
}

func (p *SellPipeline) evaluateListed(c SellCandidate) *models.SellOpportunity {
	pos := c.Position
	minProfitable := p.minProfitablePrice(pos.PurchasePrice)
	breakEven := p.breakEven(pos.PurchasePrice)
	ourPrice := pos.ListedPrice.Round(2)

	cheapest, hasCompetition := cheapestCompetitor(c.Listings, pos.SaleID)
	if !hasCompetition {
		return hold(pos, "still competitive")
	}

	// Within one cent of the cheapest competitor counts as competitive.
	if ourPrice.LessThanOrEqual(cheapest.Add(cent)) {
		return hold(pos, "still competitive")
	}

	undercut := cheapest.Sub(cent)
	holdDays := pos.HoldDays(c.Now)
	gap := ourPrice.Sub(cheapest)

	if holdDays >= 3 || gap.GreaterThan(decimal.NewFromFloat(0.50)) {
		if undercut.GreaterThanOrEqual(minProfitable) {
			reason := "undercutting competition"
			if holdDays >= 3 {
				reason = fmt.Sprintf("listed %dd without selling, undercutting", holdDays)
			}
			return &models.SellOpportunity{
				SaleID:   pos.SaleID,
				ItemName: pos.ItemName,
				Action:   models.SellAdjust,
				Price:    undercut,
				Reason:   reason,
			}
		}
		if holdDays >= 5 && undercut.GreaterThanOrEqual(breakEven) {
			price := decimal.Max(undercut, breakEven)
			return &models.SellOpportunity{
				SaleID:   pos.SaleID,
				ItemName: pos.ItemName,
				Action:   models.SellAdjust,
				Price:    price,
				Reason:   fmt.Sprintf("cutting losses after %dd listed", holdDays),
			}
		}
	}

	return hold(pos, "adjustment not worthwhile yet")
}
