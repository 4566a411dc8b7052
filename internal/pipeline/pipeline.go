package pipeline

import (
	"time"

	"github.com/shopspring/decimal"
)

// Gate names, in buy-pipeline evaluation order. Rejections carry one of
// these so dry-run audits can attribute every refusal.
const (
	GateTradingState = "trading_state"
	GateWhitelist    = "whitelist"
	GateDiscount     = "discount"
	GateSpread       = "spread"
	GateBudget       = "budget"
	GatePortfolio    = "portfolio"
	GateViability    = "historical_viability"
	GateRisk         = "risk"
)

// Rejection is a normal pipeline outcome, not an error: the candidate
// failed a named gate. Reason is human-readable for audit logs.
type Rejection struct {
	Gate   string
	Reason string
}

func (r *Rejection) String() string {
	return r.Gate + ": " + r.Reason
}

// HistoryCounter answers the historical-viability question: how many sales
// of this item at or above price happened since the cut-off.
type HistoryCounter interface {
	CountSalesAtOrAbove(itemName string, price decimal.Decimal, since time.Time) (int, error)
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
	cent    = decimal.NewFromFloat(0.01)
)

// TargetSellPrice computes the fixed sell target for a purchase at price:
// price * (1 + targetProfitPct/100) / (1 - feeRate), rounded half-up to
// the cent. Computed exactly once per position, at purchase decision time.
func TargetSellPrice(price, targetProfitPct, feeRate decimal.Decimal) decimal.Decimal {
	gross := price.Mul(one.Add(targetProfitPct.Div(hundred)))
	return gross.Div(one.Sub(feeRate)).Round(2)
}

// NetProceeds is what a sale at gross actually credits: the fee is rounded
// to the cent before subtraction, matching the marketplace's own billing.
func NetProceeds(gross, feeRate decimal.Decimal) decimal.Decimal {
	fee := gross.Mul(feeRate).Round(2)
	return gross.Sub(fee)
}

// ExpectedProfit is the net outcome of buying at price and selling at
// target.
func ExpectedProfit(price, target, feeRate decimal.Decimal) decimal.Decimal {
	return NetProceeds(target, feeRate).Sub(price)
}

// DiscountPct is how far price sits below the 7-day average, in percent.
func DiscountPct(avg7d, price decimal.Decimal) decimal.Decimal {
	return avg7d.Sub(price).Div(avg7d).Mul(hundred)
}
