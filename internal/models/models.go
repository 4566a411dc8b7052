package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier classifies a whitelisted item by liquidity/risk. Tier 1 items are
// liquid staples, tier 2 items need wider discounts to be worth holding.
type Tier int

const (
	Tier1 Tier = 1
	Tier2 Tier = 2
)

// WhitelistEntry defines a tradable item. Entries are curated manually and
// are read-only to the engine during a scan.
type WhitelistEntry struct {
	ItemName        string          `json:"item_name"`
	Tier            Tier            `json:"tier"`
	MinDiscountPct  decimal.Decimal `json:"min_discount_pct"`
	MinSpreadPct    decimal.Decimal `json:"min_spread_pct"`
	TargetProfitPct decimal.Decimal `json:"target_profit_pct"`
	MaxHoldings     int             `json:"max_holdings"`
	Active          bool            `json:"active"`
}

// MarketStats is a pre-computed rolling snapshot of the sales history of a
// single item. The decision pipelines only ever read these snapshots; they
// never aggregate history inline.
type MarketStats struct {
	ItemName       string          `json:"item_name"`
	Avg7d          decimal.Decimal `json:"avg_7d"`
	Avg30d         decimal.Decimal `json:"avg_30d"`
	Median30d      decimal.Decimal `json:"median_30d"`
	Min30d         decimal.Decimal `json:"min_30d"`
	Max30d         decimal.Decimal `json:"max_30d"`
	StdDev         float64         `json:"std_dev"`
	SalesCount7d   int             `json:"sales_count_7d"`
	SalesCount30d  int             `json:"sales_count_30d"`
	AvgSalesPerDay float64         `json:"avg_sales_per_day"`
	VelocityKnown  bool            `json:"velocity_known"`
	LastSalePrice  decimal.Decimal `json:"last_sale_price"`
	LastSaleAt     time.Time       `json:"last_sale_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PositionStatus is the lifecycle state of an owned position. Transitions
// are strictly forward: holding -> listed -> sold, or holding/listed -> failed.
type PositionStatus string

const (
	StatusHolding PositionStatus = "holding"
	StatusListed  PositionStatus = "listed"
	StatusSold    PositionStatus = "sold"
	StatusFailed  PositionStatus = "failed"
)

// CanTransitionTo reports whether moving to next is a legal forward step.
func (s PositionStatus) CanTransitionTo(next PositionStatus) bool {
	switch s {
	case StatusHolding:
		return next == StatusListed || next == StatusFailed
	case StatusListed:
		return next == StatusSold || next == StatusFailed
	default:
		return false
	}
}

// Position is one owned unit of inventory. TargetSellPrice is computed once
// at purchase time and never recalculated afterwards.
type Position struct {
	SaleID          string          `json:"sale_id"`
	ItemName        string          `json:"item_name"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	PurchasedAt     time.Time       `json:"purchased_at"`
	TargetSellPrice decimal.Decimal `json:"target_sell_price"`
	Status          PositionStatus  `json:"status"`
	ListedPrice     decimal.Decimal `json:"listed_price,omitempty"`
	SoldPrice       decimal.Decimal `json:"sold_price,omitempty"`
	SoldAt          time.Time       `json:"sold_at,omitempty"`
	SaleFee         decimal.Decimal `json:"sale_fee,omitempty"`
	NetProfit       decimal.Decimal `json:"net_profit,omitempty"`
	RiskScore       float64         `json:"risk_score"`
}

// HoldDays returns whole days elapsed since purchase.
func (p *Position) HoldDays(now time.Time) int {
	return int(now.Sub(p.PurchasedAt).Hours() / 24)
}

// TradingState is derived from the balance relative to the configured floors.
type TradingState string

const (
	StateNormal       TradingState = "normal"
	StateConservative TradingState = "conservative"
	StateEmergency    TradingState = "emergency"
	StateLockdown     TradingState = "lockdown"
)

// AllowsBuying reports whether new purchases are permitted in this state.
func (s TradingState) AllowsBuying() bool {
	return s == StateNormal || s == StateConservative
}

// BudgetState is an immutable snapshot of the ledger, produced on refresh
// for logging and alerting.
type BudgetState struct {
	Balance        decimal.Decimal `json:"balance"`
	Reserved       decimal.Decimal `json:"reserved"`
	Invested       decimal.Decimal `json:"invested"`
	Available      decimal.Decimal `json:"available"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	State          TradingState    `json:"state"`
	RefreshedAt    time.Time       `json:"refreshed_at"`
}

// Reservation is an ephemeral claim on budget for one pending purchase.
type Reservation struct {
	ID        string          `json:"id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Listing is one market listing as returned by a search.
type Listing struct {
	SaleID   string          `json:"sale_id"`
	ItemName string          `json:"item_name"`
	Price    decimal.Decimal `json:"price"`
}

// Sale is one historical sale of an item.
type Sale struct {
	ItemName string          `json:"item_name"`
	Price    decimal.Decimal `json:"price"`
	SoldAt   time.Time       `json:"sold_at"`
}

// InventoryItem is an owned item as reported by the marketplace.
type InventoryItem struct {
	SaleID      string          `json:"sale_id"`
	ItemName    string          `json:"item_name"`
	Listed      bool            `json:"listed"`
	ListedPrice decimal.Decimal `json:"listed_price,omitempty"`
	AcquiredAt  time.Time       `json:"acquired_at"`
}

// TransactionType tags a transaction record.
type TransactionType string

const (
	TxBuy       TransactionType = "buy"
	TxList      TransactionType = "list"
	TxPriceEdit TransactionType = "price_edit"
	TxSale      TransactionType = "sale"
)

// Transaction is the audit record of one executed trade action. A record is
// written for every attempt, success or failure, with the balance before
// and after.
type Transaction struct {
	ID            int64           `json:"id"`
	ClientRef     string          `json:"client_ref"`
	Type          TransactionType `json:"type"`
	SaleID        string          `json:"sale_id"`
	ItemName      string          `json:"item_name"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Success       bool            `json:"success"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BuyOpportunity is an accepted buy decision, queued for execution.
type BuyOpportunity struct {
	ID              string          `json:"id"`
	SaleID          string          `json:"sale_id"`
	ItemName        string          `json:"item_name"`
	Price           decimal.Decimal `json:"price"`
	TargetSellPrice decimal.Decimal `json:"target_sell_price"`
	ExpectedProfit  decimal.Decimal `json:"expected_profit"`
	RiskScore       float64         `json:"risk_score"`
	Tier            Tier            `json:"tier"`
	CreatedAt       time.Time       `json:"created_at"`
}

// SellActionType is what the sell pipeline decided to do with a position.
type SellActionType string

const (
	SellHold   SellActionType = "hold"
	SellList   SellActionType = "list"
	SellAdjust SellActionType = "adjust"
)

// SellOpportunity is the outcome of evaluating one position against the
// current competing listings.
type SellOpportunity struct {
	SaleID   string          `json:"sale_id"`
	ItemName string          `json:"item_name"`
	Action   SellActionType  `json:"action"`
	Price    decimal.Decimal `json:"price,omitempty"`
	Reason   string          `json:"reason"`
}
