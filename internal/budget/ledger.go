package budget

import (
	"context"
	"sync"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Gate names reported by CanAfford for diagnostics and audit logs.
const (
	GateHardFloor = "hard_floor"
	GateMaxRisk   = "max_risk_per_trade"
	GateExposure  = "max_total_exposure"
	GateAvailable = "available"
)

// BalanceSource is the single external dependency of the ledger: the
// authoritative balance as reported by the marketplace. Only
// RefreshBalance ever calls it; every other operation works off the
// last-known balance under the ledger's own lock.
type BalanceSource interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
}

// PositionAggregator supplies the persisted aggregates the ledger cannot
// derive from its own state: capital tied up in open positions and
// realized profit to date.
type PositionAggregator interface {
	InvestedTotal() (decimal.Decimal, error)
	RealizedProfitTotal() (decimal.Decimal, error)
}

// Ledger is the single source of truth for balance, reservations and
// exposure. All mutating and reading operations share one mutex so that a
// check-then-reserve sequence is a single critical section; no lock is
// ever held across an API call.
type Ledger struct {
	mu           sync.Mutex
	balance      decimal.Decimal
	invested     decimal.Decimal
	realized     decimal.Decimal
	reserved     decimal.Decimal
	reservations map[string]models.Reservation

	hardFloor        decimal.Decimal
	softFloor        decimal.Decimal
	maxRiskPerTrade  decimal.Decimal
	maxTotalExposure decimal.Decimal
	minReservePct    decimal.Decimal

	source     BalanceSource
	aggregates PositionAggregator
	log        *zap.SugaredLogger
}

// NewLedger builds a ledger from the configured safety rails. The initial
// balance is zero until the first RefreshBalance; a zero balance is below
// any positive hard floor, so the ledger starts in lockdown rather than
// optimistically trading.
func NewLedger(cfg *models.Config, source BalanceSource, aggregates PositionAggregator, log *zap.SugaredLogger) *Ledger {
	return &Ledger{
		reservations:     make(map[string]models.Reservation),
		hardFloor:        cfg.HardFloor,
		softFloor:        cfg.SoftFloor,
		maxRiskPerTrade:  cfg.MaxRiskPerTrade,
		maxTotalExposure: cfg.MaxTotalExposure,
		minReservePct:    cfg.MinReservePct,
		source:           source,
		aggregates:       aggregates,
		log:              log,
	}
}

// CanAfford evaluates the four purchase gates and reports the first
// failing gate name. The gates are independent; the order only decides
// which failure gets reported.
func (l *Ledger) CanAfford(price decimal.Decimal) (bool, string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.canAffordLocked(price)
}

func (l *Ledger) canAffordLocked(price decimal.Decimal) (bool, string) {
	// Touching the hard floor counts as a breach.
	if !l.balance.Sub(price).GreaterThan(l.hardFloor) {
		return false, GateHardFloor
	}
	if price.GreaterThan(l.balance.Mul(l.maxRiskPerTrade)) {
		return false, GateMaxRisk
	}
	if l.invested.Add(price).GreaterThan(l.balance.Mul(l.maxTotalExposure)) {
		return false, GateExposure
	}
	if price.GreaterThan(l.availableLocked()) {
		return false, GateAvailable
	}
	return true, ""
}

func (l *Ledger) availableLocked() decimal.Decimal {
	return l.balance.Sub(l.reserved).Sub(l.balance.Mul(l.minReservePct))
}

// Reserve places a claim on the budget for a pending purchase. Reusing an
// id is an invariant violation reported as DuplicateReservationError.
func (l *Ledger) Reserve(amount decimal.Decimal, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reserveLocked(amount, id)
}

func (l *Ledger) reserveLocked(amount decimal.Decimal, id string) error {
	if _, exists := l.reservations[id]; exists {
		return &models.DuplicateReservationError{ID: id}
	}
	l.reservations[id] = models.Reservation{ID: id, Amount: amount, CreatedAt: time.Now()}
	l.reserved = l.reserved.Add(amount)
	return nil
}

// ReserveIfAffordable runs CanAfford and Reserve as one atomic unit. This
// closes the race where two evaluators both observe sufficient available
// balance and then both reserve against it.
func (l *Ledger) ReserveIfAffordable(price decimal.Decimal, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ok, gate := l.canAffordLocked(price); !ok {
		return &models.InsufficientBudgetError{
			Gate:   gate,
			Detail: "price " + price.StringFixed(2) + " against balance " + l.balance.StringFixed(2),
		}
	}
	return l.reserveLocked(price, id)
}

// Release removes a reservation. Releasing an unknown id is a warning, not
// an error: success and failure paths both release, and the queue may
// redeliver a message whose reservation was already cleaned up.
func (l *Ledger) Release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, exists := l.reservations[id]
	if !exists {
		l.log.Warnw("release of unknown reservation", "id", id)
		return
	}
	delete(l.reservations, id)
	l.reserved = l.reserved.Sub(res.Amount)
}

// TradingState derives the current state from the balance and the floors.
// Boundary values belong to the more restrictive state.
func (l *Ledger) TradingState() models.TradingState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tradingStateLocked()
}

func (l *Ledger) tradingStateLocked() models.TradingState {
	switch {
	case l.balance.LessThanOrEqual(l.hardFloor):
		return models.StateLockdown
	case l.balance.LessThanOrEqual(l.softFloor):
		return models.StateEmergency
	case l.balance.LessThanOrEqual(l.softFloor.Mul(decimal.NewFromFloat(1.2))):
		return models.StateConservative
	default:
		return models.StateNormal
	}
}

// CommitPurchase applies a successful buy: the price leaves the balance
// and joins the invested total. The caller releases the reservation
// separately so failures follow the same release path.
func (l *Ledger) CommitPurchase(price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Sub(price)
	l.invested = l.invested.Add(price)
}

// CommitSale applies a completed sale: proceeds return to the balance, the
// original purchase price leaves the invested total and the net profit is
// added to the realized aggregate.
func (l *Ledger) CommitSale(purchasePrice, netProceeds, netProfit decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = l.balance.Add(netProceeds)
	l.invested = l.invested.Sub(purchasePrice)
	l.realized = l.realized.Add(netProfit)
}

// Balance returns the last-known balance.
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Snapshot returns an immutable view of the ledger for logging/alerting.
func (l *Ledger) Snapshot() models.BudgetState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() models.BudgetState {
	return models.BudgetState{
		Balance:        l.balance,
		Reserved:       l.reserved,
		Invested:       l.invested,
		Available:      l.availableLocked(),
		RealizedProfit: l.realized,
		State:          l.tradingStateLocked(),
		RefreshedAt:    time.Now(),
	}
}

// RefreshBalance pulls the authoritative balance from the marketplace and
// rebuilds the invested/realized aggregates from storage. This is the only
// ledger operation allowed to perform I/O, and it does all of it before
// taking the lock.
func (l *Ledger) RefreshBalance(ctx context.Context) (models.BudgetState, error) {
	balance, err := l.source.GetBalance(ctx)
	if err != nil {
		return models.BudgetState{}, err
	}
	invested, err := l.aggregates.InvestedTotal()
	if err != nil {
		return models.BudgetState{}, err
	}
	realized, err := l.aggregates.RealizedProfitTotal()
	if err != nil {
		return models.BudgetState{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.balance = balance
	l.invested = invested
	l.realized = realized

	state := l.snapshotLocked()
	l.log.Infow("balance refreshed",
		"balance", state.Balance.StringFixed(2),
		"reserved", state.Reserved.StringFixed(2),
		"invested", state.Invested.StringFixed(2),
		"state", string(state.State),
	)
	return state, nil
}
