package executor

import (
	"context"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/alert"
	"marketplace-trading-bot-go/internal/budget"
	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SellExecutor applies sell decisions: listing a held position, adjusting
// the price of a listed one and settling completed sales against the
// ledger. Hold decisions are no-ops here.
type SellExecutor struct {
	ledger   *budget.Ledger
	client   marketplace.Client
	store    PositionStore
	feeRate  decimal.Decimal
	notifier alert.Notifier
	log      *zap.SugaredLogger
}

func NewSellExecutor(ledger *budget.Ledger, client marketplace.Client, store PositionStore, cfg *models.Config, log *zap.SugaredLogger) *SellExecutor {
	return &SellExecutor{
		ledger:  ledger,
		client:  client,
		store:   store,
		feeRate: cfg.FeeRate,
		log:     log,
	}
}

// SetNotifier enables profit alerts on settled sales. Optional; nil means
// no alerts.
func (e *SellExecutor) SetNotifier(n alert.Notifier) {
	e.notifier = n
}

// Execute applies one sell decision.
func (e *SellExecutor) Execute(ctx context.Context, opp *models.SellOpportunity) error {
	switch opp.Action {
	case models.SellHold:
		return nil
	case models.SellList:
		return e.list(ctx, opp)
	case models.SellAdjust:
		return e.adjust(ctx, opp)
	default:
		return &models.ValidationError{Field: "action", Reason: fmt.Sprintf("unknown sell action %q", opp.Action)}
	}
}

func (e *SellExecutor) list(ctx context.Context, opp *models.SellOpportunity) error {
	balance := e.ledger.Balance()
	ref := newClientRef()

	_, err := e.client.ListItems(ctx, []marketplace.ListRequest{
		{SaleID: opp.SaleID, Price: opp.Price},
	})
	if err != nil {
		e.recordTransaction(ref, models.TxList, opp, balance, false, err.Error())
		return fmt.Errorf("list %s: %w", opp.SaleID, err)
	}

	if err := e.store.MarkListed(opp.SaleID, opp.Price); err != nil {
		return fmt.Errorf("mark %s listed: %w", opp.SaleID, err)
	}
	e.recordTransaction(ref, models.TxList, opp, balance, true, "")

	e.log.Infow("position listed",
		"sale_id", opp.SaleID,
		"item", opp.ItemName,
		"price", opp.Price.StringFixed(2),
		"reason", opp.Reason,
		"client_ref", ref,
	)
	return nil
}

func (e *SellExecutor) adjust(ctx context.Context, opp *models.SellOpportunity) error {
	balance := e.ledger.Balance()
	ref := newClientRef()

	_, err := e.client.EditPrice(ctx, []marketplace.PriceUpdate{
		{SaleID: opp.SaleID, Price: opp.Price},
	})
	if err != nil {
		e.recordTransaction(ref, models.TxPriceEdit, opp, balance, false, err.Error())
		return fmt.Errorf("edit price %s: %w", opp.SaleID, err)
	}

	if err := e.store.UpdateListedPrice(opp.SaleID, opp.Price); err != nil {
		return fmt.Errorf("update listed price %s: %w", opp.SaleID, err)
	}
	e.recordTransaction(ref, models.TxPriceEdit, opp, balance, true, "")

	e.log.Infow("listing repriced",
		"sale_id", opp.SaleID,
		"item", opp.ItemName,
		"price", opp.Price.StringFixed(2),
		"reason", opp.Reason,
		"client_ref", ref,
	)
	return nil
}

// SettleSale finalizes a completed sale reported by the marketplace. The
// fee is rounded to the cent before subtraction, so the recorded net
// matches the statement the marketplace produces.
func (e *SellExecutor) SettleSale(saleID string, soldPrice decimal.Decimal, soldAt time.Time) error {
	pos, err := e.store.GetPosition(saleID)
	if err != nil {
		return fmt.Errorf("load position %s: %w", saleID, err)
	}
	if pos == nil {
		return &models.ValidationError{Field: "sale_id", Reason: fmt.Sprintf("no position for sale %s", saleID)}
	}
	if pos.Status == models.StatusSold {
		// A sales-stream event and an inventory reconciliation can both
		// report the same sale.
		return nil
	}

	soldPrice = soldPrice.Round(2)
	fee := soldPrice.Mul(e.feeRate).Round(2)
	netProceeds := soldPrice.Sub(fee)
	netProfit := netProceeds.Sub(pos.PurchasePrice)

	if err := e.store.MarkSold(saleID, soldPrice, fee, netProfit, soldAt); err != nil {
		return fmt.Errorf("mark %s sold: %w", saleID, err)
	}
	e.ledger.CommitSale(pos.PurchasePrice, netProceeds, netProfit)

	balance := e.ledger.Balance()
	e.recordTransaction(newClientRef(), models.TxSale, &models.SellOpportunity{
		SaleID:   saleID,
		ItemName: pos.ItemName,
		Price:    soldPrice,
	}, balance, true, "")

	e.log.Infow("sale settled",
		"sale_id", saleID,
		"item", pos.ItemName,
		"sold_price", soldPrice.StringFixed(2),
		"fee", fee.StringFixed(2),
		"net_profit", netProfit.StringFixed(2),
	)

	if e.notifier != nil && netProfit.IsPositive() {
		err := e.notifier.Notify(context.Background(), alert.Alert{
			Type:    alert.TypeProfitableTrade,
			Title:   "profitable sale: " + pos.ItemName,
			Message: "sold at " + soldPrice.StringFixed(2),
			Fields: map[string]string{
				"purchase":   pos.PurchasePrice.StringFixed(2),
				"net_profit": netProfit.StringFixed(2),
			},
			At: soldAt,
		})
		if err != nil {
			e.log.Warnw("profit alert delivery failed", "sale_id", saleID, "error", err)
		}
	}
	return nil
}

// ReconcileSales settles listed positions that have left our inventory.
// The marketplace does not push per-account sale events, so a listed item
// missing from the inventory snapshot means it sold at its asking price.
func (e *SellExecutor) ReconcileSales(ctx context.Context) error {
	listed, err := e.store.PositionsByStatus(models.StatusListed)
	if err != nil {
		return fmt.Errorf("load listed positions: %w", err)
	}
	if len(listed) == 0 {
		return nil
	}

	inventory, err := e.client.GetInventory(ctx)
	if err != nil {
		return fmt.Errorf("fetch inventory: %w", err)
	}
	owned := make(map[string]struct{}, len(inventory))
	for _, item := range inventory {
		owned[item.SaleID] = struct{}{}
	}

	now := time.Now()
	for _, pos := range listed {
		if _, stillOwned := owned[pos.SaleID]; stillOwned {
			continue
		}
		if err := e.SettleSale(pos.SaleID, pos.ListedPrice, now); err != nil {
			e.log.Errorw("sale settlement failed", "sale_id", pos.SaleID, "error", err)
		}
	}
	return nil
}

func (e *SellExecutor) recordTransaction(ref string, txType models.TransactionType,
	opp *models.SellOpportunity, balance decimal.Decimal, success bool, errMsg string) {
	tx := &models.Transaction{
		ClientRef:     ref,
		Type:          txType,
		SaleID:        opp.SaleID,
		ItemName:      opp.ItemName,
		Amount:        opp.Price,
		BalanceBefore: balance,
		BalanceAfter:  e.ledger.Balance(),
		Success:       success,
		Error:         errMsg,
		CreatedAt:     time.Now(),
	}
	if err := e.store.InsertTransaction(tx); err != nil {
		e.log.Errorw("transaction record failed", "client_ref", ref, "error", err)
	}
}
