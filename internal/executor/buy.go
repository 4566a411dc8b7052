package executor

import (
	"context"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/budget"
	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BuyExecutor turns accepted buy opportunities into purchases. It is the
// only component that reserves, commits or releases budget on the buy
// side: the pipeline checks affordability but never mutates the ledger.
type BuyExecutor struct {
	ledger *budget.Ledger
	client marketplace.Client
	store  PositionStore
	log    *zap.SugaredLogger
}

func NewBuyExecutor(ledger *budget.Ledger, client marketplace.Client, store PositionStore, log *zap.SugaredLogger) *BuyExecutor {
	return &BuyExecutor{ledger: ledger, client: client, store: store, log: log}
}

// Execute buys one opportunity. The sequence is reserve, call, commit or
// release: the reservation is held only for the duration of the API call,
// and both outcomes release it so the ledger never leaks claims.
//
// A redelivered opportunity whose position already exists is acknowledged
// without a second purchase.
func (e *BuyExecutor) Execute(ctx context.Context, opp *models.BuyOpportunity) error {
	existing, err := e.store.GetPosition(opp.SaleID)
	if err != nil {
		return fmt.Errorf("check existing position %s: %w", opp.SaleID, err)
	}
	if existing != nil {
		e.log.Infow("opportunity already executed, skipping",
			"opportunity", opp.ID, "sale_id", opp.SaleID)
		return nil
	}

	if err := e.ledger.ReserveIfAffordable(opp.Price, opp.ID); err != nil {
		return err
	}
	defer e.ledger.Release(opp.ID)

	balanceBefore := e.ledger.Balance()
	ref := newClientRef()

	result, err := e.client.BuyItems(ctx, []string{opp.SaleID})
	if err != nil {
		e.recordTransaction(ref, models.TxBuy, opp.SaleID, opp.ItemName,
			opp.Price, balanceBefore, balanceBefore, false, err.Error())
		return fmt.Errorf("buy %s: %w", opp.SaleID, err)
	}

	// The marketplace's charge is authoritative; it can differ from the
	// evaluated price if the listing was repriced between scan and buy.
	cost := result.TotalCost.Round(2)
	if !cost.IsPositive() {
		cost = opp.Price
	}
	e.ledger.CommitPurchase(cost)
	balanceAfter := e.ledger.Balance()

	position := &models.Position{
		SaleID:          opp.SaleID,
		ItemName:        opp.ItemName,
		PurchasePrice:   cost,
		PurchasedAt:     time.Now(),
		TargetSellPrice: opp.TargetSellPrice,
		Status:          models.StatusHolding,
		RiskScore:       opp.RiskScore,
	}
	if err := e.store.InsertPosition(position); err != nil {
		// The purchase went through; losing the position record is worse
		// than a duplicate-execution skip, so surface loudly.
		e.log.Errorw("purchase succeeded but position insert failed",
			"sale_id", opp.SaleID, "error", err)
		return fmt.Errorf("record position %s: %w", opp.SaleID, err)
	}
	e.recordTransaction(ref, models.TxBuy, opp.SaleID, opp.ItemName,
		cost, balanceBefore, balanceAfter, true, "")

	e.log.Infow("purchase executed",
		"opportunity", opp.ID,
		"sale_id", opp.SaleID,
		"item", opp.ItemName,
		"cost", cost.StringFixed(2),
		"target", opp.TargetSellPrice.StringFixed(2),
		"client_ref", ref,
	)
	return nil
}

func (e *BuyExecutor) recordTransaction(ref string, txType models.TransactionType,
	saleID, itemName string, amount, before, after decimal.Decimal, success bool, errMsg string) {
	tx := &models.Transaction{
		ClientRef:     ref,
		Type:          txType,
		SaleID:        saleID,
		ItemName:      itemName,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Success:       success,
		Error:         errMsg,
		CreatedAt:     time.Now(),
	}
	if err := e.store.InsertTransaction(tx); err != nil {
		e.log.Errorw("transaction record failed", "client_ref", ref, "error", err)
	}
}
