package reporter

import (
	"bytes"
	"testing"
	"time"

	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"
	"marketplace-trading-bot-go/internal/scanner"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestBuyScanRendersDecisions(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.BuyScan([]scanner.BuyScanResult{
		{
			ItemName: "Test Item",
			SaleID:   "sale-1",
			Price:    dec("28.00"),
			Opportunity: &models.BuyOpportunity{
				TargetSellPrice: dec("36.24"),
				ExpectedProfit:  dec("2.80"),
				RiskScore:       2.5,
			},
		},
		{
			ItemName:  "Other Item",
			SaleID:    "sale-2",
			Price:     dec("99.00"),
			Rejection: &pipeline.Rejection{Gate: pipeline.GateDiscount, Reason: "discount 2.0% below required 20.0%"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "Buy Scan")
	assert.Contains(t, out, "36.24")
	assert.Contains(t, out, pipeline.GateDiscount)
	assert.Contains(t, out, "discount 2.0% below required 20.0%")
}

func TestSellScanRendersActions(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.SellScan([]scanner.SellScanResult{{
		Position: &models.Position{
			SaleID:        "own-1",
			ItemName:      "Test Item",
			PurchasePrice: dec("10.00"),
			Status:        models.StatusHolding,
		},
		Opportunity: &models.SellOpportunity{
			Action: models.SellList,
			Price:  dec("12.94"),
			Reason: "no competing listings, listing at target",
		},
	}})

	out := buf.String()
	assert.Contains(t, out, "12.94")
	assert.Contains(t, out, "listing at target")
}

func TestBudgetAndTransactions(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf)

	r.Budget(models.BudgetState{
		Balance:   dec("972.00"),
		Invested:  dec("28.00"),
		Available: dec("923.40"),
		State:     models.StateNormal,
	})
	r.Transactions([]*models.Transaction{{
		ClientRef: "ref-1",
		Type:      models.TxBuy,
		ItemName:  "Test Item",
		Amount:    dec("28.00"),
		Success:   true,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "972.00")
	assert.Contains(t, out, "normal")
	assert.Contains(t, out, "ref-1")
	assert.Contains(t, out, "2025-06-01 12:00")
}
