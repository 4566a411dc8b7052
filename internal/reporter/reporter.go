package reporter

import (
	"io"

	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/scanner"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Reporter renders human-readable audit tables for dry runs and the
// report CLI mode. It only formats; nothing here touches the market.
type Reporter struct {
	out io.Writer
}

func New(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

func (r *Reporter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle(title)
	t.SetStyle(table.StyleLight)
	return t
}

// BuyScan renders one evaluation row per scanned listing: either the
// accepted opportunity's economics or the gate that rejected it.
func (r *Reporter) BuyScan(results []scanner.BuyScanResult) {
	t := r.newTable("Buy Scan")
	t.AppendHeader(table.Row{"Item", "Sale ID", "Price", "Decision", "Target", "Exp. Profit", "Risk", "Detail"})

	for _, res := range results {
		if res.Opportunity != nil {
			opp := res.Opportunity
			t.AppendRow(table.Row{
				res.ItemName, res.SaleID, res.Price.StringFixed(2),
				text.FgGreen.Sprint("BUY"),
				opp.TargetSellPrice.StringFixed(2),
				opp.ExpectedProfit.StringFixed(2),
				opp.RiskScore,
				"",
			})
			continue
		}
		detail := ""
		decision := "-"
		if res.Rejection != nil {
			decision = text.FgRed.Sprint("skip: " + res.Rejection.Gate)
			detail = res.Rejection.Reason
		}
		t.AppendRow(table.Row{
			res.ItemName, res.SaleID, res.Price.StringFixed(2),
			decision, "", "", "", detail,
		})
	}
	t.Render()
}

// SellScan renders the decided action for each open position.
func (r *Reporter) SellScan(results []scanner.SellScanResult) {
	t := r.newTable("Sell Scan")
	t.AppendHeader(table.Row{"Item", "Sale ID", "Status", "Purchase", "Action", "Price", "Reason"})

	for _, res := range results {
		pos := res.Position
		opp := res.Opportunity
		action := string(opp.Action)
		switch opp.Action {
		case models.SellList, models.SellAdjust:
			action = text.FgYellow.Sprint(action)
		}
		price := ""
		if opp.Price.IsPositive() {
			price = opp.Price.StringFixed(2)
		}
		t.AppendRow(table.Row{
			pos.ItemName, pos.SaleID, string(pos.Status),
			pos.PurchasePrice.StringFixed(2),
			action, price, opp.Reason,
		})
	}
	t.Render()
}

// Budget renders the ledger snapshot.
func (r *Reporter) Budget(state models.BudgetState) {
	t := r.newTable("Budget")
	t.AppendRows([]table.Row{
		{"Balance", state.Balance.StringFixed(2)},
		{"Reserved", state.Reserved.StringFixed(2)},
		{"Invested", state.Invested.StringFixed(2)},
		{"Available", state.Available.StringFixed(2)},
		{"Realized profit", state.RealizedProfit.StringFixed(2)},
		{"Trading state", string(state.State)},
	})
	t.Render()
}

// Transactions renders the most recent audit records, newest first.
func (r *Reporter) Transactions(txs []*models.Transaction) {
	t := r.newTable("Recent Transactions")
	t.AppendHeader(table.Row{"Ref", "Type", "Item", "Amount", "Balance After", "OK", "Error", "At"})

	for _, tx := range txs {
		ok := text.FgGreen.Sprint("yes")
		if !tx.Success {
			ok = text.FgRed.Sprint("no")
		}
		t.AppendRow(table.Row{
			tx.ClientRef, string(tx.Type), tx.ItemName,
			tx.Amount.StringFixed(2), tx.BalanceAfter.StringFixed(2),
			ok, tx.Error, tx.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	t.Render()
}
