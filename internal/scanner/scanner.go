package scanner

import (
	"context"
	"fmt"

	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"

	"github.com/shopspring/decimal"
)

// Publisher is where accepted buy opportunities go. In live runs this is
// the durable queue; dry runs swap in a no-op.
type Publisher interface {
	Publish(opp *models.BuyOpportunity) (bool, error)
}

// SellActor applies sell decisions. In live runs this is the sell
// executor; dry runs swap in a no-op.
type SellActor interface {
	Execute(ctx context.Context, opp *models.SellOpportunity) error
}

// ScanStore is the slice of storage both scanners read.
type ScanStore interface {
	ActiveWhitelist() ([]*models.WhitelistEntry, error)
	GetMarketStats(itemName string) (*models.MarketStats, error)
	CountActiveHoldings(itemName string) (int, error)
	PositionsByStatus(status models.PositionStatus) ([]*models.Position, error)
}

// BuyScanResult is the outcome of evaluating one listing, accepted or not.
// Dry-run reports render these verbatim.
type BuyScanResult struct {
	ItemName    string
	SaleID      string
	Price       decimal.Decimal
	Opportunity *models.BuyOpportunity
	Rejection   *pipeline.Rejection
}

// SellScanResult is the decision taken for one owned position.
type SellScanResult struct {
	Position    *models.Position
	Opportunity *models.SellOpportunity
	Executed    bool
	ExecuteErr  error
}

func searchError(itemName string, err error) error {
	return fmt.Errorf("search %s: %w", itemName, err)
}
