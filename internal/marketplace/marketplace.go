package marketplace

import (
	"context"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// Client is the narrow contract the engine has with the marketplace API.
// Implementations must report failures as one of the typed outcomes in
// internal/models: *models.APIError (understood and refused),
// *models.TransientAPIError (timeout, 5xx, rate limited) or
// *guard.CircuitOpenError (not attempted).
type Client interface {
	GetBalance(ctx context.Context) (decimal.Decimal, error)
	Search(ctx context.Context, itemName string) ([]models.Listing, error)
	BuyItems(ctx context.Context, saleIDs []string) (*BuyResult, error)
	ListItems(ctx context.Context, requests []ListRequest) (*ListResult, error)
	EditPrice(ctx context.Context, updates []PriceUpdate) (*EditResult, error)
	GetInventory(ctx context.Context) ([]models.InventoryItem, error)
	GetSalesHistory(ctx context.Context, itemName string) ([]models.Sale, error)
}

// ListRequest asks the marketplace to list one owned item for sale.
type ListRequest struct {
	SaleID string          `json:"sale_id"`
	Price  decimal.Decimal `json:"price"`
}

// PriceUpdate adjusts the price of an existing listing.
type PriceUpdate struct {
	SaleID string          `json:"sale_id"`
	Price  decimal.Decimal `json:"price"`
}

// BuyResult is the marketplace's answer to a purchase request.
type BuyResult struct {
	SaleIDs   []string        `json:"sale_ids"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// ListResult reports which items were listed.
type ListResult struct {
	Listed []string `json:"listed"`
}

// EditResult reports how many price updates were applied.
type EditResult struct {
	Updated int `json:"updated"`
}
