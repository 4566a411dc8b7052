package executor

import (
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/google/uuid"
	"github.com/jxskiss/base62"
	"github.com/shopspring/decimal"
)

// PositionStore is the slice of storage the executors write through.
type PositionStore interface {
	GetPosition(saleID string) (*models.Position, error)
	PositionsByStatus(status models.PositionStatus) ([]*models.Position, error)
	InsertPosition(p *models.Position) error
	MarkListed(saleID string, listedPrice decimal.Decimal) error
	UpdateListedPrice(saleID string, listedPrice decimal.Decimal) error
	MarkSold(saleID string, soldPrice, saleFee, netProfit decimal.Decimal, soldAt time.Time) error
	MarkFailed(saleID string) error
	InsertTransaction(tx *models.Transaction) error
}

// newClientRef generates a short opaque reference written into every
// transaction record, so an audit row can be quoted to marketplace support
// without exposing internal ids.
func newClientRef() string {
	id := uuid.New()
	return base62.EncodeToString(id[:])
}
