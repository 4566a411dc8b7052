package stats

import (
	"context"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/storage"

	"go.uber.org/zap"
)

// Refresher downloads sales history for whitelisted items and rebuilds
// their stats snapshots. Scans read only the snapshots, never raw history,
// so a refresh failure leaves the previous snapshot in place.
type Refresher struct {
	client marketplace.Client
	store  *storage.Store
	log    *zap.SugaredLogger
}

func NewRefresher(client marketplace.Client, store *storage.Store, log *zap.SugaredLogger) *Refresher {
	return &Refresher{client: client, store: store, log: log}
}

// RefreshAll rebuilds stats for every active whitelist item. Per-item
// failures are logged and skipped so one bad item cannot starve the rest.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	entries, err := r.store.ActiveWhitelist()
	if err != nil {
		return fmt.Errorf("load whitelist: %w", err)
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.RefreshItem(ctx, e.ItemName); err != nil {
			r.log.Warnw("stats refresh failed", "item", e.ItemName, "error", err)
		}
	}
	return nil
}

// RefreshItem downloads, stores and aggregates the sales history of one item.
func (r *Refresher) RefreshItem(ctx context.Context, itemName string) error {
	sales, err := r.client.GetSalesHistory(ctx, itemName)
	if err != nil {
		return fmt.Errorf("fetch sales history: %w", err)
	}
	if err := r.store.ReplaceSales(itemName, sales); err != nil {
		return fmt.Errorf("store sales history: %w", err)
	}

	snapshot := Aggregate(itemName, sales, time.Now())
	if err := r.store.UpsertMarketStats(snapshot); err != nil {
		return fmt.Errorf("store stats snapshot: %w", err)
	}
	r.log.Debugw("stats refreshed",
		"item", itemName,
		"sales_30d", snapshot.SalesCount30d,
		"avg_7d", snapshot.Avg7d.StringFixed(2),
		"velocity_known", snapshot.VelocityKnown,
	)
	return nil
}

// StatsFor loads the stored snapshot for one item; (nil, nil) when absent.
func (r *Refresher) StatsFor(itemName string) (*models.MarketStats, error) {
	return r.store.GetMarketStats(itemName)
}
