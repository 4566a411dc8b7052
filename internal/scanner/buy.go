package scanner

import (
	"context"

	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"

	"go.uber.org/zap"
)

// BuyScanner walks the active whitelist, evaluates the cheapest listings
// through the buy pipeline and publishes accepted opportunities.
type BuyScanner struct {
	store     ScanStore
	client    marketplace.Client
	pipe      *pipeline.BuyPipeline
	publisher Publisher
	dryRun    bool
	log       *zap.SugaredLogger
}

func NewBuyScanner(store ScanStore, client marketplace.Client, pipe *pipeline.BuyPipeline,
	publisher Publisher, dryRun bool, log *zap.SugaredLogger) *BuyScanner {
	return &BuyScanner{
		store:     store,
		client:    client,
		pipe:      pipe,
		publisher: publisher,
		dryRun:    dryRun,
		log:       log,
	}
}

// Scan runs one full pass. Per-item failures are logged and skipped; the
// scan only aborts on context cancellation. Returns every evaluation for
// reporting.
func (s *BuyScanner) Scan(ctx context.Context) ([]BuyScanResult, error) {
	entries, err := s.store.ActiveWhitelist()
	if err != nil {
		return nil, err
	}

	var results []BuyScanResult
	for _, entry := range entries {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		itemResults, err := s.scanItem(ctx, entry)
		if err != nil {
			s.log.Warnw("item scan failed", "item", entry.ItemName, "error", err)
			continue
		}
		results = append(results, itemResults...)
	}
	return results, nil
}

// scanItem evaluates the cheapest listing of one item. Search results come
// back price-ascending, so the head is the candidate and the second entry
// is the next-cheapest for the spread gate.
func (s *BuyScanner) scanItem(ctx context.Context, entry *models.WhitelistEntry) ([]BuyScanResult, error) {
	listings, err := s.client.Search(ctx, entry.ItemName)
	if err != nil {
		return nil, searchError(entry.ItemName, err)
	}
	if len(listings) == 0 {
		return nil, nil
	}

	stats, err := s.store.GetMarketStats(entry.ItemName)
	if err != nil {
		return nil, err
	}
	holdings, err := s.store.CountActiveHoldings(entry.ItemName)
	if err != nil {
		return nil, err
	}

	candidate := pipeline.BuyCandidate{
		Listing:  listings[0],
		Entry:    entry,
		Stats:    stats,
		Holdings: holdings,
	}
	if len(listings) > 1 {
		next := listings[1].Price
		candidate.NextCheapest = &next
	}

	opp, rej, err := s.pipe.Evaluate(candidate)
	if err != nil {
		return nil, err
	}

	result := BuyScanResult{
		ItemName:    entry.ItemName,
		SaleID:      listings[0].SaleID,
		Price:       listings[0].Price,
		Opportunity: opp,
		Rejection:   rej,
	}
	if opp != nil && !s.dryRun {
		published, err := s.publisher.Publish(opp)
		if err != nil {
			return nil, err
		}
		if !published {
			s.log.Debugw("opportunity already queued", "opportunity", opp.ID, "sale_id", opp.SaleID)
		}
	}
	return []BuyScanResult{result}, nil
}
