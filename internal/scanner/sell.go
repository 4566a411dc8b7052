package scanner

import (
	"context"
	"time"

	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SellScanner walks holding and listed positions, evaluates each against
// the current competing listings and applies the decided actions.
type SellScanner struct {
	store  ScanStore
	client marketplace.Client
	pipe   *pipeline.SellPipeline
	actor  SellActor
	dryRun bool
	log    *zap.SugaredLogger
}

func NewSellScanner(store ScanStore, client marketplace.Client, pipe *pipeline.SellPipeline,
	actor SellActor, dryRun bool, log *zap.SugaredLogger) *SellScanner {
	return &SellScanner{
		store:  store,
		client: client,
		pipe:   pipe,
		actor:  actor,
		dryRun: dryRun,
		log:    log,
	}
}

// Scan runs one full pass over all open positions. Listings are fetched
// once per item, not per position.
func (s *SellScanner) Scan(ctx context.Context) ([]SellScanResult, error) {
	var positions []*models.Position
	for _, status := range []models.PositionStatus{models.StatusHolding, models.StatusListed} {
		batch, err := s.store.PositionsByStatus(status)
		if err != nil {
			return nil, err
		}
		positions = append(positions, batch...)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	listingCache := make(map[string][]models.Listing)
	avgCache := make(map[string]decimal.Decimal)
	now := time.Now()

	var results []SellScanResult
	for _, pos := range positions {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}

		listings, ok := listingCache[pos.ItemName]
		if !ok {
			var err error
			listings, err = s.client.Search(ctx, pos.ItemName)
			if err != nil {
				s.log.Warnw("listing fetch failed, skipping position",
					"item", pos.ItemName, "sale_id", pos.SaleID, "error", err)
				continue
			}
			listingCache[pos.ItemName] = listings

			avg := decimal.Zero
			if stats, err := s.store.GetMarketStats(pos.ItemName); err == nil && stats != nil {
				avg = stats.Avg7d
			}
			avgCache[pos.ItemName] = avg
		}

		opp, err := s.pipe.Evaluate(pipeline.SellCandidate{
			Position:  pos,
			Listings:  listings,
			MarketAvg: avgCache[pos.ItemName],
			Now:       now,
		})
		if err != nil {
			s.log.Warnw("sell evaluation failed", "sale_id", pos.SaleID, "error", err)
			continue
		}

		result := SellScanResult{Position: pos, Opportunity: opp}
		if opp.Action != models.SellHold && !s.dryRun {
			result.ExecuteErr = s.actor.Execute(ctx, opp)
			result.Executed = result.ExecuteErr == nil
			if result.ExecuteErr != nil {
				s.log.Warnw("sell action failed",
					"sale_id", pos.SaleID, "action", string(opp.Action), "error", result.ExecuteErr)
			}
		}
		results = append(results, result)
	}
	return results, nil
}
