package scanner

import (
	"context"
	"testing"
	"time"

	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"
	"marketplace-trading-bot-go/internal/risk"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeStore serves canned whitelist, stats and positions.
type fakeStore struct {
	entries   []*models.WhitelistEntry
	stats     map[string]*models.MarketStats
	holdings  map[string]int
	positions []*models.Position
}

func (f *fakeStore) ActiveWhitelist() ([]*models.WhitelistEntry, error) { return f.entries, nil }
func (f *fakeStore) GetMarketStats(item string) (*models.MarketStats, error) {
	return f.stats[item], nil
}
func (f *fakeStore) CountActiveHoldings(item string) (int, error) { return f.holdings[item], nil }
func (f *fakeStore) PositionsByStatus(status models.PositionStatus) ([]*models.Position, error) {
	var out []*models.Position
	for _, p := range f.positions {
		if p.Status == status {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeClient serves canned listings and counts searches.
type fakeClient struct {
	listings map[string][]models.Listing
	searches map[string]int
}

func (f *fakeClient) Search(ctx context.Context, item string) ([]models.Listing, error) {
	if f.searches == nil {
		f.searches = make(map[string]int)
	}
	f.searches[item]++
	return f.listings[item], nil
}

func (f *fakeClient) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}
func (f *fakeClient) BuyItems(ctx context.Context, ids []string) (*marketplace.BuyResult, error) {
	return nil, nil
}
func (f *fakeClient) ListItems(ctx context.Context, reqs []marketplace.ListRequest) (*marketplace.ListResult, error) {
	return nil, nil
}
func (f *fakeClient) EditPrice(ctx context.Context, ups []marketplace.PriceUpdate) (*marketplace.EditResult, error) {
	return nil, nil
}
func (f *fakeClient) GetInventory(ctx context.Context) ([]models.InventoryItem, error) {
	return nil, nil
}
func (f *fakeClient) GetSalesHistory(ctx context.Context, item string) ([]models.Sale, error) {
	return nil, nil
}

type fakePublisher struct {
	published []*models.BuyOpportunity
}

func (f *fakePublisher) Publish(opp *models.BuyOpportunity) (bool, error) {
	f.published = append(f.published, opp)
	return true, nil
}

type fakeActor struct {
	executed []*models.SellOpportunity
	err      error
}

func (f *fakeActor) Execute(ctx context.Context, opp *models.SellOpportunity) error {
	if f.err != nil {
		return f.err
	}
	f.executed = append(f.executed, opp)
	return nil
}

type passBudget struct{}

func (passBudget) CanAfford(price decimal.Decimal) (bool, string) { return true, "" }
func (passBudget) TradingState() models.TradingState              { return models.StateNormal }
func (passBudget) Balance() decimal.Decimal                       { return dec("1000") }

type passHistory struct{}

func (passHistory) CountSalesAtOrAbove(item string, price decimal.Decimal, since time.Time) (int, error) {
	return 10, nil
}

func testConfig() *models.Config {
	cfg := &models.Config{}
	cfg.ApplyDefaults()
	return cfg
}

func buyFixtures() (*fakeStore, *fakeClient) {
	store := &fakeStore{
		entries: []*models.WhitelistEntry{{
			ItemName:        "Test Item",
			Tier:            models.Tier1,
			MinDiscountPct:  dec("20"),
			MinSpreadPct:    dec("5"),
			TargetProfitPct: dec("10"),
			MaxHoldings:     3,
			Active:          true,
		}},
		stats: map[string]*models.MarketStats{
			"Test Item": {
				ItemName:       "Test Item",
				Avg7d:          dec("35.50"),
				Min30d:         dec("25.00"),
				StdDev:         0.8,
				SalesCount30d:  40,
				AvgSalesPerDay: 4.0,
				VelocityKnown:  true,
			},
		},
		holdings: map[string]int{},
	}
	client := &fakeClient{
		listings: map[string][]models.Listing{
			"Test Item": {
				{SaleID: "sale-1", ItemName: "Test Item", Price: dec("28.00")},
				{SaleID: "sale-2", ItemName: "Test Item", Price: dec("34.00")},
			},
		},
	}
	return store, client
}

func newBuyScanner(store *fakeStore, client *fakeClient, pub Publisher, dryRun bool) *BuyScanner {
	log := zap.NewNop().Sugar()
	pipe := pipeline.NewBuyPipeline(passBudget{}, risk.NewScorer(), passHistory{}, testConfig(), log)
	return NewBuyScanner(store, client, pipe, pub, dryRun, log)
}

func TestBuyScanPublishesAccepted(t *testing.T) {
	store, client := buyFixtures()
	pub := &fakePublisher{}

	results, err := newBuyScanner(store, client, pub, false).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Opportunity)
	assert.Nil(t, results[0].Rejection)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "sale-1", pub.published[0].SaleID)
}

func TestBuyScanDryRunDoesNotPublish(t *testing.T) {
	store, client := buyFixtures()
	pub := &fakePublisher{}

	results, err := newBuyScanner(store, client, pub, true).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Opportunity)
	assert.Empty(t, pub.published)
}

func TestBuyScanCapturesRejections(t *testing.T) {
	store, client := buyFixtures()
	// Thin spread: 28.00 head vs 28.50 next-cheapest is 1.8%, below 5%.
	client.listings["Test Item"][1].Price = dec("28.50")
	pub := &fakePublisher{}

	results, err := newBuyScanner(store, client, pub, false).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Opportunity)
	require.NotNil(t, results[0].Rejection)
	assert.Equal(t, pipeline.GateSpread, results[0].Rejection.Gate)
	assert.Empty(t, pub.published)
}

func TestBuyScanSkipsEmptyMarkets(t *testing.T) {
	store, client := buyFixtures()
	client.listings["Test Item"] = nil

	results, err := newBuyScanner(store, client, &fakePublisher{}, false).Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func newSellScanner(store *fakeStore, client *fakeClient, actor SellActor, dryRun bool) *SellScanner {
	log := zap.NewNop().Sugar()
	return NewSellScanner(store, client, pipeline.NewSellPipeline(testConfig(), log), actor, dryRun, log)
}

func sellFixtures(status models.PositionStatus) (*fakeStore, *fakeClient) {
	pos := &models.Position{
		SaleID:          "own-1",
		ItemName:        "Test Item",
		PurchasePrice:   dec("10.00"),
		PurchasedAt:     time.Now().Add(-24 * time.Hour),
		TargetSellPrice: dec("12.94"),
		Status:          status,
	}
	if status == models.StatusListed {
		pos.ListedPrice = dec("14.00")
	}
	store := &fakeStore{
		positions: []*models.Position{pos},
		stats:     map[string]*models.MarketStats{},
	}
	client := &fakeClient{
		listings: map[string][]models.Listing{
			"Test Item": {{SaleID: "comp-1", ItemName: "Test Item", Price: dec("13.50")}},
		},
	}
	return store, client
}

func TestSellScanExecutesListDecision(t *testing.T) {
	store, client := sellFixtures(models.StatusHolding)
	actor := &fakeActor{}

	results, err := newSellScanner(store, client, actor, false).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Executed)

	require.Len(t, actor.executed, 1)
	assert.Equal(t, models.SellList, actor.executed[0].Action)
	assert.Equal(t, "13.49", actor.executed[0].Price.StringFixed(2))
}

func TestSellScanDryRunEvaluatesWithoutActing(t *testing.T) {
	store, client := sellFixtures(models.StatusHolding)
	actor := &fakeActor{}

	results, err := newSellScanner(store, client, actor, true).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Executed)
	assert.Equal(t, models.SellList, results[0].Opportunity.Action)
	assert.Empty(t, actor.executed)
}

func TestSellScanFetchesListingsOncePerItem(t *testing.T) {
	store, client := sellFixtures(models.StatusHolding)
	second := *store.positions[0]
	second.SaleID = "own-2"
	store.positions = append(store.positions, &second)
	actor := &fakeActor{}

	_, err := newSellScanner(store, client, actor, false).Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, client.searches["Test Item"])
}

func TestSellScanHoldNeedsNoActor(t *testing.T) {
	store, client := sellFixtures(models.StatusListed)
	// Our 14.00 listing against a 13.50 competitor, fresh and a small gap:
	// the pipeline holds, so the actor must stay untouched.
	store.positions[0].ListedPrice = dec("13.51")
	actor := &fakeActor{}

	results, err := newSellScanner(store, client, actor, false).Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.SellHold, results[0].Opportunity.Action)
	assert.Empty(t, actor.executed)
}
