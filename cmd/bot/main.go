package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"marketplace-trading-bot-go/internal/alert"
	"marketplace-trading-bot-go/internal/budget"
	"marketplace-trading-bot-go/internal/config"
	"marketplace-trading-bot-go/internal/executor"
	"marketplace-trading-bot-go/internal/guard"
	"marketplace-trading-bot-go/internal/logger"
	"marketplace-trading-bot-go/internal/marketplace"
	"marketplace-trading-bot-go/internal/models"
	"marketplace-trading-bot-go/internal/pipeline"
	"marketplace-trading-bot-go/internal/queue"
	"marketplace-trading-bot-go/internal/reporter"
	"marketplace-trading-bot-go/internal/risk"
	"marketplace-trading-bot-go/internal/scanner"
	"marketplace-trading-bot-go/internal/stats"
	"marketplace-trading-bot-go/internal/storage"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	mode := flag.String("mode", "worker", "running mode: worker, scan-buy, scan-sell or report")
	dryRun := flag.Bool("dry-run", false, "evaluate decisions without trading (overrides config)")
	flag.Parse()

	// A default logger first, so config loading problems are visible.
	logger.Init(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("no .env file found, reading from the environment")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.S().Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogConfig)
	defer logger.S().Sync()

	if *dryRun {
		cfg.DryRun = true
	}

	apiKey := os.Getenv("MARKETPLACE_API_KEY")
	if apiKey == "" {
		logger.S().Fatal("MARKETPLACE_API_KEY must be set")
	}

	app, err := buildApp(cfg, apiKey)
	if err != nil {
		logger.S().Fatalf("failed to initialize: %v", err)
	}
	defer app.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "worker":
		app.runWorker(ctx)
	case "scan-buy":
		app.runBuyScan(ctx)
	case "scan-sell":
		app.runSellScan(ctx)
	case "report":
		app.runReport(ctx)
	default:
		logger.S().Fatalf("unknown mode %q: choose worker, scan-buy, scan-sell or report", *mode)
	}
}

// app holds the wired engine. All components share the one ledger, client
// and store.
type app struct {
	cfg      *models.Config
	store    *storage.Store
	queue    *queue.Queue
	client   *marketplace.HTTPClient
	breaker  *guard.CircuitBreaker
	ledger   *budget.Ledger
	buyScan  *scanner.BuyScanner
	sellScan *scanner.SellScanner
	buyExec  *executor.BuyExecutor
	sellExec *executor.SellExecutor
	refresh  *stats.Refresher
	stream   *marketplace.SalesStream
	notifier alert.Notifier
	report   *reporter.Reporter
}

func buildApp(cfg *models.Config, apiKey string) (*app, error) {
	log := logger.S()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(cfg.QueuePath, cfg.MaxAttempts)
	if err != nil {
		store.Close()
		return nil, err
	}

	limiter := guard.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute,
		time.Duration(cfg.RequestDelayMs)*time.Millisecond)
	breaker := guard.NewCircuitBreaker(cfg.BreakerThreshold,
		time.Duration(cfg.BreakerRecoverySec)*time.Second, log)
	client := marketplace.NewHTTPClient(cfg.APIBaseURL, apiKey, limiter, breaker, log)

	ledger := budget.NewLedger(cfg, client, store, log)
	scorer := risk.NewScorer()
	buyPipe := pipeline.NewBuyPipeline(ledger, scorer, store, cfg, log)
	sellPipe := pipeline.NewSellPipeline(cfg, log)

	buyExec := executor.NewBuyExecutor(ledger, client, store, log)
	sellExec := executor.NewSellExecutor(ledger, client, store, cfg, log)

	var notifier alert.Notifier = alert.NewLogNotifier(log)
	if webhook := os.Getenv("ALERT_WEBHOOK_URL"); webhook != "" {
		notifier = alert.Fanout{alert.NewLogNotifier(log), alert.NewWebhookNotifier(webhook)}
	}

	a := &app{
		cfg:      cfg,
		store:    store,
		queue:    q,
		client:   client,
		breaker:  breaker,
		ledger:   ledger,
		buyExec:  buyExec,
		sellExec: sellExec,
		refresh:  stats.NewRefresher(client, store, log),
		notifier: notifier,
		report:   reporter.New(os.Stdout),
	}
	sellExec.SetNotifier(notifier)
	a.buyScan = scanner.NewBuyScanner(store, client, buyPipe, q, cfg.DryRun, log)
	a.sellScan = scanner.NewSellScanner(store, client, sellPipe, sellExec, cfg.DryRun, log)
	a.stream = marketplace.NewSalesStream(cfg.WSBaseURL, apiKey, func(sale models.Sale) {
		if err := store.InsertSale(sale); err != nil {
			log.Warnw("live sale insert failed", "item", sale.ItemName, "error", err)
		}
	}, log)
	return a, nil
}

func (a *app) close() {
	if err := a.queue.Close(); err != nil {
		logger.S().Warnw("queue close failed", "error", err)
	}
	if err := a.store.Close(); err != nil {
		logger.S().Warnw("store close failed", "error", err)
	}
}

// runWorker is the long-running mode: queue workers, the live sales feed
// and periodic scan cycles, all until the first termination signal.
func (a *app) runWorker(ctx context.Context) {
	log := logger.S()
	log.Infow("starting worker",
		"workers", a.cfg.WorkerCount,
		"scan_interval_sec", a.cfg.ScanIntervalSec,
		"dry_run", a.cfg.DryRun,
	)

	if err := a.refreshBudget(ctx); err != nil {
		log.Fatalf("initial balance refresh failed: %v", err)
	}

	var wg sync.WaitGroup

	consumer := queue.NewConsumer(a.queue, a.buyExec.Execute, a.store, a.cfg.WorkerCount, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	if a.cfg.WSBaseURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.stream.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scanLoop(ctx)
	}()

	<-ctx.Done()
	log.Info("shutting down")
	wg.Wait()
	log.Info("worker stopped")
}

func (a *app) scanLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(a.cfg.ScanIntervalSec) * time.Second)
	defer ticker.Stop()

	a.scanCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scanCycle(ctx)
		}
	}
}

// scanCycle is one full pass: settle completed sales, refresh balance and
// stats, then evaluate sells before buys so freed-up budget is seen.
func (a *app) scanCycle(ctx context.Context) {
	log := logger.S()

	if err := a.sellExec.ReconcileSales(ctx); err != nil {
		log.Warnw("sale reconciliation failed", "error", err)
	}
	if err := a.refreshBudget(ctx); err != nil {
		log.Warnw("balance refresh failed", "error", err)
		a.notify(ctx, alert.Alert{
			Type:    alert.TypeAPIError,
			Title:   "balance refresh failed",
			Message: err.Error(),
		})
		return
	}
	if err := a.refresh.RefreshAll(ctx); err != nil {
		log.Warnw("stats refresh failed", "error", err)
	}

	if _, err := a.sellScan.Scan(ctx); err != nil {
		log.Warnw("sell scan failed", "error", err)
	}
	if _, err := a.buyScan.Scan(ctx); err != nil {
		log.Warnw("buy scan failed", "error", err)
	}

	if a.breaker.IsOpen() {
		a.notify(ctx, alert.Alert{
			Type:    alert.TypeCircuitOpen,
			Title:   "circuit breaker open",
			Message: "API calls suspended until the recovery probe succeeds",
		})
	}
}

// refreshBudget refreshes the ledger and alerts when the balance has sunk
// to the floors.
func (a *app) refreshBudget(ctx context.Context) error {
	state, err := a.ledger.RefreshBalance(ctx)
	if err != nil {
		return err
	}
	if state.State == models.StateEmergency || state.State == models.StateLockdown {
		a.notify(ctx, alert.Alert{
			Type:    alert.TypeBalanceFloor,
			Title:   "balance at protective floor",
			Message: "trading restricted until the balance recovers",
			Fields: map[string]string{
				"balance": state.Balance.StringFixed(2),
				"state":   string(state.State),
			},
		})
	}
	return nil
}

func (a *app) notify(ctx context.Context, al alert.Alert) {
	if err := a.notifier.Notify(ctx, al); err != nil {
		logger.S().Warnw("alert delivery failed", "type", string(al.Type), "error", err)
	}
}

func (a *app) runBuyScan(ctx context.Context) {
	log := logger.S()
	if err := a.refreshBudget(ctx); err != nil {
		log.Fatalf("balance refresh failed: %v", err)
	}
	if err := a.refresh.RefreshAll(ctx); err != nil {
		log.Warnw("stats refresh failed", "error", err)
	}
	results, err := a.buyScan.Scan(ctx)
	if err != nil {
		log.Fatalf("buy scan failed: %v", err)
	}
	a.report.BuyScan(results)
	a.report.Budget(a.ledger.Snapshot())
}

func (a *app) runSellScan(ctx context.Context) {
	log := logger.S()
	if err := a.refreshBudget(ctx); err != nil {
		log.Fatalf("balance refresh failed: %v", err)
	}
	results, err := a.sellScan.Scan(ctx)
	if err != nil {
		log.Fatalf("sell scan failed: %v", err)
	}
	a.report.SellScan(results)
	a.report.Budget(a.ledger.Snapshot())
}

func (a *app) runReport(ctx context.Context) {
	log := logger.S()
	if err := a.refreshBudget(ctx); err != nil {
		log.Fatalf("balance refresh failed: %v", err)
	}
	a.report.Budget(a.ledger.Snapshot())

	txs, err := a.store.RecentTransactions(50)
	if err != nil {
		log.Fatalf("failed to load transactions: %v", err)
	}
	a.report.Transactions(txs)
}
