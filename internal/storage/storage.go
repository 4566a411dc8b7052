package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// Store wraps the sqlite database holding everything the engine persists:
// the whitelist, positions, transactions, sales history, market-stats
// snapshots and dead-lettered opportunities.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dataSourceName and creates the schema
// if needed.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err = createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	statements := []string{
		// Manually curated tradable item definitions.
		`CREATE TABLE IF NOT EXISTS whitelist_entries (
			item_name TEXT PRIMARY KEY,
			tier INTEGER NOT NULL,
			min_discount_pct TEXT NOT NULL,
			min_spread_pct TEXT NOT NULL,
			target_profit_pct TEXT NOT NULL,
			max_holdings INTEGER NOT NULL,
			active BOOLEAN NOT NULL
		);`,

		// Owned inventory. Money is stored as decimal strings; the
		// target_sell_price is written once at purchase and never updated.
		`CREATE TABLE IF NOT EXISTS positions (
			sale_id TEXT PRIMARY KEY,
			item_name TEXT NOT NULL,
			purchase_price TEXT NOT NULL,
			purchased_at DATETIME NOT NULL,
			target_sell_price TEXT NOT NULL,
			status TEXT NOT NULL,
			listed_price TEXT,
			sold_price TEXT,
			sold_at DATETIME,
			sale_fee TEXT,
			net_profit TEXT,
			risk_score REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_positions_item_status
			ON positions (item_name, status);`,

		// Audit trail: one row per executed trade action, success or not.
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			client_ref TEXT NOT NULL,
			type TEXT NOT NULL,
			sale_id TEXT NOT NULL,
			item_name TEXT NOT NULL,
			amount TEXT NOT NULL,
			balance_before TEXT NOT NULL,
			balance_after TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL
		);`,

		// Raw sales history backing the stats and the viability gate.
		// Prices are integer cents so at-or-above comparisons stay exact.
		`CREATE TABLE IF NOT EXISTS sales (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			item_name TEXT NOT NULL,
			price_cents INTEGER NOT NULL,
			sold_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sales_item_date
			ON sales (item_name, sold_at);`,

		// Pre-computed rolling statistics, one row per item.
		`CREATE TABLE IF NOT EXISTS market_stats (
			item_name TEXT PRIMARY KEY,
			avg_7d TEXT NOT NULL,
			avg_30d TEXT NOT NULL,
			median_30d TEXT NOT NULL,
			min_30d TEXT NOT NULL,
			max_30d TEXT NOT NULL,
			std_dev REAL NOT NULL,
			sales_count_7d INTEGER NOT NULL,
			sales_count_30d INTEGER NOT NULL,
			avg_sales_per_day REAL NOT NULL,
			velocity_known BOOLEAN NOT NULL,
			last_sale_price TEXT NOT NULL,
			last_sale_at DATETIME,
			updated_at DATETIME NOT NULL
		);`,

		// Opportunities that exhausted their retry budget, kept for manual
		// inspection instead of being dropped.
		`CREATE TABLE IF NOT EXISTS dead_letters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			opportunity_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			reason TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			created_at DATETIME NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
