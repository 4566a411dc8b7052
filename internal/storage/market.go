package storage

import (
	"database/sql"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// ReplaceSales swaps the stored sales history of one item for a fresh
// download. Runs in a transaction so a failed refresh never leaves the
// item with a half-written history.
func (s *Store) ReplaceSales(itemName string, sales []models.Sale) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.Exec(`DELETE FROM sales WHERE item_name = ?`, itemName); err != nil {
		return fmt.Errorf("failed to clear sales for %s: %w", itemName, err)
	}
	stmt, err := tx.Prepare(`INSERT INTO sales (item_name, price_cents, sold_at) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sales insert: %w", err)
	}
	defer stmt.Close()

	for _, sale := range sales {
		if _, err = stmt.Exec(itemName, toCents(sale.Price), sale.SoldAt); err != nil {
			return fmt.Errorf("failed to insert sale for %s: %w", itemName, err)
		}
	}
	return tx.Commit()
}

// InsertSale appends one sale observed on the live feed. Duplicates with
// the bulk history are tolerated; the next ReplaceSales resets the table.
func (s *Store) InsertSale(sale models.Sale) error {
	_, err := s.db.Exec(`INSERT INTO sales (item_name, price_cents, sold_at) VALUES (?, ?, ?)`,
		sale.ItemName, toCents(sale.Price), sale.SoldAt)
	if err != nil {
		return fmt.Errorf("failed to insert sale for %s: %w", sale.ItemName, err)
	}
	return nil
}

// SalesSince returns the sales of one item on or after the cutoff, oldest
// first.
func (s *Store) SalesSince(itemName string, since time.Time) ([]models.Sale, error) {
	rows, err := s.db.Query(`
		SELECT price_cents, sold_at FROM sales
		WHERE item_name = ? AND sold_at >= ? ORDER BY sold_at`, itemName, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales for %s: %w", itemName, err)
	}
	defer rows.Close()

	var sales []models.Sale
	for rows.Next() {
		var cents int64
		var soldAt time.Time
		if err := rows.Scan(&cents, &soldAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, models.Sale{
			ItemName: itemName,
			Price:    fromCents(cents),
			SoldAt:   soldAt,
		})
	}
	return sales, rows.Err()
}

// CountSalesAtOrAbove counts sales of the item at or above price since the
// cutoff. Prices live in the table as integer cents, so the comparison is
// exact; the threshold is rounded to cents the same way prices were stored.
func (s *Store) CountSalesAtOrAbove(itemName string, price decimal.Decimal, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sales
		WHERE item_name = ? AND price_cents >= ? AND sold_at >= ?`,
		itemName, toCents(price), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sales for %s: %w", itemName, err)
	}
	return n, nil
}

func toCents(price decimal.Decimal) int64 {
	return price.Round(2).Mul(decimal.NewFromInt(100)).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100))
}

// UpsertMarketStats writes one stats snapshot, replacing any previous one.
func (s *Store) UpsertMarketStats(m *models.MarketStats) error {
	_, err := s.db.Exec(`
		INSERT INTO market_stats
			(item_name, avg_7d, avg_30d, median_30d, min_30d, max_30d, std_dev,
			sales_count_7d, sales_count_30d, avg_sales_per_day, velocity_known,
			last_sale_price, last_sale_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_name) DO UPDATE SET
			avg_7d = excluded.avg_7d,
			avg_30d = excluded.avg_30d,
			median_30d = excluded.median_30d,
			min_30d = excluded.min_30d,
			max_30d = excluded.max_30d,
			std_dev = excluded.std_dev,
			sales_count_7d = excluded.sales_count_7d,
			sales_count_30d = excluded.sales_count_30d,
			avg_sales_per_day = excluded.avg_sales_per_day,
			velocity_known = excluded.velocity_known,
			last_sale_price = excluded.last_sale_price,
			last_sale_at = excluded.last_sale_at,
			updated_at = excluded.updated_at`,
		m.ItemName, m.Avg7d.String(), m.Avg30d.String(), m.Median30d.String(),
		m.Min30d.String(), m.Max30d.String(), m.StdDev, m.SalesCount7d,
		m.SalesCount30d, m.AvgSalesPerDay, m.VelocityKnown,
		m.LastSalePrice.String(), m.LastSaleAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert market stats for %s: %w", m.ItemName, err)
	}
	return nil
}

// GetMarketStats returns the stats snapshot for one item, or (nil, nil)
// when no snapshot has been computed yet.
func (s *Store) GetMarketStats(itemName string) (*models.MarketStats, error) {
	row := s.db.QueryRow(`
		SELECT item_name, avg_7d, avg_30d, median_30d, min_30d, max_30d, std_dev,
			sales_count_7d, sales_count_30d, avg_sales_per_day, velocity_known,
			last_sale_price, last_sale_at, updated_at
		FROM market_stats WHERE item_name = ?`, itemName)

	var m models.MarketStats
	var avg7, avg30, median, min30, max30, last string
	var lastAt sql.NullTime
	err := row.Scan(&m.ItemName, &avg7, &avg30, &median, &min30, &max30, &m.StdDev,
		&m.SalesCount7d, &m.SalesCount30d, &m.AvgSalesPerDay, &m.VelocityKnown,
		&last, &lastAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get market stats for %s: %w", itemName, err)
	}
	if m.Avg7d, err = decimal.NewFromString(avg7); err != nil {
		return nil, err
	}
	if m.Avg30d, err = decimal.NewFromString(avg30); err != nil {
		return nil, err
	}
	if m.Median30d, err = decimal.NewFromString(median); err != nil {
		return nil, err
	}
	if m.Min30d, err = decimal.NewFromString(min30); err != nil {
		return nil, err
	}
	if m.Max30d, err = decimal.NewFromString(max30); err != nil {
		return nil, err
	}
	if m.LastSalePrice, err = decimal.NewFromString(last); err != nil {
		return nil, err
	}
	if lastAt.Valid {
		m.LastSaleAt = lastAt.Time
	}
	return &m, nil
}

// InsertDeadLetter archives an opportunity that exhausted its retries.
func (s *Store) InsertDeadLetter(opportunityID, payload, reason string, attempts int) error {
	_, err := s.db.Exec(`
		INSERT INTO dead_letters (opportunity_id, payload, reason, attempts, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		opportunityID, payload, reason, attempts, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert dead letter %s: %w", opportunityID, err)
	}
	return nil
}

// DeadLetterCount returns how many opportunities have been dead-lettered.
func (s *Store) DeadLetterCount() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM dead_letters`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dead letters: %w", err)
	}
	return n, nil
}
