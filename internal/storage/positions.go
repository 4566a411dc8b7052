package storage

import (
	"database/sql"
	"fmt"
	"time"

	"marketplace-trading-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// UpsertWhitelistEntry inserts or replaces one whitelist entry.
func (s *Store) UpsertWhitelistEntry(e *models.WhitelistEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO whitelist_entries
			(item_name, tier, min_discount_pct, min_spread_pct, target_profit_pct, max_holdings, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_name) DO UPDATE SET
			tier = excluded.tier,
			min_discount_pct = excluded.min_discount_pct,
			min_spread_pct = excluded.min_spread_pct,
			target_profit_pct = excluded.target_profit_pct,
			max_holdings = excluded.max_holdings,
			active = excluded.active`,
		e.ItemName, int(e.Tier), e.MinDiscountPct.String(), e.MinSpreadPct.String(),
		e.TargetProfitPct.String(), e.MaxHoldings, e.Active)
	if err != nil {
		return fmt.Errorf("failed to upsert whitelist entry %s: %w", e.ItemName, err)
	}
	return nil
}

// GetWhitelistEntry returns one entry by item name, or (nil, nil) when the
// item is not whitelisted.
func (s *Store) GetWhitelistEntry(itemName string) (*models.WhitelistEntry, error) {
	row := s.db.QueryRow(`
		SELECT item_name, tier, min_discount_pct, min_spread_pct, target_profit_pct, max_holdings, active
		FROM whitelist_entries WHERE item_name = ?`, itemName)
	e, err := scanWhitelistEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get whitelist entry %s: %w", itemName, err)
	}
	return e, nil
}

// ActiveWhitelist returns every active entry, ordered by item name.
func (s *Store) ActiveWhitelist() ([]*models.WhitelistEntry, error) {
	rows, err := s.db.Query(`
		SELECT item_name, tier, min_discount_pct, min_spread_pct, target_profit_pct, max_holdings, active
		FROM whitelist_entries WHERE active = 1 ORDER BY item_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query whitelist: %w", err)
	}
	defer rows.Close()

	var entries []*models.WhitelistEntry
	for rows.Next() {
		e, err := scanWhitelistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan whitelist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWhitelistEntry(row rowScanner) (*models.WhitelistEntry, error) {
	var e models.WhitelistEntry
	var tier int
	var minDiscount, minSpread, targetProfit string
	if err := row.Scan(&e.ItemName, &tier, &minDiscount, &minSpread, &targetProfit,
		&e.MaxHoldings, &e.Active); err != nil {
		return nil, err
	}
	e.Tier = models.Tier(tier)
	var err error
	if e.MinDiscountPct, err = decimal.NewFromString(minDiscount); err != nil {
		return nil, err
	}
	if e.MinSpreadPct, err = decimal.NewFromString(minSpread); err != nil {
		return nil, err
	}
	if e.TargetProfitPct, err = decimal.NewFromString(targetProfit); err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertPosition records a freshly purchased position in holding state.
func (s *Store) InsertPosition(p *models.Position) error {
	_, err := s.db.Exec(`
		INSERT INTO positions
			(sale_id, item_name, purchase_price, purchased_at, target_sell_price, status, risk_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SaleID, p.ItemName, p.PurchasePrice.String(), p.PurchasedAt,
		p.TargetSellPrice.String(), string(p.Status), p.RiskScore)
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.SaleID, err)
	}
	return nil
}

// GetPosition returns one position by sale id, or (nil, nil) when unknown.
func (s *Store) GetPosition(saleID string) (*models.Position, error) {
	row := s.db.QueryRow(`
		SELECT sale_id, item_name, purchase_price, purchased_at, target_sell_price,
			status, listed_price, sold_price, sold_at, sale_fee, net_profit, risk_score
		FROM positions WHERE sale_id = ?`, saleID)
	p, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", saleID, err)
	}
	return p, nil
}

// PositionsByStatus returns all positions in the given status, oldest first.
func (s *Store) PositionsByStatus(status models.PositionStatus) ([]*models.Position, error) {
	rows, err := s.db.Query(`
		SELECT sale_id, item_name, purchase_price, purchased_at, target_sell_price,
			status, listed_price, sold_price, sold_at, sale_fee, net_profit, risk_score
		FROM positions WHERE status = ? ORDER BY purchased_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to query positions by status %s: %w", status, err)
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func scanPosition(row rowScanner) (*models.Position, error) {
	var p models.Position
	var purchase, target, status string
	var listed, sold, fee, profit sql.NullString
	var soldAt sql.NullTime
	if err := row.Scan(&p.SaleID, &p.ItemName, &purchase, &p.PurchasedAt, &target,
		&status, &listed, &sold, &soldAt, &fee, &profit, &p.RiskScore); err != nil {
		return nil, err
	}
	p.Status = models.PositionStatus(status)
	var err error
	if p.PurchasePrice, err = decimal.NewFromString(purchase); err != nil {
		return nil, err
	}
	if p.TargetSellPrice, err = decimal.NewFromString(target); err != nil {
		return nil, err
	}
	if p.ListedPrice, err = nullDecimal(listed); err != nil {
		return nil, err
	}
	if p.SoldPrice, err = nullDecimal(sold); err != nil {
		return nil, err
	}
	if p.SaleFee, err = nullDecimal(fee); err != nil {
		return nil, err
	}
	if p.NetProfit, err = nullDecimal(profit); err != nil {
		return nil, err
	}
	if soldAt.Valid {
		p.SoldAt = soldAt.Time
	}
	return &p, nil
}

func nullDecimal(v sql.NullString) (decimal.Decimal, error) {
	if !v.Valid {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(v.String)
}

// MarkListed moves a position from holding to listed. The WHERE clause on
// the old status enforces the forward-only lifecycle: a stale update hits
// zero rows and returns an error instead of clobbering a later state.
func (s *Store) MarkListed(saleID string, listedPrice decimal.Decimal) error {
	return s.transition(saleID, models.StatusHolding, `
		UPDATE positions SET status = ?, listed_price = ?
		WHERE sale_id = ? AND status = ?`,
		string(models.StatusListed), listedPrice.String(), saleID, string(models.StatusHolding))
}

// UpdateListedPrice rewrites the asking price of an already listed position.
func (s *Store) UpdateListedPrice(saleID string, listedPrice decimal.Decimal) error {
	return s.transition(saleID, models.StatusListed, `
		UPDATE positions SET listed_price = ?
		WHERE sale_id = ? AND status = ?`,
		listedPrice.String(), saleID, string(models.StatusListed))
}

// MarkSold finalizes a listed position with the realized sale economics.
func (s *Store) MarkSold(saleID string, soldPrice, saleFee, netProfit decimal.Decimal, soldAt time.Time) error {
	return s.transition(saleID, models.StatusListed, `
		UPDATE positions SET status = ?, sold_price = ?, sale_fee = ?, net_profit = ?, sold_at = ?
		WHERE sale_id = ? AND status = ?`,
		string(models.StatusSold), soldPrice.String(), saleFee.String(),
		netProfit.String(), soldAt, saleID, string(models.StatusListed))
}

// MarkFailed flags a position whose trade action failed terminally. Legal
// from holding or listed, never from a terminal status.
func (s *Store) MarkFailed(saleID string) error {
	res, err := s.db.Exec(`
		UPDATE positions SET status = ?
		WHERE sale_id = ? AND status IN (?, ?)`,
		string(models.StatusFailed), saleID,
		string(models.StatusHolding), string(models.StatusListed))
	if err != nil {
		return fmt.Errorf("failed to mark position %s failed: %w", saleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("position %s not in a failable status", saleID)
	}
	return nil
}

func (s *Store) transition(saleID string, from models.PositionStatus, query string, args ...interface{}) error {
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update position %s: %w", saleID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("position %s not found in status %s", saleID, from)
	}
	return nil
}

// CountActiveHoldings counts holding and listed positions for one item. The
// portfolio gate uses this to cap concentration.
func (s *Store) CountActiveHoldings(itemName string) (int, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM positions
		WHERE item_name = ? AND status IN (?, ?)`,
		itemName, string(models.StatusHolding), string(models.StatusListed)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count holdings for %s: %w", itemName, err)
	}
	return n, nil
}

// InvestedTotal sums the purchase price of every holding or listed
// position. Summed in Go rather than SQL so the decimals never pass
// through floating point.
func (s *Store) InvestedTotal() (decimal.Decimal, error) {
	rows, err := s.db.Query(`
		SELECT purchase_price FROM positions WHERE status IN (?, ?)`,
		string(models.StatusHolding), string(models.StatusListed))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query invested total: %w", err)
	}
	defer rows.Close()
	return sumDecimalRows(rows)
}

// RealizedProfitTotal sums net profit over all sold positions.
func (s *Store) RealizedProfitTotal() (decimal.Decimal, error) {
	rows, err := s.db.Query(`
		SELECT net_profit FROM positions WHERE status = ? AND net_profit IS NOT NULL`,
		string(models.StatusSold))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query realized profit: %w", err)
	}
	defer rows.Close()
	return sumDecimalRows(rows)
}

func sumDecimalRows(rows *sql.Rows) (decimal.Decimal, error) {
	total := decimal.Zero
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return decimal.Zero, err
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// InsertTransaction appends one audit record.
func (s *Store) InsertTransaction(tx *models.Transaction) error {
	_, err := s.db.Exec(`
		INSERT INTO transactions
			(client_ref, type, sale_id, item_name, amount, balance_before, balance_after, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ClientRef, string(tx.Type), tx.SaleID, tx.ItemName, tx.Amount.String(),
		tx.BalanceBefore.String(), tx.BalanceAfter.String(), tx.Success, tx.Error, tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ClientRef, err)
	}
	return nil
}

// RecentTransactions returns the newest records first, up to limit.
func (s *Store) RecentTransactions(limit int) ([]*models.Transaction, error) {
	rows, err := s.db.Query(`
		SELECT id, client_ref, type, sale_id, item_name, amount, balance_before,
			balance_after, success, error, created_at
		FROM transactions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []*models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var txType, amount, before, after string
		var errMsg sql.NullString
		if err := rows.Scan(&tx.ID, &tx.ClientRef, &txType, &tx.SaleID, &tx.ItemName,
			&amount, &before, &after, &tx.Success, &errMsg, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Type = models.TransactionType(txType)
		tx.Error = errMsg.String
		if tx.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if tx.BalanceBefore, err = decimal.NewFromString(before); err != nil {
			return nil, err
		}
		if tx.BalanceAfter, err = decimal.NewFromString(after); err != nil {
			return nil, err
		}
		txs = append(txs, &tx)
	}
	return txs, rows.Err()
}
