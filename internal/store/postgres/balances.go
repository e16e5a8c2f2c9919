package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core"
)

const balanceColumns = `location_id, product_id, quantity, reserved, min_stock, max_stock, updated_at`

func scanBalance(row pgx.Row) (*core.StockBalance, error) {
	var b core.StockBalance
	err := row.Scan(&b.LocationID, &b.ProductID, &b.Quantity, &b.Reserved, &b.MinStock, &b.MaxStock, &b.UpdatedAt)
	return &b, err
}

func queryBalances(ctx context.Context, q querier, sql string, args ...any) ([]core.StockBalance, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	out := make([]core.StockBalance, 0)
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) GetBalance(ctx context.Context, key core.BalanceKey) (*core.StockBalance, error) {
	b, err := scanBalance(s.pool.QueryRow(ctx,
		"SELECT "+balanceColumns+" FROM stock_balances WHERE location_id = $1 AND product_id = $2",
		key.LocationID, key.ProductID))
	if err != nil {
		return nil, rowErr(err, "balance", key.String())
	}
	return b, nil
}

func (s *Store) ListBalances(ctx context.Context, f core.BalanceFilter) ([]core.StockBalance, error) {
	var c conds
	c.addIf("location_id = ?", f.LocationID)
	c.addIf("product_id = ?", f.ProductID)
	return queryBalances(ctx, s.pool,
		"SELECT "+balanceColumns+" FROM stock_balances"+c.where()+" ORDER BY location_id, product_id", c.args...)
}

func (s *Store) ListMovements(ctx context.Context, f core.MovementFilter) ([]core.StockMovement, error) {
	var c conds
	c.addIf("location_id = ?", f.LocationID)
	c.addIf("product_id = ?", f.ProductID)
	c.addIf("ref_id = ?", f.RefID)
	sql := `SELECT id, location_id, product_id, kind, quantity, quantity_after, reserved_after,
			ref_type, ref_id, note, created_at
		FROM stock_movements` + c.where() + " ORDER BY seq DESC"
	if f.Limit > 0 {
		sql += " LIMIT " + c.next(f.Limit)
	}

	rows, err := s.pool.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list movements: %w", err)
	}
	defer rows.Close()

	out := make([]core.StockMovement, 0)
	for rows.Next() {
		var m core.StockMovement
		if err := rows.Scan(&m.ID, &m.LocationID, &m.ProductID, &m.Kind, &m.Quantity, &m.QuantityAfter,
			&m.ReservedAfter, &m.RefType, &m.RefID, &m.Note, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan movement: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LockBalances makes sure a row exists for every key and locks it, one key at a
// time in sorted order so concurrent transactions cannot deadlock on balances.
func (t *pgTx) LockBalances(ctx context.Context, keys []core.BalanceKey) (map[core.BalanceKey]*core.StockBalance, error) {
	out := make(map[core.BalanceKey]*core.StockBalance, len(keys))
	for _, k := range core.SortedKeys(keys) {
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO stock_balances (location_id, product_id)
			VALUES ($1, $2)
			ON CONFLICT (location_id, product_id) DO NOTHING`,
			k.LocationID, k.ProductID); err != nil {
			return nil, fmt.Errorf("failed to create balance %s: %w", k, mapErr(err))
		}
		b, err := scanBalance(t.tx.QueryRow(ctx,
			"SELECT "+balanceColumns+" FROM stock_balances WHERE location_id = $1 AND product_id = $2 FOR UPDATE",
			k.LocationID, k.ProductID))
		if err != nil {
			return nil, rowErr(err, "balance", k.String())
		}
		out[k] = b
	}
	return out, nil
}

func (t *pgTx) SaveBalance(ctx context.Context, b *core.StockBalance) error {
	if err := b.CheckInvariant(); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_balances (location_id, product_id, quantity, reserved, min_stock, max_stock, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (location_id, product_id) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			reserved = EXCLUDED.reserved,
			min_stock = EXCLUDED.min_stock,
			max_stock = EXCLUDED.max_stock,
			updated_at = EXCLUDED.updated_at`,
		b.LocationID, b.ProductID, b.Quantity, b.Reserved, b.MinStock, b.MaxStock, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save balance %s: %w", b.Key(), mapErr(err))
	}
	return nil
}

func (t *pgTx) InsertMovement(ctx context.Context, m *core.StockMovement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_movements (id, location_id, product_id, kind, quantity, quantity_after, reserved_after,
			ref_type, ref_id, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		m.ID, m.LocationID, m.ProductID, string(m.Kind), m.Quantity, m.QuantityAfter, m.ReservedAfter,
		m.RefType, m.RefID, m.Note, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert movement: %w", mapErr(err))
	}
	return nil
}

func (t *pgTx) LocationBalances(ctx context.Context, locationID string) ([]core.StockBalance, error) {
	return queryBalances(ctx, t.tx,
		"SELECT "+balanceColumns+" FROM stock_balances WHERE location_id = $1 ORDER BY product_id", locationID)
}

// NextSequence bumps the (prefix, year) counter under its row lock, so numbers
// stay gapless: a rolled back transaction also rolls back its increment.
func (t *pgTx) NextSequence(ctx context.Context, prefix string, year int) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO doc_sequences (prefix, year, last_number)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, year) DO UPDATE SET last_number = doc_sequences.last_number + 1
		RETURNING last_number`,
		prefix, year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate %s number: %w", prefix, err)
	}
	return n, nil
}
