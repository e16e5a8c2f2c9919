package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core"
)

const countColumns = `id, code, location_id, count_type, status, total_items, items_counted, discrepancies,
	notes, started_by, completed_by, cancel_reason, started_at, completed_at, cancelled_at, updated_at`

func scanCount(row pgx.Row) (*core.InventoryCount, error) {
	var c core.InventoryCount
	err := row.Scan(&c.ID, &c.Code, &c.LocationID, &c.CountType, &c.Status, &c.TotalItems, &c.ItemsCounted,
		&c.Discrepancies, &c.Notes, &c.StartedBy, &c.CompletedBy, &c.CancelReason, &c.StartedAt, &c.CompletedAt,
		&c.CancelledAt, &c.UpdatedAt)
	return &c, err
}

func loadCountItems(ctx context.Context, q querier, cs []*core.InventoryCount) error {
	if len(cs) == 0 {
		return nil
	}
	byID := make(map[string]*core.InventoryCount, len(cs))
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		c.Items = make([]core.InventoryCountItem, 0)
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, count_id, product_id, system_qty, counted_qty, difference, notes, counted_by, counted_at
		FROM inventory_count_items
		WHERE count_id = ANY($1)
		ORDER BY count_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("failed to load count items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it core.InventoryCountItem
		if err := rows.Scan(&it.ID, &it.CountID, &it.ProductID, &it.SystemQty, &it.CountedQty, &it.Difference,
			&it.Notes, &it.CountedBy, &it.CountedAt); err != nil {
			return fmt.Errorf("failed to scan count item: %w", err)
		}
		c := byID[it.CountID]
		c.Items = append(c.Items, it)
	}
	return rows.Err()
}

func getCount(ctx context.Context, q querier, column, value string, lock bool) (*core.InventoryCount, error) {
	sql := "SELECT " + countColumns + " FROM inventory_counts WHERE " + column + " = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	c, err := scanCount(q.QueryRow(ctx, sql, value))
	if err != nil {
		return nil, rowErr(err, "inventory count", value)
	}
	if err := loadCountItems(ctx, q, []*core.InventoryCount{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) GetCount(ctx context.Context, id string) (*core.InventoryCount, error) {
	return getCount(ctx, s.pool, "id", id, false)
}

func (s *Store) GetCountByCode(ctx context.Context, code string) (*core.InventoryCount, error) {
	return getCount(ctx, s.pool, "code", code, false)
}

func (s *Store) ListCounts(ctx context.Context, f core.CountFilter) ([]core.InventoryCount, error) {
	var c conds
	c.addIf("location_id = ?", f.LocationID)
	c.addIf("status = ?", string(f.Status))

	rows, err := s.pool.Query(ctx,
		"SELECT "+countColumns+" FROM inventory_counts"+c.where()+" ORDER BY started_at DESC", c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list counts: %w", err)
	}
	var ptrs []*core.InventoryCount
	for rows.Next() {
		cnt, err := scanCount(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		ptrs = append(ptrs, cnt)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := loadCountItems(ctx, s.pool, ptrs); err != nil {
		return nil, err
	}

	out := make([]core.InventoryCount, 0, len(ptrs))
	for _, cnt := range ptrs {
		out = append(out, *cnt)
	}
	return out, nil
}

func (t *pgTx) LockCount(ctx context.Context, id string) (*core.InventoryCount, error) {
	return getCount(ctx, t.tx, "id", id, true)
}

func (t *pgTx) LockCountByItem(ctx context.Context, itemID string) (*core.InventoryCount, error) {
	var countID string
	err := t.tx.QueryRow(ctx, "SELECT count_id FROM inventory_count_items WHERE id = $1", itemID).Scan(&countID)
	if err != nil {
		return nil, rowErr(err, "count item", itemID)
	}
	return t.LockCount(ctx, countID)
}

func (t *pgTx) OpenCount(ctx context.Context, locationID string) (*core.InventoryCount, error) {
	var id string
	err := t.tx.QueryRow(ctx,
		"SELECT id FROM inventory_counts WHERE location_id = $1 AND status = $2",
		locationID, string(core.CountInProgress)).Scan(&id)
	if err != nil {
		return nil, rowErr(err, "open count at", locationID)
	}
	return getCount(ctx, t.tx, "id", id, false)
}

func (t *pgTx) SaveCount(ctx context.Context, c *core.InventoryCount) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO inventory_counts (`+countColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_items = EXCLUDED.total_items,
			items_counted = EXCLUDED.items_counted,
			discrepancies = EXCLUDED.discrepancies,
			notes = EXCLUDED.notes,
			completed_by = EXCLUDED.completed_by,
			cancel_reason = EXCLUDED.cancel_reason,
			completed_at = EXCLUDED.completed_at,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = EXCLUDED.updated_at`,
		c.ID, c.Code, c.LocationID, string(c.CountType), string(c.Status), c.TotalItems, c.ItemsCounted,
		c.Discrepancies, c.Notes, c.StartedBy, c.CompletedBy, c.CancelReason, c.StartedAt, c.CompletedAt,
		c.CancelledAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save inventory count %s: %w", c.Code, mapErr(err))
	}

	b := &pgx.Batch{}
	for i, it := range c.Items {
		b.Queue(`
			INSERT INTO inventory_count_items (id, count_id, line_no, product_id, system_qty, counted_qty,
				difference, notes, counted_by, counted_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				counted_qty = EXCLUDED.counted_qty,
				difference = EXCLUDED.difference,
				notes = EXCLUDED.notes,
				counted_by = EXCLUDED.counted_by,
				counted_at = EXCLUDED.counted_at`,
			it.ID, c.ID, i+1, it.ProductID, it.SystemQty, it.CountedQty,
			it.Difference, it.Notes, it.CountedBy, it.CountedAt)
	}
	return t.sendBatch(ctx, b, "items of "+c.Code)
}
