package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
)

const transferColumns = `id, code, source_location_id, destination_location_id, requester_id, approver_id,
	shipper_id, receiver_id, status, vehicle_plate, driver_name, receiver_signature, notes, rejection_reason,
	cancel_reason, total_items, total_value, requested_at, submitted_at, approved_at, shipped_at, received_at,
	cancelled_at, updated_at`

func scanTransfer(row pgx.Row) (*core.StockTransfer, error) {
	var t core.StockTransfer
	err := row.Scan(&t.ID, &t.Code, &t.SourceLocationID, &t.DestinationLocationID, &t.RequesterID, &t.ApproverID,
		&t.ShipperID, &t.ReceiverID, &t.Status, &t.VehiclePlate, &t.DriverName, &t.ReceiverSignature, &t.Notes,
		&t.RejectionReason, &t.CancelReason, &t.TotalItems, &t.TotalValue, &t.RequestedAt, &t.SubmittedAt,
		&t.ApprovedAt, &t.ShippedAt, &t.ReceivedAt, &t.CancelledAt, &t.UpdatedAt)
	return &t, err
}

func loadTransferItems(ctx context.Context, q querier, ts []*core.StockTransfer) error {
	if len(ts) == 0 {
		return nil
	}
	byID := make(map[string]*core.StockTransfer, len(ts))
	ids := make([]string, 0, len(ts))
	for _, t := range ts {
		t.Items = make([]core.StockTransferItem, 0)
		byID[t.ID] = t
		ids = append(ids, t.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, transfer_id, product_id, lot_id, quantity, unit_price, shipped_quantity, received_quantity,
			discrepancy_expected, discrepancy_received, discrepancy_reason
		FROM stock_transfer_items
		WHERE transfer_id = ANY($1)
		ORDER BY transfer_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("failed to load transfer items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it                 core.StockTransferItem
			expected, received *decimal.Decimal
			reason             *string
		)
		if err := rows.Scan(&it.ID, &it.TransferID, &it.ProductID, &it.LotID, &it.Quantity, &it.UnitPrice,
			&it.ShippedQuantity, &it.ReceivedQuantity, &expected, &received, &reason); err != nil {
			return fmt.Errorf("failed to scan transfer item: %w", err)
		}
		if expected != nil && received != nil {
			it.Discrepancy = &core.TransferDiscrepancy{Expected: *expected, Received: *received}
			if reason != nil {
				it.Discrepancy.Reason = *reason
			}
		}
		t := byID[it.TransferID]
		t.Items = append(t.Items, it)
	}
	return rows.Err()
}

func getTransfer(ctx context.Context, q querier, column, value string, lock bool) (*core.StockTransfer, error) {
	sql := "SELECT " + transferColumns + " FROM stock_transfers WHERE " + column + " = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	t, err := scanTransfer(q.QueryRow(ctx, sql, value))
	if err != nil {
		return nil, rowErr(err, "stock transfer", value)
	}
	if err := loadTransferItems(ctx, q, []*core.StockTransfer{t}); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Store) GetTransfer(ctx context.Context, id string) (*core.StockTransfer, error) {
	return getTransfer(ctx, s.pool, "id", id, false)
}

func (s *Store) GetTransferByCode(ctx context.Context, code string) (*core.StockTransfer, error) {
	return getTransfer(ctx, s.pool, "code", code, false)
}

func (s *Store) ListTransfers(ctx context.Context, f core.TransferFilter) ([]core.StockTransfer, int, error) {
	var c conds
	c.addIf("status = ?", string(f.Status))
	c.addIf("source_location_id = ?", f.SourceLocationID)
	c.addIf("destination_location_id = ?", f.DestinationLocationID)
	if f.Search != "" {
		c.add(`(code ILIKE ? OR notes ILIKE ?)`, likePattern(f.Search))
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM stock_transfers"+c.where(), c.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count transfers: %w", err)
	}

	p := f.Page.Normalize()
	sql := "SELECT " + transferColumns + " FROM stock_transfers" + c.where() +
		" ORDER BY requested_at DESC, code DESC LIMIT " + c.next(p.PageSize) + " OFFSET " + c.next(p.Offset())
	rows, err := s.pool.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transfers: %w", err)
	}
	var ptrs []*core.StockTransfer
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan transfer: %w", err)
		}
		ptrs = append(ptrs, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := loadTransferItems(ctx, s.pool, ptrs); err != nil {
		return nil, 0, err
	}

	out := make([]core.StockTransfer, 0, len(ptrs))
	for _, t := range ptrs {
		out = append(out, *t)
	}
	return out, total, nil
}

func (t *pgTx) LockTransfer(ctx context.Context, id string) (*core.StockTransfer, error) {
	return getTransfer(ctx, t.tx, "id", id, true)
}

func (t *pgTx) SaveTransfer(ctx context.Context, tr *core.StockTransfer) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_transfers (`+transferColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			approver_id = EXCLUDED.approver_id,
			shipper_id = EXCLUDED.shipper_id,
			receiver_id = EXCLUDED.receiver_id,
			status = EXCLUDED.status,
			vehicle_plate = EXCLUDED.vehicle_plate,
			driver_name = EXCLUDED.driver_name,
			receiver_signature = EXCLUDED.receiver_signature,
			notes = EXCLUDED.notes,
			rejection_reason = EXCLUDED.rejection_reason,
			cancel_reason = EXCLUDED.cancel_reason,
			total_items = EXCLUDED.total_items,
			total_value = EXCLUDED.total_value,
			submitted_at = EXCLUDED.submitted_at,
			approved_at = EXCLUDED.approved_at,
			shipped_at = EXCLUDED.shipped_at,
			received_at = EXCLUDED.received_at,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = EXCLUDED.updated_at`,
		tr.ID, tr.Code, tr.SourceLocationID, tr.DestinationLocationID, tr.RequesterID, tr.ApproverID,
		tr.ShipperID, tr.ReceiverID, string(tr.Status), tr.VehiclePlate, tr.DriverName, tr.ReceiverSignature,
		tr.Notes, tr.RejectionReason, tr.CancelReason, tr.TotalItems, tr.TotalValue, tr.RequestedAt,
		tr.SubmittedAt, tr.ApprovedAt, tr.ShippedAt, tr.ReceivedAt, tr.CancelledAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save stock transfer %s: %w", tr.Code, mapErr(err))
	}

	if _, err := t.tx.Exec(ctx, "DELETE FROM stock_transfer_items WHERE transfer_id = $1", tr.ID); err != nil {
		return fmt.Errorf("failed to clear items of %s: %w", tr.Code, err)
	}
	b := &pgx.Batch{}
	for i, it := range tr.Items {
		var (
			expected, received *decimal.Decimal
			reason             *string
		)
		if it.Discrepancy != nil {
			expected, received, reason = &it.Discrepancy.Expected, &it.Discrepancy.Received, &it.Discrepancy.Reason
		}
		b.Queue(`
			INSERT INTO stock_transfer_items (id, transfer_id, line_no, product_id, lot_id, quantity, unit_price,
				shipped_quantity, received_quantity, discrepancy_expected, discrepancy_received, discrepancy_reason)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			it.ID, tr.ID, i+1, it.ProductID, it.LotID, it.Quantity, it.UnitPrice,
			it.ShippedQuantity, it.ReceivedQuantity, expected, received, reason)
	}
	return t.sendBatch(ctx, b, "items of "+tr.Code)
}
