package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core"
)

const requestColumns = `id, code, contract_id, work_front_id, activity_id, source_location_id,
	destination_location_id, requester_id, approver_id, separator_id, deliverer_id, receiver_name,
	status, priority, needed_date, notes, rejection_reason, cancel_reason, requested_at, submitted_at,
	approved_at, separated_at, delivered_at, cancelled_at, updated_at`

func scanRequest(row pgx.Row) (*core.MaterialRequest, error) {
	var r core.MaterialRequest
	err := row.Scan(&r.ID, &r.Code, &r.ContractID, &r.WorkFrontID, &r.ActivityID, &r.SourceLocationID,
		&r.DestinationLocationID, &r.RequesterID, &r.ApproverID, &r.SeparatorID, &r.DelivererID, &r.ReceiverName,
		&r.Status, &r.Priority, &r.NeededDate, &r.Notes, &r.RejectionReason, &r.CancelReason, &r.RequestedAt,
		&r.SubmittedAt, &r.ApprovedAt, &r.SeparatedAt, &r.DeliveredAt, &r.CancelledAt, &r.UpdatedAt)
	return &r, err
}

// loadRequestItems fills Items for every request in rs with one query.
func loadRequestItems(ctx context.Context, q querier, rs []*core.MaterialRequest) error {
	if len(rs) == 0 {
		return nil
	}
	byID := make(map[string]*core.MaterialRequest, len(rs))
	ids := make([]string, 0, len(rs))
	for _, r := range rs {
		r.Items = make([]core.MaterialRequestItem, 0)
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	rows, err := q.Query(ctx, `
		SELECT id, request_id, product_id, requested_quantity, approved_quantity,
			separated_quantity, delivered_quantity, notes
		FROM material_request_items
		WHERE request_id = ANY($1)
		ORDER BY request_id, line_no`, ids)
	if err != nil {
		return fmt.Errorf("failed to load request items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it core.MaterialRequestItem
		if err := rows.Scan(&it.ID, &it.RequestID, &it.ProductID, &it.RequestedQuantity, &it.ApprovedQuantity,
			&it.SeparatedQuantity, &it.DeliveredQuantity, &it.Notes); err != nil {
			return fmt.Errorf("failed to scan request item: %w", err)
		}
		r := byID[it.RequestID]
		r.Items = append(r.Items, it)
	}
	return rows.Err()
}

func getRequest(ctx context.Context, q querier, column, value string, lock bool) (*core.MaterialRequest, error) {
	sql := "SELECT " + requestColumns + " FROM material_requests WHERE " + column + " = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	r, err := scanRequest(q.QueryRow(ctx, sql, value))
	if err != nil {
		return nil, rowErr(err, "material request", value)
	}
	if err := loadRequestItems(ctx, q, []*core.MaterialRequest{r}); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) GetMaterialRequest(ctx context.Context, id string) (*core.MaterialRequest, error) {
	return getRequest(ctx, s.pool, "id", id, false)
}

func (s *Store) GetMaterialRequestByCode(ctx context.Context, code string) (*core.MaterialRequest, error) {
	return getRequest(ctx, s.pool, "code", code, false)
}

func (s *Store) ListMaterialRequests(ctx context.Context, f core.RequestFilter) ([]core.MaterialRequest, int, error) {
	var c conds
	c.addIf("status = ?", string(f.Status))
	c.addIf("priority = ?", string(f.Priority))
	c.addIf("contract_id = ?", f.ContractID)
	c.addIf("work_front_id = ?", f.WorkFrontID)
	c.addIf("requester_id = ?", f.RequesterID)
	c.addIf("source_location_id = ?", f.SourceLocationID)
	if f.Search != "" {
		c.add(`(code ILIKE ? OR notes ILIKE ?)`, likePattern(f.Search))
	}

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM material_requests"+c.where(), c.args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count material requests: %w", err)
	}

	p := f.Page.Normalize()
	sql := "SELECT " + requestColumns + " FROM material_requests" + c.where() +
		" ORDER BY requested_at DESC, code DESC LIMIT " + c.next(p.PageSize) + " OFFSET " + c.next(p.Offset())
	rows, err := s.pool.Query(ctx, sql, c.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list material requests: %w", err)
	}
	var ptrs []*core.MaterialRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan material request: %w", err)
		}
		ptrs = append(ptrs, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if err := loadRequestItems(ctx, s.pool, ptrs); err != nil {
		return nil, 0, err
	}

	out := make([]core.MaterialRequest, 0, len(ptrs))
	for _, r := range ptrs {
		out = append(out, *r)
	}
	return out, total, nil
}

func (t *pgTx) LockMaterialRequest(ctx context.Context, id string) (*core.MaterialRequest, error) {
	return getRequest(ctx, t.tx, "id", id, true)
}

// SaveMaterialRequest upserts the header and rewrites the item lines.
func (t *pgTx) SaveMaterialRequest(ctx context.Context, r *core.MaterialRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO material_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25)
		ON CONFLICT (id) DO UPDATE SET
			work_front_id = EXCLUDED.work_front_id,
			activity_id = EXCLUDED.activity_id,
			destination_location_id = EXCLUDED.destination_location_id,
			approver_id = EXCLUDED.approver_id,
			separator_id = EXCLUDED.separator_id,
			deliverer_id = EXCLUDED.deliverer_id,
			receiver_name = EXCLUDED.receiver_name,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			needed_date = EXCLUDED.needed_date,
			notes = EXCLUDED.notes,
			rejection_reason = EXCLUDED.rejection_reason,
			cancel_reason = EXCLUDED.cancel_reason,
			submitted_at = EXCLUDED.submitted_at,
			approved_at = EXCLUDED.approved_at,
			separated_at = EXCLUDED.separated_at,
			delivered_at = EXCLUDED.delivered_at,
			cancelled_at = EXCLUDED.cancelled_at,
			updated_at = EXCLUDED.updated_at`,
		r.ID, r.Code, r.ContractID, r.WorkFrontID, r.ActivityID, r.SourceLocationID,
		r.DestinationLocationID, r.RequesterID, r.ApproverID, r.SeparatorID, r.DelivererID, r.ReceiverName,
		string(r.Status), string(r.Priority), r.NeededDate, r.Notes, r.RejectionReason, r.CancelReason, r.RequestedAt,
		r.SubmittedAt, r.ApprovedAt, r.SeparatedAt, r.DeliveredAt, r.CancelledAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save material request %s: %w", r.Code, mapErr(err))
	}

	if _, err := t.tx.Exec(ctx, "DELETE FROM material_request_items WHERE request_id = $1", r.ID); err != nil {
		return fmt.Errorf("failed to clear items of %s: %w", r.Code, err)
	}
	b := &pgx.Batch{}
	for i, it := range r.Items {
		b.Queue(`
			INSERT INTO material_request_items (id, request_id, line_no, product_id, requested_quantity,
				approved_quantity, separated_quantity, delivered_quantity, notes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			it.ID, r.ID, i+1, it.ProductID, it.RequestedQuantity,
			it.ApprovedQuantity, it.SeparatedQuantity, it.DeliveredQuantity, it.Notes)
	}
	return t.sendBatch(ctx, b, "items of "+r.Code)
}

// sendBatch executes every queued statement and reports the first failure.
func (t *pgTx) sendBatch(ctx context.Context, b *pgx.Batch, what string) error {
	if b.Len() == 0 {
		return nil
	}
	br := t.tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to save %s: %w", what, mapErr(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to save %s: %w", what, mapErr(err))
	}
	return nil
}
