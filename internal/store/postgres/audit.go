package postgres

import (
	"context"
	"fmt"

	"fieldstock/internal/core"
)

func (t *pgTx) AppendAudit(ctx context.Context, e *core.AuditEntry) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, action, actor_id, before, after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.EntityType, e.EntityID, e.Action, e.ActorID, nullJSON(e.Before), nullJSON(e.After), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) ListAudit(ctx context.Context, entityType, entityID string) ([]core.AuditEntry, error) {
	var c conds
	c.addIf("entity_type = ?", entityType)
	c.addIf("entity_id = ?", entityID)
	rows, err := s.pool.Query(ctx, `
		SELECT id, entity_type, entity_id, action, actor_id, before, after, created_at
		FROM audit_log`+c.where()+" ORDER BY seq", c.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]core.AuditEntry, 0)
	for rows.Next() {
		var (
			e             core.AuditEntry
			before, after []byte
		)
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.Action, &e.ActorID, &before, &after, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Before, e.After = before, after
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullJSON sends an empty document as SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
