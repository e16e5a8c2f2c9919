package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fieldstock/internal/core"
)

const locationColumns = `id, code, name, type, contract_id, manager_id, is_active, created_at, deleted_at`

func scanLocation(row pgx.Row) (*core.Location, error) {
	var l core.Location
	err := row.Scan(&l.ID, &l.Code, &l.Name, &l.Type, &l.ContractID, &l.ManagerID, &l.IsActive, &l.CreatedAt, &l.DeletedAt)
	return &l, err
}

func getLocation(ctx context.Context, q querier, column, value string, lock bool) (*core.Location, error) {
	sql := "SELECT " + locationColumns + " FROM stock_locations WHERE " + column + " = $1"
	if lock {
		sql += " FOR UPDATE"
	}
	l, err := scanLocation(q.QueryRow(ctx, sql, value))
	if err != nil {
		return nil, rowErr(err, "location", value)
	}
	return l, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (*core.Location, error) {
	return getLocation(ctx, s.pool, "id", id, false)
}

func (s *Store) GetLocationByCode(ctx context.Context, code string) (*core.Location, error) {
	return getLocation(ctx, s.pool, "code", code, false)
}

func (s *Store) ListLocations(ctx context.Context, includeInactive bool) ([]core.Location, error) {
	sql := "SELECT " + locationColumns + " FROM stock_locations"
	if !includeInactive {
		sql += " WHERE is_active"
	}
	rows, err := s.pool.Query(ctx, sql+" ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	out := make([]core.Location, 0)
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

func (t *pgTx) LockLocation(ctx context.Context, id string) (*core.Location, error) {
	return getLocation(ctx, t.tx, "id", id, true)
}

func (t *pgTx) SaveLocation(ctx context.Context, l *core.Location) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO stock_locations (id, code, name, type, contract_id, manager_id, is_active, created_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			contract_id = EXCLUDED.contract_id,
			manager_id = EXCLUDED.manager_id,
			is_active = EXCLUDED.is_active,
			deleted_at = EXCLUDED.deleted_at`,
		l.ID, l.Code, l.Name, string(l.Type), l.ContractID, l.ManagerID, l.IsActive, l.CreatedAt, l.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to save location %s: %w", l.Code, mapErr(err))
	}
	return nil
}

const productColumns = `id, code, name, unit, category, is_active, created_at`

func scanProduct(row pgx.Row) (*core.Product, error) {
	var p core.Product
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Unit, &p.Category, &p.IsActive, &p.CreatedAt)
	return &p, err
}

func (s *Store) getProduct(ctx context.Context, column, value string) (*core.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT "+productColumns+" FROM products WHERE "+column+" = $1", value))
	if err != nil {
		return nil, rowErr(err, "product", value)
	}
	return p, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (*core.Product, error) {
	return s.getProduct(ctx, "id", id)
}

func (s *Store) GetProductByCode(ctx context.Context, code string) (*core.Product, error) {
	return s.getProduct(ctx, "code", code)
}

func (s *Store) ListProducts(ctx context.Context) ([]core.Product, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+productColumns+" FROM products ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	out := make([]core.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (t *pgTx) SaveProduct(ctx context.Context, p *core.Product) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO products (id, code, name, unit, category, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			name = EXCLUDED.name,
			unit = EXCLUDED.unit,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active`,
		p.ID, p.Code, p.Name, p.Unit, p.Category, p.IsActive, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save product %s: %w", p.Code, mapErr(err))
	}
	return nil
}
