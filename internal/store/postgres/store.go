// Package postgres is a core.Store backed by PostgreSQL through pgx.
//
// Balance rows are locked with SELECT ... FOR UPDATE one key at a time in
// core.SortedKeys order, and workflow documents are locked through their
// header row, so the lock semantics match the in-memory store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldstock/internal/core"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements core.Store on a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a database transaction and commits when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapErr(err))
	}
	return nil
}

// pgTx implements core.Tx.
type pgTx struct {
	tx pgx.Tx
}

var _ core.Tx = (*pgTx)(nil)

// mapErr translates constraint violations into core sentinels, keeping the
// driver error in the chain.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s: %w", core.ErrConflict, pgErr.ConstraintName, err)
	case "23514":
		return fmt.Errorf("%w: %s: %w", core.ErrInvalidState, pgErr.ConstraintName, err)
	case "23503":
		return fmt.Errorf("%w: %s: %w", core.ErrNotFound, pgErr.ConstraintName, err)
	case "40P01", "40001":
		return fmt.Errorf("%w: %w", core.ErrConflict, err)
	}
	return err
}

func notFound(kind, ref string) error {
	return fmt.Errorf("%s %s: %w", kind, ref, core.ErrNotFound)
}

// rowErr maps pgx.ErrNoRows to a not-found error for kind/ref.
func rowErr(err error, kind, ref string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return notFound(kind, ref)
	}
	return fmt.Errorf("failed to load %s %s: %w", kind, ref, err)
}

// conds accumulates WHERE clauses. Every "?" in one clause refers to the same
// argument.
type conds struct {
	parts []string
	args  []any
}

func (c *conds) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(c.args))))
}

// addIf adds clause when value is non-empty.
func (c *conds) addIf(clause, value string) {
	if value != "" {
		c.add(clause, value)
	}
}

func (c *conds) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

// next returns the placeholder for an argument appended after the conditions.
func (c *conds) next(arg any) string {
	c.args = append(c.args, arg)
	return fmt.Sprintf("$%d", len(c.args))
}

// likePattern builds a case-insensitive substring pattern for ILIKE.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.TrimSpace(s)) + "%"
}
