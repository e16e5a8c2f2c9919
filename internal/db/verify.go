package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// LedgerViolation is a balance row that disagrees with the ledger rules or
// with its own movement journal.
type LedgerViolation struct {
	LocationID string
	ProductID  string
	Quantity   decimal.Decimal
	Reserved   decimal.Decimal
	Journal    decimal.Decimal
	Problem    string
}

// VerifyLedger checks that 0 <= reserved <= quantity holds on every balance and
// that each balance quantity equals the sum of its quantity-changing movements.
// Opening balances loaded without movements show up as journal mismatches.
func VerifyLedger(ctx context.Context, pool *pgxpool.Pool) ([]LedgerViolation, error) {
	rows, err := pool.Query(ctx, `
		SELECT b.location_id, b.product_id, b.quantity, b.reserved,
			COALESCE(SUM(m.quantity) FILTER (WHERE m.kind IN ('COMMIT_OUT', 'COMMIT_IN', 'ADJUST')), 0) AS journal
		FROM stock_balances b
		LEFT JOIN stock_movements m ON m.location_id = b.location_id AND m.product_id = b.product_id
		GROUP BY b.location_id, b.product_id, b.quantity, b.reserved
		ORDER BY b.location_id, b.product_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []LedgerViolation
	for rows.Next() {
		var v LedgerViolation
		if err := rows.Scan(&v.LocationID, &v.ProductID, &v.Quantity, &v.Reserved, &v.Journal); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		switch {
		case v.Reserved.IsNegative():
			v.Problem = "negative reserved quantity"
		case v.Reserved.GreaterThan(v.Quantity):
			v.Problem = "reserved exceeds quantity"
		case !v.Journal.Equal(v.Quantity):
			v.Problem = "quantity differs from movement journal"
		default:
			continue
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
