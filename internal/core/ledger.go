package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger is the only writer of StockBalance quantities.
//
// Standalone methods (Reserve, Release, ...) run in their own transaction.
// Workflows call ApplyTx with their own transaction so that document status
// changes and stock effects commit together or not at all.
type Ledger struct {
	store Store
	opts  Options
}

// NewLedger constructs a Ledger over store.
func NewLedger(store Store, opts Options) *Ledger {
	return &Ledger{store: store, opts: opts.withDefaults()}
}

// Reserve moves qty from available to reserved.
func (l *Ledger) Reserve(ctx context.Context, key BalanceKey, qty decimal.Decimal, ref Reference) (*StockBalance, error) {
	return l.applyOne(ctx, Movement{Key: key, Kind: MovementReserve, Quantity: qty, Ref: ref})
}

// Release returns qty of reserved stock to available.
func (l *Ledger) Release(ctx context.Context, key BalanceKey, qty decimal.Decimal, ref Reference) (*StockBalance, error) {
	return l.applyOne(ctx, Movement{Key: key, Kind: MovementRelease, Quantity: qty, Ref: ref})
}

// CommitOut removes qty of previously reserved stock from the location.
func (l *Ledger) CommitOut(ctx context.Context, key BalanceKey, qty decimal.Decimal, ref Reference) (*StockBalance, error) {
	return l.applyOne(ctx, Movement{Key: key, Kind: MovementCommitOut, Quantity: qty, Ref: ref})
}

// CommitIn adds qty of arriving stock to the location.
func (l *Ledger) CommitIn(ctx context.Context, key BalanceKey, qty decimal.Decimal, ref Reference) (*StockBalance, error) {
	return l.applyOne(ctx, Movement{Key: key, Kind: MovementCommitIn, Quantity: qty, Ref: ref})
}

// Adjust corrects the physical quantity by delta without touching reservations.
func (l *Ledger) Adjust(ctx context.Context, key BalanceKey, delta decimal.Decimal, ref Reference) (*StockBalance, error) {
	return l.applyOne(ctx, Movement{Key: key, Kind: MovementAdjust, Quantity: delta, Ref: ref})
}

func (l *Ledger) applyOne(ctx context.Context, m Movement) (*StockBalance, error) {
	var out *StockBalance
	err := l.store.InTx(ctx, func(tx Tx) error {
		balances, err := l.ApplyTx(ctx, tx, []Movement{m})
		if err != nil {
			return err
		}
		out = balances[m.Key]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTx applies movements in order inside the caller's transaction.
//
// All keys are locked up front in sorted order, so two multi-item calls over
// overlapping keys cannot deadlock. On the first failing movement ApplyTx
// returns its error; the caller must roll back. The resulting balances of all
// touched keys are returned.
func (l *Ledger) ApplyTx(ctx context.Context, tx Tx, movements []Movement) (map[BalanceKey]*StockBalance, error) {
	if len(movements) == 0 {
		return map[BalanceKey]*StockBalance{}, nil
	}

	keys := make([]BalanceKey, 0, len(movements))
	for _, m := range movements {
		if m.Key.LocationID == "" || m.Key.ProductID == "" {
			return nil, fmt.Errorf("%w: movement %s requires location and product", ErrValidation, m.Kind)
		}
		keys = append(keys, m.Key)
	}

	balances, err := tx.LockBalances(ctx, SortedKeys(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to lock balances: %w", err)
	}

	now := l.opts.Now()
	touched := make(map[BalanceKey]bool, len(keys))
	var journal []*StockMovement

	for _, m := range movements {
		b, ok := balances[m.Key]
		if !ok {
			return nil, fmt.Errorf("failed to lock balance %s: store returned no row", m.Key)
		}
		if err := apply(b, m); err != nil {
			l.opts.Metrics.RecordLedgerOperation(m.Kind, ErrorKind(err))
			l.opts.Logger.Warn("ledger operation rejected",
				"kind", m.Kind, "key", m.Key.String(), "qty", m.Quantity.String(),
				"quantity", b.Quantity.String(), "reserved", b.Reserved.String(), "error", err)
			return nil, err
		}
		if m.Kind == MovementAdjust && m.Quantity.IsZero() {
			continue
		}
		b.UpdatedAt = now
		touched[m.Key] = true

		signed := m.Quantity
		if m.Kind == MovementRelease || m.Kind == MovementCommitOut {
			signed = signed.Neg()
		}
		journal = append(journal, &StockMovement{
			ID:            uuid.NewString(),
			LocationID:    m.Key.LocationID,
			ProductID:     m.Key.ProductID,
			Kind:          m.Kind,
			Quantity:      signed,
			QuantityAfter: b.Quantity,
			ReservedAfter: b.Reserved,
			RefType:       m.Ref.Type,
			RefID:         m.Ref.ID,
			Note:          m.Ref.Note,
			CreatedAt:     now,
		})
	}

	for _, k := range SortedKeys(keys) {
		if !touched[k] {
			continue
		}
		if err := tx.SaveBalance(ctx, balances[k]); err != nil {
			return nil, fmt.Errorf("failed to save balance %s: %w", k, err)
		}
	}
	for _, sm := range journal {
		if err := tx.InsertMovement(ctx, sm); err != nil {
			return nil, fmt.Errorf("failed to insert stock movement: %w", err)
		}
		l.opts.Metrics.RecordLedgerOperation(sm.Kind, "OK")
	}
	return balances, nil
}

// apply mutates b according to m, or returns an error and leaves b unchanged.
func apply(b *StockBalance, m Movement) error {
	qty := m.Quantity
	if m.Kind != MovementAdjust && !qty.IsPositive() {
		return fmt.Errorf("%w: %s quantity must be positive, got %s", ErrInvalidQuantity, m.Kind, qty)
	}

	switch m.Kind {
	case MovementReserve:
		available := b.Available()
		if available.LessThan(qty) {
			return fmt.Errorf("%w for product %s at location %s: available %s, required %s",
				ErrInsufficientStock, b.ProductID, b.LocationID, available.String(), qty.String())
		}
		b.Reserved = b.Reserved.Add(qty)

	case MovementRelease:
		if b.Reserved.LessThan(qty) {
			return fmt.Errorf("%w: cannot release %s of product %s at location %s: only %s reserved",
				ErrInvalidState, qty.String(), b.ProductID, b.LocationID, b.Reserved.String())
		}
		b.Reserved = b.Reserved.Sub(qty)

	case MovementCommitOut:
		if b.Reserved.LessThan(qty) {
			return fmt.Errorf("%w: cannot commit out %s of product %s at location %s: only %s reserved",
				ErrInvalidState, qty.String(), b.ProductID, b.LocationID, b.Reserved.String())
		}
		b.Quantity = b.Quantity.Sub(qty)
		b.Reserved = b.Reserved.Sub(qty)

	case MovementCommitIn:
		b.Quantity = b.Quantity.Add(qty)

	case MovementAdjust:
		next := b.Quantity.Add(qty)
		if next.IsNegative() {
			return fmt.Errorf("%w: adjusting product %s at location %s by %s would leave %s",
				ErrInvalidAdjustment, b.ProductID, b.LocationID, qty.String(), next.String())
		}
		if next.LessThan(b.Reserved) {
			return fmt.Errorf("%w: adjusting product %s at location %s by %s would leave %s below reserved %s",
				ErrInvalidAdjustment, b.ProductID, b.LocationID, qty.String(), next.String(), b.Reserved.String())
		}
		b.Quantity = next

	default:
		return fmt.Errorf("%w: unknown movement kind %q", ErrValidation, m.Kind)
	}
	return b.CheckInvariant()
}

// SetLimits stores the alert thresholds of a balance. Quantities are untouched.
func (l *Ledger) SetLimits(ctx context.Context, key BalanceKey, minStock decimal.Decimal, maxStock *decimal.Decimal) (*StockBalance, error) {
	if minStock.IsNegative() {
		return nil, fmt.Errorf("%w: min stock cannot be negative, got %s", ErrInvalidQuantity, minStock)
	}
	if maxStock != nil && maxStock.LessThan(minStock) {
		return nil, fmt.Errorf("%w: max stock %s is below min stock %s", ErrInvalidQuantity, maxStock, minStock)
	}

	var out *StockBalance
	err := l.store.InTx(ctx, func(tx Tx) error {
		balances, err := tx.LockBalances(ctx, []BalanceKey{key})
		if err != nil {
			return fmt.Errorf("failed to lock balance %s: %w", key, err)
		}
		b := balances[key]
		b.MinStock = minStock
		b.MaxStock = maxStock
		b.UpdatedAt = l.opts.Now()
		if err := tx.SaveBalance(ctx, b); err != nil {
			return fmt.Errorf("failed to save balance %s: %w", key, err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Balance returns the balance of key, or a zero balance if none exists yet.
func (l *Ledger) Balance(ctx context.Context, key BalanceKey) (*StockBalance, error) {
	b, err := l.store.GetBalance(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return NewBalance(key), nil
	}
	return b, err
}

// Balances lists balances matching filter.
func (l *Ledger) Balances(ctx context.Context, filter BalanceFilter) ([]StockBalance, error) {
	return l.store.ListBalances(ctx, filter)
}

// Movements lists journal rows matching filter, newest first.
func (l *Ledger) Movements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	return l.store.ListMovements(ctx, filter)
}
