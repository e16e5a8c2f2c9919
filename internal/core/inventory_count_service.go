package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryCountService reconciles system quantities with physical counts.
//
// Differences are taken against the quantities snapshotted at Start, and
// Complete applies them as relative adjustments. Stock that moves in or out of
// the location while the count is open is therefore corrected a second time:
// a 10 unit receipt during a count that found the shelf unchanged ends 10 units
// high. Operators are expected to hold receipts, dispatches and deliveries at a
// location while it is being counted.
type InventoryCountService interface {
	// Start snapshots the quantity of every product at the location and opens
	// an IN_PROGRESS count. A location has at most one open count.
	Start(ctx context.Context, in StartCountInput) (*InventoryCount, error)
	// RegisterItem records a counted quantity. Registering an item again
	// replaces the previous value.
	RegisterItem(ctx context.Context, itemID, actorID string, countedQty decimal.Decimal, notes string) (*InventoryCount, error)
	// Complete closes the count and adjusts every registered, divergent item by
	// its difference from the start snapshot, not to its counted quantity.
	Complete(ctx context.Context, countID, actorID string) (*InventoryCount, error)
	// Cancel closes the count without touching stock.
	Cancel(ctx context.Context, countID, actorID, reason string) (*InventoryCount, error)

	Get(ctx context.Context, countID string) (*InventoryCount, error)
	GetByCode(ctx context.Context, code string) (*InventoryCount, error)
	List(ctx context.Context, filter CountFilter) ([]InventoryCount, error)
	Items(ctx context.Context, countID string, filter CountItemFilter) ([]CountItemView, error)
	Progress(ctx context.Context, countID string) (*CountProgress, error)
}

type inventoryCountService struct {
	workflow
}

// NewInventoryCountService constructs an InventoryCountService.
func NewInventoryCountService(store Store, ledger *Ledger, opts Options) InventoryCountService {
	return &inventoryCountService{workflow: newWorkflow(store, ledger, opts)}
}

func (s *inventoryCountService) Start(ctx context.Context, in StartCountInput) (*InventoryCount, error) {
	if err := requireActor(in.StartedBy); err != nil {
		return nil, err
	}
	if in.CountType == "" {
		in.CountType = CountFull
	}
	if !in.CountType.Valid() {
		return nil, fmt.Errorf("%w: unknown count type %q", ErrValidation, in.CountType)
	}
	if in.CountType == CountSpot && len(in.ProductIDs) == 0 {
		return nil, fmt.Errorf("%w: a spot count needs at least one product", ErrValidation)
	}
	loc, err := s.activeLocation(ctx, in.LocationID, "count")
	if err != nil {
		return nil, err
	}

	now := s.opts.Now()
	c := &InventoryCount{
		ID:         uuid.NewString(),
		LocationID: loc.ID,
		CountType:  in.CountType,
		Status:     CountInProgress,
		Notes:      in.Notes,
		StartedBy:  in.StartedBy,
		StartedAt:  now,
		UpdatedAt:  now,
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.LockLocation(ctx, loc.ID); err != nil {
			return err
		}
		open, err := tx.OpenCount(ctx, loc.ID)
		switch {
		case err == nil:
			return fmt.Errorf("%w: count %s is already in progress at location %s", ErrConflict, open.Code, loc.Code)
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("failed to check open counts: %w", err)
		}

		balances, err := tx.LocationBalances(ctx, loc.ID)
		if err != nil {
			return fmt.Errorf("failed to snapshot balances: %w", err)
		}
		snapshot := make(map[string]decimal.Decimal, len(balances))
		for _, b := range balances {
			snapshot[b.ProductID] = b.Quantity
		}

		productIDs := in.ProductIDs
		if len(productIDs) == 0 {
			for id := range snapshot {
				productIDs = append(productIDs, id)
			}
		}
		seen := make(map[string]bool, len(productIDs))
		for _, pid := range productIDs {
			if seen[pid] {
				continue
			}
			seen[pid] = true
			if _, err := s.store.GetProduct(ctx, pid); err != nil {
				return fmt.Errorf("product %s: %w", pid, err)
			}
			system, ok := snapshot[pid]
			if !ok {
				system = decimal.Zero
			}
			c.Items = append(c.Items, InventoryCountItem{
				ID:        uuid.NewString(),
				CountID:   c.ID,
				ProductID: pid,
				SystemQty: system,
			})
		}
		if len(c.Items) == 0 {
			return fmt.Errorf("%w: location %s has no stock to count", ErrValidation, loc.Code)
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].ProductID < c.Items[j].ProductID })
		c.recomputeAggregates()

		code, err := s.nextCode(ctx, tx, prefixInventoryCount)
		if err != nil {
			return err
		}
		c.Code = code
		if err := tx.SaveCount(ctx, c); err != nil {
			return fmt.Errorf("failed to insert inventory count: %w", err)
		}
		return s.audit(ctx, tx, EntityInventoryCount, c.ID, "start", in.StartedBy, nil, c)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("inventory count started", "code", c.Code, "location", loc.Code, "items", c.TotalItems)
	s.transitioned(ctx, EntityInventoryCount, c.ID, c.Code, "", string(c.Status), in.StartedBy, "")
	return c, nil
}

func (s *inventoryCountService) RegisterItem(ctx context.Context, itemID, actorID string, countedQty decimal.Decimal, notes string) (*InventoryCount, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if countedQty.IsNegative() {
		return nil, fmt.Errorf("%w: counted quantity cannot be negative, got %s", ErrInvalidQuantity, countedQty)
	}

	var out *InventoryCount
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.LockCountByItem(ctx, itemID)
		if err != nil {
			return err
		}
		if c.Status != CountInProgress {
			return fmt.Errorf("%w: count %s cannot be edited: status is %s (must be IN_PROGRESS)", ErrInvalidTransition, c.Code, c.Status)
		}
		idx := -1
		for i := range c.Items {
			if c.Items[i].ID == itemID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("count item %s: %w", itemID, ErrNotFound)
		}

		before := c.Items[idx]
		it := &c.Items[idx]
		diff := countedQty.Sub(it.SystemQty)
		now := s.opts.Now()
		it.CountedQty = ptr(countedQty)
		it.Difference = ptr(diff)
		it.CountedBy = ptr(actorID)
		it.CountedAt = ptr(now)
		it.Notes = strings.TrimSpace(notes)
		c.recomputeAggregates()
		c.UpdatedAt = now

		if err := tx.SaveCount(ctx, c); err != nil {
			return fmt.Errorf("failed to update inventory count %s: %w", c.Code, err)
		}
		out = c
		return s.audit(ctx, tx, EntityInventoryCount, c.ID, "register_item", actorID, before, *it)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *inventoryCountService) Complete(ctx context.Context, countID, actorID string) (*InventoryCount, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, countID, actorID, "complete", "", func(tx Tx, c *InventoryCount) error {
		if c.Status != CountInProgress {
			return fmt.Errorf("%w: count %s cannot be completed: status is %s (must be IN_PROGRESS)", ErrInvalidTransition, c.Code, c.Status)
		}
		var movements []Movement
		for _, it := range c.Items {
			if !it.divergent() {
				continue
			}
			movements = append(movements, Movement{
				Key:      BalanceKey{LocationID: c.LocationID, ProductID: it.ProductID},
				Kind:     MovementAdjust,
				Quantity: *it.Difference,
				Ref:      Reference{Type: RefInventoryCount, ID: c.ID, Note: "count " + c.Code},
			})
		}
		if _, err := s.ledger.ApplyTx(ctx, tx, movements); err != nil {
			return fmt.Errorf("count %s: %w", c.Code, err)
		}
		c.Status = CountCompleted
		c.CompletedBy = ptr(actorID)
		c.CompletedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *inventoryCountService) Cancel(ctx context.Context, countID, actorID, reason string) (*InventoryCount, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, countID, actorID, "cancel", reason, func(tx Tx, c *InventoryCount) error {
		if c.Status != CountInProgress {
			return fmt.Errorf("%w: count %s cannot be cancelled: status is %s (must be IN_PROGRESS)", ErrInvalidTransition, c.Code, c.Status)
		}
		c.Status = CountCancelled
		c.CancelReason = strings.TrimSpace(reason)
		c.CancelledAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *inventoryCountService) mutate(ctx context.Context, countID, actorID, action, reason string, fn func(tx Tx, c *InventoryCount) error) (*InventoryCount, error) {
	var before, after *InventoryCount
	err := s.store.InTx(ctx, func(tx Tx) error {
		c, err := tx.LockCount(ctx, countID)
		if err != nil {
			return err
		}
		before = c.Clone()
		if err := fn(tx, c); err != nil {
			return err
		}
		c.UpdatedAt = s.opts.Now()
		if err := tx.SaveCount(ctx, c); err != nil {
			return fmt.Errorf("failed to update inventory count %s: %w", c.Code, err)
		}
		after = c
		// Items are unchanged by status transitions; only the header is audited.
		return s.audit(ctx, tx, EntityInventoryCount, c.ID, action, actorID, countHeader(before), countHeader(c))
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, EntityInventoryCount, after.ID, after.Code, string(before.Status), string(after.Status), actorID, reason)
	return after, nil
}

func countHeader(c *InventoryCount) *InventoryCount {
	h := *c
	h.Items = nil
	return &h
}

func (s *inventoryCountService) Get(ctx context.Context, countID string) (*InventoryCount, error) {
	return s.store.GetCount(ctx, countID)
}

func (s *inventoryCountService) GetByCode(ctx context.Context, code string) (*InventoryCount, error) {
	return s.store.GetCountByCode(ctx, code)
}

func (s *inventoryCountService) List(ctx context.Context, filter CountFilter) ([]InventoryCount, error) {
	return s.store.ListCounts(ctx, filter)
}

func (s *inventoryCountService) Items(ctx context.Context, countID string, filter CountItemFilter) ([]CountItemView, error) {
	c, err := s.store.GetCount(ctx, countID)
	if err != nil {
		return nil, err
	}
	switch filter.Status {
	case CountItemsAll, CountItemsPending, CountItemsCounted, CountItemsDivergent:
	default:
		return nil, fmt.Errorf("%w: unknown item status filter %q", ErrValidation, filter.Status)
	}
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	out := make([]CountItemView, 0, len(c.Items))
	for _, it := range c.Items {
		switch filter.Status {
		case CountItemsPending:
			if it.counted() {
				continue
			}
		case CountItemsCounted:
			if !it.counted() {
				continue
			}
		case CountItemsDivergent:
			if !it.divergent() {
				continue
			}
		}
		view := CountItemView{InventoryCountItem: it}
		if p, err := s.store.GetProduct(ctx, it.ProductID); err == nil {
			view.ProductCode = p.Code
			view.ProductName = p.Name
			view.Unit = p.Unit
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to load product %s: %w", it.ProductID, err)
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(view.ProductName), search) &&
			!strings.Contains(strings.ToLower(view.ProductCode), search) {
			continue
		}
		out = append(out, view)
	}
	return out, nil
}

func (s *inventoryCountService) Progress(ctx context.Context, countID string) (*CountProgress, error) {
	c, err := s.store.GetCount(ctx, countID)
	if err != nil {
		return nil, err
	}
	p := &CountProgress{
		CountID:       c.ID,
		Status:        c.Status,
		TotalItems:    c.TotalItems,
		ItemsCounted:  c.ItemsCounted,
		Discrepancies: c.Discrepancies,
	}
	if c.TotalItems > 0 {
		p.Percent = float64(c.ItemsCounted) * 100 / float64(c.TotalItems)
	}
	return p, nil
}
