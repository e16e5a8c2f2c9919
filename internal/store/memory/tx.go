package memory

import (
	"context"
	"fmt"
	"strconv"

	"fieldstock/internal/core"
)

// tx buffers writes until commit. Reads inside the transaction see its own
// buffered writes first, then the committed state.
type tx struct {
	s     *Store
	locks txLocks

	locations map[string]core.Location
	products  map[string]core.Product
	balances  map[core.BalanceKey]core.StockBalance
	requests  map[string]*core.MaterialRequest
	transfers map[string]*core.StockTransfer
	counts    map[string]*core.InventoryCount
	sequences map[string]int64
	movements []core.StockMovement
	audit     []core.AuditEntry
}

var _ core.Tx = (*tx)(nil)

func newTx(s *Store) *tx {
	return &tx{
		s:         s,
		locks:     newTxLocks(s.locks),
		locations: make(map[string]core.Location),
		products:  make(map[string]core.Product),
		balances:  make(map[core.BalanceKey]core.StockBalance),
		requests:  make(map[string]*core.MaterialRequest),
		transfers: make(map[string]*core.StockTransfer),
		counts:    make(map[string]*core.InventoryCount),
		sequences: make(map[string]int64),
	}
}

func (t *tx) LockBalances(_ context.Context, keys []core.BalanceKey) (map[core.BalanceKey]*core.StockBalance, error) {
	if err := t.locks.lockKeys(keys); err != nil {
		return nil, err
	}
	out := make(map[core.BalanceKey]*core.StockBalance, len(keys))
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, k := range keys {
		if b, ok := t.balances[k]; ok {
			out[k] = &b
			continue
		}
		if b, ok := t.s.balances[k]; ok {
			out[k] = &b
			continue
		}
		out[k] = core.NewBalance(k)
	}
	return out, nil
}

func (t *tx) SaveBalance(_ context.Context, b *core.StockBalance) error {
	if err := b.CheckInvariant(); err != nil {
		return err
	}
	t.balances[b.Key()] = *b
	return nil
}

func (t *tx) InsertMovement(_ context.Context, m *core.StockMovement) error {
	t.movements = append(t.movements, *m)
	return nil
}

func (t *tx) LocationBalances(_ context.Context, locationID string) ([]core.StockBalance, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	merged := make(map[core.BalanceKey]core.StockBalance)
	for k, b := range t.s.balances {
		if k.LocationID == locationID {
			merged[k] = b
		}
	}
	for k, b := range t.balances {
		if k.LocationID == locationID {
			merged[k] = b
		}
	}
	out := make([]core.StockBalance, 0, len(merged))
	for _, b := range merged {
		out = append(out, b)
	}
	return out, nil
}

func (t *tx) LockLocation(ctx context.Context, id string) (*core.Location, error) {
	t.locks.lockEntity("location:" + id)
	if l, ok := t.locations[id]; ok {
		return &l, nil
	}
	return t.s.GetLocation(ctx, id)
}

func (t *tx) SaveLocation(_ context.Context, l *core.Location) error {
	t.locations[l.ID] = *l
	return nil
}

func (t *tx) SaveProduct(_ context.Context, p *core.Product) error {
	t.products[p.ID] = *p
	return nil
}

func (t *tx) NextSequence(_ context.Context, prefix string, year int) (int64, error) {
	name := prefix + ":" + strconv.Itoa(year)
	t.locks.lockEntity("seq:" + name)
	n, ok := t.sequences[name]
	if !ok {
		t.s.mu.RLock()
		n = t.s.sequences[name]
		t.s.mu.RUnlock()
	}
	n++
	t.sequences[name] = n
	return n, nil
}

func (t *tx) LockMaterialRequest(ctx context.Context, id string) (*core.MaterialRequest, error) {
	t.locks.lockEntity("request:" + id)
	if r, ok := t.requests[id]; ok {
		return r.Clone(), nil
	}
	return t.s.GetMaterialRequest(ctx, id)
}

func (t *tx) SaveMaterialRequest(_ context.Context, r *core.MaterialRequest) error {
	t.requests[r.ID] = r.Clone()
	return nil
}

func (t *tx) LockTransfer(ctx context.Context, id string) (*core.StockTransfer, error) {
	t.locks.lockEntity("transfer:" + id)
	if tr, ok := t.transfers[id]; ok {
		return tr.Clone(), nil
	}
	return t.s.GetTransfer(ctx, id)
}

func (t *tx) SaveTransfer(_ context.Context, tr *core.StockTransfer) error {
	t.transfers[tr.ID] = tr.Clone()
	return nil
}

func (t *tx) LockCount(ctx context.Context, id string) (*core.InventoryCount, error) {
	t.locks.lockEntity("count:" + id)
	if c, ok := t.counts[id]; ok {
		return c.Clone(), nil
	}
	return t.s.GetCount(ctx, id)
}

func (t *tx) LockCountByItem(ctx context.Context, itemID string) (*core.InventoryCount, error) {
	for id, c := range t.counts {
		for _, it := range c.Items {
			if it.ID == itemID {
				return t.LockCount(ctx, id)
			}
		}
	}
	t.s.mu.RLock()
	id, ok := t.s.countByItem[itemID]
	t.s.mu.RUnlock()
	if !ok {
		return nil, notFound("count item", itemID)
	}
	return t.LockCount(ctx, id)
}

func (t *tx) OpenCount(_ context.Context, locationID string) (*core.InventoryCount, error) {
	for _, c := range t.counts {
		if c.LocationID == locationID && c.Status == core.CountInProgress {
			return c.Clone(), nil
		}
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for id, c := range t.s.counts {
		if _, shadowed := t.counts[id]; shadowed {
			continue
		}
		if c.LocationID == locationID && c.Status == core.CountInProgress {
			return c.Clone(), nil
		}
	}
	return nil, notFound("open count at location", locationID)
}

func (t *tx) SaveCount(_ context.Context, c *core.InventoryCount) error {
	t.counts[c.ID] = c.Clone()
	return nil
}

func (t *tx) AppendAudit(_ context.Context, e *core.AuditEntry) error {
	t.audit = append(t.audit, *e)
	return nil
}

// commit publishes every buffered write at once. Unique codes are checked
// here because two transactions may both have passed a read-side check.
func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range t.locations {
		for otherID, other := range s.locations {
			if otherID != id && other.Code == l.Code {
				return fmt.Errorf("%w: location code %s already exists", core.ErrConflict, l.Code)
			}
		}
	}
	for id, p := range t.products {
		for otherID, other := range s.products {
			if otherID != id && other.Code == p.Code {
				return fmt.Errorf("%w: product code %s already exists", core.ErrConflict, p.Code)
			}
		}
	}

	for id, l := range t.locations {
		s.locations[id] = l
	}
	for id, p := range t.products {
		s.products[id] = p
	}
	for k, b := range t.balances {
		s.balances[k] = b
	}
	s.movements = append(s.movements, t.movements...)
	for id, r := range t.requests {
		s.requests[id] = r
	}
	for id, tr := range t.transfers {
		s.transfers[id] = tr
	}
	for id, c := range t.counts {
		s.counts[id] = c
		for _, it := range c.Items {
			s.countByItem[it.ID] = id
		}
	}
	for name, n := range t.sequences {
		s.sequences[name] = n
	}
	s.audit = append(s.audit, t.audit...)
	return nil
}
