// Package memory is an in-process core.Store.
//
// Writes made inside a transaction are buffered and only become visible when
// the transaction commits. Locks taken through the transaction are held until
// it ends, so mutations on one balance key or one document are serialized
// while disjoint keys proceed in parallel.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"fieldstock/internal/core"
)

// Store holds committed state guarded by mu.
type Store struct {
	locks *lockTable

	mu          sync.RWMutex
	locations   map[string]core.Location
	products    map[string]core.Product
	balances    map[core.BalanceKey]core.StockBalance
	movements   []core.StockMovement
	requests    map[string]*core.MaterialRequest
	transfers   map[string]*core.StockTransfer
	counts      map[string]*core.InventoryCount
	countByItem map[string]string
	sequences   map[string]int64
	audit       []core.AuditEntry
}

var _ core.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithStripes sets the number of balance lock stripes.
func WithStripes(n int) Option {
	return func(s *Store) { s.locks = newLockTable(n) }
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		locks:       newLockTable(DefaultStripes),
		locations:   make(map[string]core.Location),
		products:    make(map[string]core.Product),
		balances:    make(map[core.BalanceKey]core.StockBalance),
		requests:    make(map[string]*core.MaterialRequest),
		transfers:   make(map[string]*core.StockTransfer),
		counts:      make(map[string]*core.InventoryCount),
		countByItem: make(map[string]string),
		sequences:   make(map[string]int64),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// InTx runs fn in a transaction. A nil return commits, anything else (including
// a panic) discards every buffered write.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	defer t.locks.releaseAll()

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.commit()
}

func notFound(kind, ref string) error {
	return fmt.Errorf("%s %s: %w", kind, ref, core.ErrNotFound)
}

func (s *Store) GetLocation(_ context.Context, id string) (*core.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.locations[id]
	if !ok {
		return nil, notFound("location", id)
	}
	return &l, nil
}

func (s *Store) GetLocationByCode(_ context.Context, code string) (*core.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.locations {
		if l.Code == code {
			return &l, nil
		}
	}
	return nil, notFound("location", code)
}

func (s *Store) ListLocations(_ context.Context, includeInactive bool) ([]core.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Location, 0, len(s.locations))
	for _, l := range s.locations {
		if l.IsActive || includeInactive {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return nil, notFound("product", id)
	}
	return &p, nil
}

func (s *Store) GetProductByCode(_ context.Context, code string) (*core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.products {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, notFound("product", code)
}

func (s *Store) ListProducts(_ context.Context) ([]core.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) GetBalance(_ context.Context, key core.BalanceKey) (*core.StockBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[key]
	if !ok {
		return nil, notFound("balance", key.String())
	}
	return &b, nil
}

func (s *Store) ListBalances(_ context.Context, f core.BalanceFilter) ([]core.StockBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.StockBalance, 0)
	for _, b := range s.balances {
		if f.LocationID != "" && b.LocationID != f.LocationID {
			continue
		}
		if f.ProductID != "" && b.ProductID != f.ProductID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

func (s *Store) ListMovements(_ context.Context, f core.MovementFilter) ([]core.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.StockMovement, 0)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if f.LocationID != "" && m.LocationID != f.LocationID {
			continue
		}
		if f.ProductID != "" && m.ProductID != f.ProductID {
			continue
		}
		if f.RefID != "" && m.RefID != f.RefID {
			continue
		}
		out = append(out, m)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) GetMaterialRequest(_ context.Context, id string) (*core.MaterialRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, notFound("material request", id)
	}
	return r.Clone(), nil
}

func (s *Store) GetMaterialRequestByCode(_ context.Context, code string) (*core.MaterialRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.requests {
		if r.Code == code {
			return r.Clone(), nil
		}
	}
	return nil, notFound("material request", code)
}

func (s *Store) ListMaterialRequests(_ context.Context, f core.RequestFilter) ([]core.MaterialRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var all []core.MaterialRequest
	for _, r := range s.requests {
		switch {
		case f.Status != "" && r.Status != f.Status,
			f.Priority != "" && r.Priority != f.Priority,
			f.ContractID != "" && r.ContractID != f.ContractID,
			f.WorkFrontID != "" && (r.WorkFrontID == nil || *r.WorkFrontID != f.WorkFrontID),
			f.RequesterID != "" && r.RequesterID != f.RequesterID,
			f.SourceLocationID != "" && r.SourceLocationID != f.SourceLocationID,
			search != "" && !matches(search, r.Code, r.Notes):
			continue
		}
		all = append(all, *r.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].RequestedAt.After(all[j].RequestedAt)
		}
		return all[i].Code > all[j].Code
	})
	return page(all, f.Page), len(all), nil
}

func (s *Store) GetTransfer(_ context.Context, id string) (*core.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return nil, notFound("stock transfer", id)
	}
	return t.Clone(), nil
}

func (s *Store) GetTransferByCode(_ context.Context, code string) (*core.StockTransfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transfers {
		if t.Code == code {
			return t.Clone(), nil
		}
	}
	return nil, notFound("stock transfer", code)
}

func (s *Store) ListTransfers(_ context.Context, f core.TransferFilter) ([]core.StockTransfer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var all []core.StockTransfer
	for _, t := range s.transfers {
		switch {
		case f.Status != "" && t.Status != f.Status,
			f.SourceLocationID != "" && t.SourceLocationID != f.SourceLocationID,
			f.DestinationLocationID != "" && t.DestinationLocationID != f.DestinationLocationID,
			search != "" && !matches(search, t.Code, t.Notes):
			continue
		}
		all = append(all, *t.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].RequestedAt.Equal(all[j].RequestedAt) {
			return all[i].RequestedAt.After(all[j].RequestedAt)
		}
		return all[i].Code > all[j].Code
	})
	return page(all, f.Page), len(all), nil
}

func (s *Store) GetCount(_ context.Context, id string) (*core.InventoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counts[id]
	if !ok {
		return nil, notFound("inventory count", id)
	}
	return c.Clone(), nil
}

func (s *Store) GetCountByCode(_ context.Context, code string) (*core.InventoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.counts {
		if c.Code == code {
			return c.Clone(), nil
		}
	}
	return nil, notFound("inventory count", code)
}

func (s *Store) ListCounts(_ context.Context, f core.CountFilter) ([]core.InventoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.InventoryCount, 0)
	for _, c := range s.counts {
		if f.LocationID != "" && c.LocationID != f.LocationID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) ListAudit(_ context.Context, entityType, entityID string) ([]core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.AuditEntry, 0)
	for _, e := range s.audit {
		if entityType != "" && e.EntityType != entityType {
			continue
		}
		if entityID != "" && e.EntityID != entityID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func matches(needle string, fields ...string) bool {
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func page[T any](all []T, p core.Page) []T {
	p = p.Normalize()
	start := p.Offset()
	if start >= len(all) {
		return []T{}
	}
	end := start + p.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end]
}
