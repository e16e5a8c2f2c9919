package core_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/core"
	"fieldstock/internal/store/memory"
)

// fixture wires every service over a fresh memory store with two active
// locations and two products.
type fixture struct {
	ctx       context.Context
	store     *memory.Store
	ledger    *core.Ledger
	catalog   core.CatalogService
	requests  core.MaterialRequestService
	transfers core.TransferService
	counts    core.InventoryCountService
	alerts    core.AlertService
	notifier  *recordingNotifier

	central *core.Location
	field   *core.Location
	p1      *core.Product
	p2      *core.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	rec := &recordingNotifier{}
	opts := core.Options{
		Notifier: rec,
		Now:      func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) },
	}

	ledger := core.NewLedger(store, opts)
	transfers := core.NewTransferService(store, ledger, opts)
	f := &fixture{
		ctx:       ctx,
		store:     store,
		ledger:    ledger,
		catalog:   core.NewCatalogService(store, opts),
		requests:  core.NewMaterialRequestService(store, ledger, opts),
		transfers: transfers,
		counts:    core.NewInventoryCountService(store, ledger, opts),
		alerts:    core.NewAlertService(store, transfers, core.DefaultAlertThresholds(), opts),
		notifier:  rec,
	}

	var err error
	f.central, err = f.catalog.CreateLocation(ctx, core.CreateLocationInput{Code: "CD-01", Name: "Central Depot", Type: core.LocationCentral, ActorID: "admin"})
	require.NoError(t, err)
	f.field, err = f.catalog.CreateLocation(ctx, core.CreateLocationInput{Code: "OBRA-7", Name: "Site 7", Type: core.LocationField, ActorID: "admin"})
	require.NoError(t, err)
	f.p1, err = f.catalog.CreateProduct(ctx, core.CreateProductInput{Code: "CIM-50", Name: "Cement 50kg", Unit: "SC", Category: "civil", ActorID: "admin"})
	require.NoError(t, err)
	f.p2, err = f.catalog.CreateProduct(ctx, core.CreateProductInput{Code: "CAB-10", Name: "Copper cable 10mm", Unit: "M", Category: "electrical", ActorID: "admin"})
	require.NoError(t, err)
	return f
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func key(loc *core.Location, p *core.Product) core.BalanceKey {
	return core.BalanceKey{LocationID: loc.ID, ProductID: p.ID}
}

// stock brings a balance to quantity qty and reserved res.
func (f *fixture) stock(t *testing.T, loc *core.Location, p *core.Product, qty, res string) {
	t.Helper()
	ref := core.Reference{Type: core.RefManual, ID: "opening"}
	_, err := f.ledger.Adjust(f.ctx, key(loc, p), d(qty), ref)
	require.NoError(t, err)
	if r := d(res); r.IsPositive() {
		_, err = f.ledger.Reserve(f.ctx, key(loc, p), r, ref)
		require.NoError(t, err)
	}
}

// requireBalance asserts the quantity and reserved amount of a balance.
func (f *fixture) requireBalance(t *testing.T, loc *core.Location, p *core.Product, qty, res string) {
	t.Helper()
	b, err := f.ledger.Balance(f.ctx, key(loc, p))
	require.NoError(t, err)
	require.True(t, b.Quantity.Equal(d(qty)), "quantity of %s at %s: got %s, want %s", p.Code, loc.Code, b.Quantity, qty)
	require.True(t, b.Reserved.Equal(d(res)), "reserved of %s at %s: got %s, want %s", p.Code, loc.Code, b.Reserved, res)
	require.NoError(t, b.CheckInvariant())
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []core.Event
}

func (r *recordingNotifier) Notify(_ context.Context, e core.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}
