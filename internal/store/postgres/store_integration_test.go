package postgres_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
	"fieldstock/internal/db"
	"fieldstock/internal/store/postgres"
	"fieldstock/migrations"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../../.env")

	// Use a dedicated TEST database; every table is truncated.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, dbURL, 20)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	m := &db.Migrator{Pool: pool, FS: migrations.FS, Logf: t.Logf}
	if _, err := m.Run(ctx); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE audit_log, inventory_count_items, inventory_counts, stock_transfer_items, stock_transfers,
			material_request_items, material_requests, doc_sequences, stock_movements, stock_balances,
			products, stock_locations CASCADE;`)
	if err != nil {
		t.Fatalf("failed to clean test database: %v", err)
	}
	return pool
}

type env struct {
	ctx       context.Context
	store     *postgres.Store
	ledger    *core.Ledger
	catalog   core.CatalogService
	requests  core.MaterialRequestService
	transfers core.TransferService
	counts    core.InventoryCountService
	central   *core.Location
	field     *core.Location
	cement    *core.Product
}

func newEnv(t *testing.T) *env {
	pool := setupTestDB(t)
	t.Cleanup(pool.Close)

	ctx := context.Background()
	store := postgres.New(pool)
	opts := core.Options{Now: func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }}
	ledger := core.NewLedger(store, opts)
	e := &env{
		ctx:       ctx,
		store:     store,
		ledger:    ledger,
		catalog:   core.NewCatalogService(store, opts),
		requests:  core.NewMaterialRequestService(store, ledger, opts),
		transfers: core.NewTransferService(store, ledger, opts),
		counts:    core.NewInventoryCountService(store, ledger, opts),
	}

	var err error
	e.central, err = e.catalog.CreateLocation(ctx, core.CreateLocationInput{Code: "CD-01", Name: "Central depot", Type: core.LocationCentral, ActorID: "admin"})
	if err != nil {
		t.Fatalf("create central: %v", err)
	}
	e.field, err = e.catalog.CreateLocation(ctx, core.CreateLocationInput{Code: "OBRA-7", Name: "Site 7", Type: core.LocationField, ActorID: "admin"})
	if err != nil {
		t.Fatalf("create field: %v", err)
	}
	e.cement, err = e.catalog.CreateProduct(ctx, core.CreateProductInput{Code: "CIM-50", Name: "Cement 50kg", Unit: "SC", ActorID: "admin"})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return e
}

func (e *env) key(l *core.Location) core.BalanceKey {
	return core.BalanceKey{LocationID: l.ID, ProductID: e.cement.ID}
}

func (e *env) balance(t *testing.T, l *core.Location) core.StockBalance {
	t.Helper()
	b, err := e.ledger.Balance(e.ctx, e.key(l))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return *b
}

func TestStore_ConcurrentReservesNeverOverReserve(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.CommitIn(e.ctx, e.key(e.central), decimal.NewFromInt(100), core.Reference{Type: core.RefManual}); err != nil {
		t.Fatalf("commit in: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, short := 0, 0
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.ledger.Reserve(e.ctx, e.key(e.central), decimal.NewFromInt(7), core.Reference{Type: core.RefManual})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, core.ErrInsufficientStock):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 14 || short != 16 {
		t.Errorf("expected 14 reservations and 16 rejections, got %d and %d", ok, short)
	}
	b := e.balance(t, e.central)
	if !b.Reserved.Equal(decimal.NewFromInt(98)) {
		t.Errorf("expected reserved 98, got %s", b.Reserved)
	}
}

func TestStore_RequestApprovalRollsBackOnShortfall(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.CommitIn(e.ctx, e.key(e.central), decimal.NewFromInt(5), core.Reference{Type: core.RefManual}); err != nil {
		t.Fatalf("commit in: %v", err)
	}

	r, err := e.requests.Create(e.ctx, core.CreateMaterialRequestInput{
		ContractID:       "CT-1",
		SourceLocationID: e.central.ID,
		RequesterID:      "eng.silva",
		Items:            []core.RequestItemInput{{ProductID: e.cement.ID, Quantity: decimal.NewFromInt(8)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Code != "RM-2026-0001" {
		t.Errorf("expected code RM-2026-0001, got %s", r.Code)
	}
	if _, err := e.requests.Submit(e.ctx, r.ID, "eng.silva"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := e.requests.Approve(e.ctx, r.ID, "mgr.costa"); !errors.Is(err, core.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	got, err := e.requests.Get(e.ctx, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != core.RequestPending {
		t.Errorf("expected PENDING after failed approval, got %s", got.Status)
	}
	if b := e.balance(t, e.central); !b.Reserved.IsZero() {
		t.Errorf("expected no reservation, got %s", b.Reserved)
	}
}

func TestStore_TransferLifecycleWithDiscrepancy(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.CommitIn(e.ctx, e.key(e.central), decimal.NewFromInt(100), core.Reference{Type: core.RefManual}); err != nil {
		t.Fatalf("commit in: %v", err)
	}

	tr, err := e.transfers.Create(e.ctx, core.CreateTransferInput{
		SourceLocationID:      e.central.ID,
		DestinationLocationID: e.field.ID,
		RequesterID:           "eng.silva",
		Items:                 []core.TransferItemInput{{ProductID: e.cement.ID, Quantity: decimal.NewFromInt(20), UnitPrice: decimal.NewFromInt(35)}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	steps := []func() (*core.StockTransfer, error){
		func() (*core.StockTransfer, error) { return e.transfers.Submit(e.ctx, tr.ID, "eng.silva") },
		func() (*core.StockTransfer, error) { return e.transfers.Approve(e.ctx, tr.ID, "mgr.costa") },
		func() (*core.StockTransfer, error) {
			return e.transfers.Dispatch(e.ctx, tr.ID, "drv.lima", "ABC-1234", "Lima")
		},
	}
	for i, step := range steps {
		if _, err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	tr, err = e.transfers.Receive(e.ctx, tr.ID, "wh.souza", "Souza", []core.ReceiptLine{
		{ItemID: tr.Items[0].ID, ReceivedQuantity: decimal.NewFromInt(18), Reason: "two bags torn"},
	})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if tr.Status != core.TransferDeliveredWithDiscrepancy {
		t.Errorf("expected DELIVERED_WITH_DISCREPANCY, got %s", tr.Status)
	}
	if d := tr.Items[0].Discrepancy; d == nil || d.Reason != "two bags torn" {
		t.Errorf("expected stored discrepancy, got %+v", d)
	}

	if b := e.balance(t, e.central); !b.Quantity.Equal(decimal.NewFromInt(80)) || !b.Reserved.IsZero() {
		t.Errorf("source: expected 80/0, got %s/%s", b.Quantity, b.Reserved)
	}
	if b := e.balance(t, e.field); !b.Quantity.Equal(decimal.NewFromInt(18)) {
		t.Errorf("destination: expected 18, got %s", b.Quantity)
	}

	violations, err := db.VerifyLedger(e.ctx, mustPool(t))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if len(violations) != 0 {
		t.Errorf("expected a consistent ledger, got %+v", violations)
	}
}

func TestStore_OneOpenCountAndDuplicateCodes(t *testing.T) {
	e := newEnv(t)
	if _, err := e.ledger.CommitIn(e.ctx, e.key(e.field), decimal.NewFromInt(10), core.Reference{Type: core.RefManual}); err != nil {
		t.Fatalf("commit in: %v", err)
	}

	c, err := e.counts.Start(e.ctx, core.StartCountInput{LocationID: e.field.ID, StartedBy: "wh.souza"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.counts.Start(e.ctx, core.StartCountInput{LocationID: e.field.ID, StartedBy: "wh.souza"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if _, err := e.counts.RegisterItem(e.ctx, c.Items[0].ID, "wh.souza", decimal.NewFromInt(12), ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := e.counts.Complete(e.ctx, c.ID, "mgr.costa"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if b := e.balance(t, e.field); !b.Quantity.Equal(decimal.NewFromInt(12)) {
		t.Errorf("expected 12 after adjustment, got %s", b.Quantity)
	}

	if _, err := e.catalog.CreateProduct(e.ctx, core.CreateProductInput{Code: "CIM-50", Name: "Again", ActorID: "admin"}); !errors.Is(err, core.ErrConflict) {
		t.Errorf("expected ErrConflict on duplicate code, got %v", err)
	}

	audit, err := e.store.ListAudit(e.ctx, core.EntityInventoryCount, c.ID)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	if len(audit) != 3 {
		t.Errorf("expected 3 audit entries (start, register, complete), got %d", len(audit))
	}
}

func mustPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	pool, err := db.NewPool(context.Background(), os.Getenv("TEST_DATABASE_URL"), 2)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
