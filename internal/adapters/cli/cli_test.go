package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/app"
	"fieldstock/internal/core"
	"fieldstock/internal/store/memory"
)

func newService(t *testing.T) app.ApplicationService {
	t.Helper()
	ctx := context.Background()
	svc := app.NewAppService(app.NewServices(memory.New(), core.DefaultAlertThresholds(), core.Options{}))
	_, err := svc.CreateLocation(ctx, app.CreateLocationRequest{Code: "CD-01", Name: "Central Depot", Type: core.LocationCentral, ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.CreateLocation(ctx, app.CreateLocationRequest{Code: "OBRA-7", Name: "Site 7", Type: core.LocationField, ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.CreateProduct(ctx, app.CreateProductRequest{Code: "CIM-50", Name: "Cement 50kg", Unit: "SC", ActorID: "admin"})
	require.NoError(t, err)
	return svc
}

func run(t *testing.T, svc app.ApplicationService, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), svc, args, &out, "cli.tester"))
	return out.String()
}

func TestRun_StockCommands(t *testing.T) {
	svc := newService(t)

	out := run(t, svc, "receive", "CD-01", "CIM-50", "40", "supplier", "delivery")
	assert.Contains(t, out, "On hand: 40")

	out = run(t, svc, "adjust", "cd-01", "cim-50", "-2", "broken", "bags")
	assert.Contains(t, out, "On hand: 38")

	out = run(t, svc, "stock", "CD-01")
	assert.Contains(t, out, "STOCK BALANCES")
	assert.Contains(t, out, "Cement 50kg")

	out = run(t, svc, "movements", "CD-01")
	assert.Contains(t, out, "ADJUST")
	assert.Contains(t, out, "COMMIT_IN")

	out = run(t, svc, "locations")
	assert.Contains(t, out, "OBRA-7")
}

func TestRun_ReplenishFromAlert(t *testing.T) {
	svc := newService(t)
	run(t, svc, "receive", "CD-01", "CIM-50", "100")
	run(t, svc, "limits", "OBRA-7", "CIM-50", "10")

	out := run(t, svc, "alerts")
	assert.Contains(t, out, "critical 1")
	assert.Contains(t, out, "CREATE_TRANSFER from CD-01")

	out = run(t, svc, "replenish", "OBRA-7", "CIM-50")
	assert.Contains(t, out, "drafted (DRAFT)")

	out = run(t, svc, "transfers", "draft")
	assert.Contains(t, out, "STOCK TRANSFERS (1)")
}

func TestRun_TransferActions(t *testing.T) {
	svc := newService(t)
	run(t, svc, "receive", "CD-01", "CIM-50", "100")
	tr, err := svc.CreateTransfer(context.Background(), app.CreateTransferRequest{
		SourceLocationRef:      "CD-01",
		DestinationLocationRef: "OBRA-7",
		Items:                  []app.TransferLine{{ProductRef: "CIM-50", Quantity: mustQty(t, "5")}},
		RequesterID:            "eng.silva",
	})
	require.NoError(t, err)

	for _, action := range []string{"submit", "approve", "dispatch", "receive"} {
		run(t, svc, "transfer", tr.Code, action)
	}
	out := run(t, svc, "transfer", tr.Code)
	assert.Contains(t, out, string(core.TransferDelivered))

	out = run(t, svc, "stock", "OBRA-7")
	assert.Contains(t, out, "OBRA-7")
}

func TestRun_RequestPartialSeparation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	run(t, svc, "receive", "CD-01", "CIM-50", "100")
	mr, err := svc.CreateMaterialRequest(ctx, app.CreateMaterialRequestRequest{
		ContractID:        "CT-9",
		SourceLocationRef: "CD-01",
		Items:             []app.RequestLine{{ProductRef: "CIM-50", Quantity: mustQty(t, "30")}},
		RequesterID:       "eng.silva",
	})
	require.NoError(t, err)
	run(t, svc, "request", mr.Code, "submit")
	run(t, svc, "request", mr.Code, "approve")

	var out bytes.Buffer
	err = Run(ctx, svc, []string{"request", mr.Code, "separate", "30"}, &out, "x")
	require.ErrorIs(t, err, ErrUsage)

	out2 := run(t, svc, "request", mr.Code, "separate", mr.Items[0].ID+"=24")
	assert.Contains(t, out2, "SEPARATED")
	assert.Contains(t, out2, string(core.RequestSeparating))

	run(t, svc, "request", mr.Code, "deliver", "J.", "Pereira")
	stock, err := svc.GetStock(ctx, "CD-01", "CIM-50")
	require.NoError(t, err)
	assert.True(t, stock.Lines[0].Quantity.Equal(mustQty(t, "76")))
	assert.True(t, stock.Lines[0].Reserved.IsZero())
}

func TestRun_Errors(t *testing.T) {
	svc := newService(t)
	var out bytes.Buffer

	err := Run(context.Background(), svc, []string{"frobnicate"}, &out, "x")
	require.ErrorIs(t, err, ErrUsage)

	err = Run(context.Background(), svc, []string{"receive", "CD-01"}, &out, "x")
	require.ErrorIs(t, err, ErrUsage)

	err = Run(context.Background(), svc, []string{"receive", "CD-01", "CIM-50", "abc"}, &out, "x")
	require.ErrorIs(t, err, ErrUsage)

	err = Run(context.Background(), svc, []string{"request", "RM-2026-9999"}, &out, "x")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func mustQty(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := parseQty(s)
	require.NoError(t, err)
	return d
}
