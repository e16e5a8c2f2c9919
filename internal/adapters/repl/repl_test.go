package repl

import (
	"bufio"
	"bytes"
	"context"
	"strings"
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
	_, err = svc.CreateProduct(ctx, app.CreateProductRequest{Code: "CIM-50", Name: "Cement 50kg", Unit: "SC", ActorID: "admin"})
	require.NoError(t, err)
	_, err = svc.ReceiveStock(ctx, app.StockEntryRequest{LocationRef: "CD-01", ProductRef: "CIM-50", Quantity: decimal.NewFromInt(100), ActorID: "admin"})
	require.NoError(t, err)
	return svc
}

func runSession(t *testing.T, svc app.ApplicationService, lines ...string) string {
	t.Helper()
	in := bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), svc, in, &out, "wh.rocha"))
	return out.String()
}

func TestRun_CountSession(t *testing.T) {
	svc := newService(t)

	out := runSession(t, svc,
		"/start CD-01",
		"cim-50 97 three bags torn",
		"/progress",
		"/items divergent",
		"/complete",
		"y",
		"/exit",
	)

	assert.Contains(t, out, "started with 1 items")
	assert.Contains(t, out, "CIM-50 = 97 (DIVERGENT -3)")
	assert.Contains(t, out, "1 of 1 counted (100%), 1 divergent")
	assert.Contains(t, out, "The following adjustments will be posted:")
	assert.Contains(t, out, "COMPLETED. 1 adjustments posted.")
	assert.Contains(t, out, "Goodbye!")

	stock, err := svc.GetStock(context.Background(), "CD-01", "CIM-50")
	require.NoError(t, err)
	require.Len(t, stock.Lines, 1)
	assert.True(t, stock.Lines[0].Quantity.Equal(decimal.NewFromInt(97)))
}

func TestRun_CompleteDeclinedKeepsCountOpen(t *testing.T) {
	svc := newService(t)

	out := runSession(t, svc, "/start CD-01", "CIM-50 100", "/complete", "n")
	assert.Contains(t, out, "No divergences.")
	assert.Contains(t, out, "Count left open.")

	counts, err := svc.ListCounts(context.Background(), core.CountFilter{Status: core.CountInProgress})
	require.NoError(t, err)
	require.Len(t, counts.Counts, 1)

	// A later session resumes the same count.
	code := counts.Counts[0].Code
	out = runSession(t, svc, "/open "+strings.ToLower(code), "/cancel recount tomorrow")
	assert.Contains(t, out, "CANCELLED. Stock unchanged.")
}

func TestRun_LinesNeedAnOpenCount(t *testing.T) {
	svc := newService(t)

	out := runSession(t, svc, "CIM-50 4", "/items", "/bogus")
	assert.Contains(t, out, "Error: no open count")
	assert.Contains(t, out, "Unknown command: /bogus")

	out = runSession(t, svc, "/start CD-01", "XYZ-1 4", "CIM-50 lots")
	assert.Contains(t, out, "product XYZ-1 is not part of count")
	assert.Contains(t, out, "Invalid quantity: lots")
}

func TestRun_NewRequestWizard(t *testing.T) {
	svc := newService(t)

	out := runSession(t, svc,
		"/new-request CD-01 CT-9",
		"CIM-50 12 for slab",
		"CIM-50 zero",
		"done",
		"high",
		"",
	)
	assert.Contains(t, out, "Invalid quantity.")
	assert.Contains(t, out, "Request created (Status: DRAFT)")
	assert.Contains(t, out, "Priority: HIGH")

	list, err := svc.ListRequests(context.Background(), core.RequestFilter{})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "wh.rocha", list.Requests[0].RequesterID)
}
