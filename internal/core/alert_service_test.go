package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/core"
)

func TestEvaluateAlert(t *testing.T) {
	th := core.DefaultAlertThresholds()
	tests := []struct {
		name      string
		qty, res  string
		min       string
		wantTier  core.Criticality
		wantDef   string
		wantAlert bool
	}{
		{"no minimum", "0", "0", "0", "", "0", false},
		{"at minimum", "10", "0", "10", "", "0", false},
		{"above minimum", "15", "3", "10", "", "0", false},
		{"nothing available", "0", "0", "10", core.CriticalityCritical, "10", true},
		{"all reserved", "6", "6", "10", core.CriticalityCritical, "10", true},
		{"half missing", "5", "0", "10", core.CriticalityWarning, "5", true},
		{"most missing", "4", "2", "10", core.CriticalityWarning, "8", true},
		{"slightly low", "7", "0", "10", core.CriticalityLow, "3", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := core.StockBalance{Quantity: d(tt.qty), Reserved: d(tt.res), MinStock: d(tt.min)}
			tier, deficit, ok := core.EvaluateAlert(b, th)
			assert.Equal(t, tt.wantAlert, ok)
			assert.Equal(t, tt.wantTier, tier)
			assert.True(t, deficit.Equal(d(tt.wantDef)), "deficit %s, want %s", deficit, tt.wantDef)
		})
	}
}

func TestEvaluateAlert_LowRatioThreshold(t *testing.T) {
	th := core.AlertThresholds{WarningRatio: d("0.5"), LowRatio: d("0.2")}

	_, _, ok := core.EvaluateAlert(core.StockBalance{Quantity: d("9"), MinStock: d("10")}, th)
	assert.False(t, ok, "ratio 0.1 is below the LOW threshold")

	tier, _, ok := core.EvaluateAlert(core.StockBalance{Quantity: d("8"), MinStock: d("10")}, th)
	assert.True(t, ok)
	assert.Equal(t, core.CriticalityLow, tier)
}

func (f *fixture) limit(t *testing.T, loc *core.Location, p *core.Product, min string) {
	t.Helper()
	_, err := f.ledger.SetLimits(f.ctx, key(loc, p), d(min), nil)
	require.NoError(t, err)
}

type alertMetrics struct {
	last *core.AlertCounts
}

func (m *alertMetrics) RecordLedgerOperation(core.MovementKind, string) {}
func (m *alertMetrics) RecordTransition(string, string, string)         {}
func (m *alertMetrics) RecordAlerts(c core.AlertCounts)                 { m.last = &c }

func TestAlerts_ComputeTiersAndSuggestions(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "100", "0")
	f.limit(t, f.central, f.p1, "20")
	f.stock(t, f.field, f.p1, "2", "0")
	f.limit(t, f.field, f.p1, "10")
	f.limit(t, f.field, f.p2, "5")

	metrics := &alertMetrics{}
	svc := core.NewAlertService(f.store, f.transfers, core.DefaultAlertThresholds(), core.Options{Metrics: metrics})

	report, err := svc.Compute(f.ctx, core.AlertFilter{})
	require.NoError(t, err)
	require.Len(t, report.Alerts, 2)
	assert.Equal(t, core.AlertCounts{Critical: 1, Warning: 1, Total: 2}, report.Counts)
	require.NotNil(t, metrics.last)
	assert.Equal(t, report.Counts, *metrics.last)

	critical := report.Alerts[0]
	assert.Equal(t, core.CriticalityCritical, critical.Criticality)
	assert.Equal(t, f.p2.ID, critical.ProductID)
	assert.Equal(t, core.ActionPurchase, critical.Action)
	assert.Nil(t, critical.SourceLocationID)

	warning := report.Alerts[1]
	assert.Equal(t, core.CriticalityWarning, warning.Criticality)
	assert.True(t, warning.Deficit.Equal(d("8")))
	assert.Equal(t, core.ActionCreateTransfer, warning.Action)
	require.NotNil(t, warning.SourceLocationID)
	assert.Equal(t, f.central.ID, *warning.SourceLocationID)
	assert.Equal(t, "CD-01", warning.SourceLocationCode)
}

func TestAlerts_Filters(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "2", "0")
	f.limit(t, f.field, f.p1, "10")
	f.limit(t, f.field, f.p2, "5")

	report, err := f.alerts.Compute(f.ctx, core.AlertFilter{Criticality: core.CriticalityWarning})
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, f.p1.ID, report.Alerts[0].ProductID)
	assert.Equal(t, 2, report.Counts.Total, "counts ignore the criticality filter")

	report, err = f.alerts.Compute(f.ctx, core.AlertFilter{Category: "electrical"})
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, f.p2.ID, report.Alerts[0].ProductID)

	report, err = f.alerts.Compute(f.ctx, core.AlertFilter{LocationID: f.central.ID})
	require.NoError(t, err)
	assert.Empty(t, report.Alerts)

	_, err = f.alerts.Compute(f.ctx, core.AlertFilter{Criticality: "SEVERE"})
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestAlerts_SourcePreference(t *testing.T) {
	f := newFixture(t)
	other, err := f.catalog.CreateLocation(f.ctx, core.CreateLocationInput{Code: "OBRA-9", Name: "Site 9", Type: core.LocationField, ActorID: "admin"})
	require.NoError(t, err)

	f.stock(t, f.central, f.p1, "100", "0")
	f.limit(t, f.central, f.p1, "20")
	f.stock(t, other, f.p1, "500", "0")
	f.limit(t, f.field, f.p1, "10")

	report, err := f.alerts.Compute(f.ctx, core.AlertFilter{LocationID: f.field.ID})
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, f.central.ID, *report.Alerts[0].SourceLocationID, "central wins when it can cover the deficit")

	f.limit(t, f.field, f.p1, "90")
	report, err = f.alerts.Compute(f.ctx, core.AlertFilter{LocationID: f.field.ID})
	require.NoError(t, err)
	require.Len(t, report.Alerts, 1)
	assert.Equal(t, other.ID, *report.Alerts[0].SourceLocationID, "central surplus 80 cannot cover 90")
}

func TestAlerts_DraftTransferFromAlert(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "100", "0")
	f.stock(t, f.field, f.p1, "2", "0")
	f.limit(t, f.field, f.p1, "10")
	f.limit(t, f.field, f.p2, "5")

	tr, err := f.alerts.DraftTransferFromAlert(f.ctx, f.field.ID, f.p1.ID, "eng.silva")
	require.NoError(t, err)
	assert.Equal(t, core.TransferDraft, tr.Status)
	assert.Equal(t, f.central.ID, tr.SourceLocationID)
	assert.Equal(t, f.field.ID, tr.DestinationLocationID)
	require.Len(t, tr.Items, 1)
	assert.True(t, tr.Items[0].Quantity.Equal(d("8")))

	// Drafting reserves nothing.
	f.requireBalance(t, f.central, f.p1, "100", "0")

	_, err = f.alerts.DraftTransferFromAlert(f.ctx, f.field.ID, f.p2.ID, "eng.silva")
	require.ErrorIs(t, err, core.ErrValidation)

	_, err = f.alerts.DraftTransferFromAlert(f.ctx, f.central.ID, f.p1.ID, "eng.silva")
	require.ErrorIs(t, err, core.ErrValidation)
}

func TestAlerts_InactiveLocationsAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.limit(t, f.field, f.p1, "10")

	_, err := f.catalog.DeactivateLocation(f.ctx, f.field.ID, "admin")
	require.NoError(t, err)

	report, err := f.alerts.Compute(f.ctx, core.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, report.Alerts)
	assert.Equal(t, 0, report.Counts.Total)
}
