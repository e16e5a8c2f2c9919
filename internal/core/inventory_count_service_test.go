package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/core"
)

func (f *fixture) itemFor(t *testing.T, c *core.InventoryCount, p *core.Product) core.InventoryCountItem {
	t.Helper()
	for _, it := range c.Items {
		if it.ProductID == p.ID {
			return it
		}
	}
	t.Fatalf("product %s not on count %s", p.Code, c.Code)
	return core.InventoryCountItem{}
}

func TestInventoryCount_CompleteAdjustsDifferences(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "100", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, CountType: core.CountFull, StartedBy: "wh.souza"})
	require.NoError(t, err)
	assert.Equal(t, "INV-2026-0001", c.Code)
	assert.Equal(t, core.CountInProgress, c.Status)
	item := f.itemFor(t, c, f.p1)
	assert.True(t, item.SystemQty.Equal(d("100")))

	c, err = f.counts.RegisterItem(f.ctx, item.ID, "wh.souza", d("95"), "two bags torn")
	require.NoError(t, err)
	item = f.itemFor(t, c, f.p1)
	assert.True(t, item.Difference.Equal(d("-5")))
	assert.Equal(t, 1, c.ItemsCounted)
	assert.Equal(t, 1, c.Discrepancies)

	c, err = f.counts.Complete(f.ctx, c.ID, "mgr.costa")
	require.NoError(t, err)
	assert.Equal(t, core.CountCompleted, c.Status)
	f.requireBalance(t, f.field, f.p1, "95", "0")

	moves, err := f.ledger.Movements(f.ctx, core.MovementFilter{RefID: c.ID})
	require.NoError(t, err)
	require.Len(t, moves, 1)
	assert.Equal(t, core.MovementAdjust, moves[0].Kind)
	assert.True(t, moves[0].Quantity.Equal(d("-5")))
}

func TestInventoryCount_ReRegistrationRecomputesAggregates(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "0")
	f.stock(t, f.field, f.p2, "4", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	require.Equal(t, 2, c.TotalItems)
	i1 := f.itemFor(t, c, f.p1)

	c, err = f.counts.RegisterItem(f.ctx, i1.ID, "wh.souza", d("8"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ItemsCounted)
	assert.Equal(t, 1, c.Discrepancies)

	c, err = f.counts.RegisterItem(f.ctx, i1.ID, "wh.souza", d("10"), "recounted")
	require.NoError(t, err)
	assert.Equal(t, 1, c.ItemsCounted, "re-registering must not double count")
	assert.Equal(t, 0, c.Discrepancies)
	assert.True(t, f.itemFor(t, c, f.p1).Difference.IsZero())

	p, err := f.counts.Progress(f.ctx, c.ID)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, p.Percent, 0.001)
}

func TestInventoryCount_DifferenceIsRelativeToStartSnapshot(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "100", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	item := f.itemFor(t, c, f.p1)

	// A receipt lands after the snapshot and before the shelf is counted.
	_, err = f.ledger.CommitIn(f.ctx, key(f.field, f.p1), d("10"), core.Reference{Type: core.RefManual, ID: "late-truck"})
	require.NoError(t, err)

	_, err = f.counts.RegisterItem(f.ctx, item.ID, "wh.souza", d("95"), "")
	require.NoError(t, err)
	_, err = f.counts.Complete(f.ctx, c.ID, "mgr.costa")
	require.NoError(t, err)

	// The -5 difference applies to the live 110, not a reset to 95.
	f.requireBalance(t, f.field, f.p1, "105", "0")
}

func TestInventoryCount_UnregisteredItemsAreUntouched(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "0")
	f.stock(t, f.field, f.p2, "4", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	_, err = f.counts.RegisterItem(f.ctx, f.itemFor(t, c, f.p2).ID, "wh.souza", d("6"), "")
	require.NoError(t, err)

	_, err = f.counts.Complete(f.ctx, c.ID, "mgr.costa")
	require.NoError(t, err)
	f.requireBalance(t, f.field, f.p1, "10", "0")
	f.requireBalance(t, f.field, f.p2, "6", "0")
}

func TestInventoryCount_CompleteFailsBelowReserved(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "8")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	_, err = f.counts.RegisterItem(f.ctx, c.Items[0].ID, "wh.souza", d("5"), "")
	require.NoError(t, err)

	_, err = f.counts.Complete(f.ctx, c.ID, "mgr.costa")
	require.ErrorIs(t, err, core.ErrInvalidAdjustment)
	f.requireBalance(t, f.field, f.p1, "10", "8")

	got, err := f.counts.Get(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CountInProgress, got.Status)
}

func TestInventoryCount_RegisterGuards(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	itemID := c.Items[0].ID

	_, err = f.counts.RegisterItem(f.ctx, itemID, "wh.souza", d("-1"), "")
	require.ErrorIs(t, err, core.ErrInvalidQuantity)
	_, err = f.counts.RegisterItem(f.ctx, "missing", "wh.souza", d("1"), "")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.counts.Cancel(f.ctx, c.ID, "mgr.costa", "")
	require.NoError(t, err)
	_, err = f.counts.RegisterItem(f.ctx, itemID, "wh.souza", d("1"), "")
	require.ErrorIs(t, err, core.ErrInvalidTransition)
	_, err = f.counts.Complete(f.ctx, c.ID, "mgr.costa")
	require.ErrorIs(t, err, core.ErrInvalidTransition)
	f.requireBalance(t, f.field, f.p1, "10", "0")
}

func TestInventoryCount_OneOpenCountPerLocation(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "0")

	first, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	_, err = f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.ErrorIs(t, err, core.ErrConflict)

	_, err = f.counts.Cancel(f.ctx, first.ID, "mgr.costa", "wrong shift")
	require.NoError(t, err)
	_, err = f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
}

func TestInventoryCount_StartValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.ErrorIs(t, err, core.ErrValidation, "nothing to count")

	_, err = f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, CountType: core.CountSpot, StartedBy: "wh.souza"})
	require.ErrorIs(t, err, core.ErrValidation, "spot count without products")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{
		LocationID: f.field.ID,
		CountType:  core.CountSpot,
		StartedBy:  "wh.souza",
		ProductIDs: []string{f.p2.ID},
	})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.True(t, c.Items[0].SystemQty.IsZero())
}

func TestInventoryCount_ItemFilters(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "10", "0")
	f.stock(t, f.field, f.p2, "4", "0")

	c, err := f.counts.Start(f.ctx, core.StartCountInput{LocationID: f.field.ID, StartedBy: "wh.souza"})
	require.NoError(t, err)
	_, err = f.counts.RegisterItem(f.ctx, f.itemFor(t, c, f.p1).ID, "wh.souza", d("10"), "")
	require.NoError(t, err)

	all, err := f.counts.Items(f.ctx, c.ID, core.CountItemFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := f.counts.Items(f.ctx, c.ID, core.CountItemFilter{Status: core.CountItemsPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "CAB-10", pending[0].ProductCode)

	counted, err := f.counts.Items(f.ctx, c.ID, core.CountItemFilter{Status: core.CountItemsCounted})
	require.NoError(t, err)
	require.Len(t, counted, 1)
	assert.Equal(t, "Cement 50kg", counted[0].ProductName)

	divergent, err := f.counts.Items(f.ctx, c.ID, core.CountItemFilter{Status: core.CountItemsDivergent})
	require.NoError(t, err)
	assert.Empty(t, divergent)

	search, err := f.counts.Items(f.ctx, c.ID, core.CountItemFilter{Search: "copper"})
	require.NoError(t, err)
	require.Len(t, search, 1)
	assert.Equal(t, f.p2.ID, search[0].ProductID)

	_, err = f.counts.Items(f.ctx, c.ID, core.CountItemFilter{Status: "weird"})
	require.ErrorIs(t, err, core.ErrValidation)
}
