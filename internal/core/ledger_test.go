package core_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/core"
)

func TestLedger_ReserveBeyondAvailable(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "100", "20")

	_, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d("90"), core.Reference{Type: core.RefManual})
	require.ErrorIs(t, err, core.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "available 80")

	f.requireBalance(t, f.central, f.p1, "100", "20")
}

func TestLedger_ReserveReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "40", "7")

	ref := core.Reference{Type: core.RefManual, ID: "rt"}
	b, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d("10"), ref)
	require.NoError(t, err)
	assert.True(t, b.Reserved.Equal(d("17")))
	assert.True(t, b.Available().Equal(d("23")))

	_, err = f.ledger.Release(f.ctx, key(f.central, f.p1), d("10"), ref)
	require.NoError(t, err)
	f.requireBalance(t, f.central, f.p1, "40", "7")
}

func TestLedger_ReleaseMoreThanReserved(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "10", "3")

	_, err := f.ledger.Release(f.ctx, key(f.central, f.p1), d("4"), core.Reference{Type: core.RefManual})
	require.ErrorIs(t, err, core.ErrInvalidState)
	f.requireBalance(t, f.central, f.p1, "10", "3")
}

func TestLedger_CommitOutConsumesReservation(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "10", "6")
	ref := core.Reference{Type: core.RefManual}

	_, err := f.ledger.CommitOut(f.ctx, key(f.central, f.p1), d("7"), ref)
	require.ErrorIs(t, err, core.ErrInvalidState)

	_, err = f.ledger.CommitOut(f.ctx, key(f.central, f.p1), d("6"), ref)
	require.NoError(t, err)
	f.requireBalance(t, f.central, f.p1, "4", "0")
}

func TestLedger_CommitInCreatesBalance(t *testing.T) {
	f := newFixture(t)

	b, err := f.ledger.CommitIn(f.ctx, key(f.field, f.p2), d("12.5"), core.Reference{Type: core.RefManual})
	require.NoError(t, err)
	assert.True(t, b.Quantity.Equal(d("12.5")))
	f.requireBalance(t, f.field, f.p2, "12.5", "0")
}

func TestLedger_AdjustGuards(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "10", "4")
	ref := core.Reference{Type: core.RefInventoryCount}

	_, err := f.ledger.Adjust(f.ctx, key(f.central, f.p1), d("-11"), ref)
	require.ErrorIs(t, err, core.ErrInvalidAdjustment)

	_, err = f.ledger.Adjust(f.ctx, key(f.central, f.p1), d("-7"), ref)
	require.ErrorIs(t, err, core.ErrInvalidAdjustment, "adjusting below reserved must fail")

	_, err = f.ledger.Adjust(f.ctx, key(f.central, f.p1), d("-6"), ref)
	require.NoError(t, err)
	f.requireBalance(t, f.central, f.p1, "4", "4")
}

func TestLedger_NonPositiveQuantity(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "10", "0")
	ref := core.Reference{Type: core.RefManual}

	for _, qty := range []string{"0", "-1"} {
		_, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d(qty), ref)
		assert.ErrorIs(t, err, core.ErrInvalidQuantity, "reserve %s", qty)
		_, err = f.ledger.CommitIn(f.ctx, key(f.central, f.p1), d(qty), ref)
		assert.ErrorIs(t, err, core.ErrInvalidQuantity, "commit in %s", qty)
	}
	f.requireBalance(t, f.central, f.p1, "10", "0")
}

func TestLedger_ApplyTxIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "10", "0")
	f.stock(t, f.central, f.p2, "5", "0")

	err := f.store.InTx(f.ctx, func(tx core.Tx) error {
		_, err := f.ledger.ApplyTx(f.ctx, tx, []core.Movement{
			{Key: key(f.central, f.p1), Kind: core.MovementReserve, Quantity: d("8")},
			{Key: key(f.central, f.p2), Kind: core.MovementReserve, Quantity: d("6")},
		})
		return err
	})
	require.ErrorIs(t, err, core.ErrInsufficientStock)

	f.requireBalance(t, f.central, f.p1, "10", "0")
	f.requireBalance(t, f.central, f.p2, "5", "0")
}

func TestLedger_MovementsJournal(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "100", "0")
	ref := core.Reference{Type: core.RefManual, ID: "journal"}

	_, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d("10"), ref)
	require.NoError(t, err)
	_, err = f.ledger.Release(f.ctx, key(f.central, f.p1), d("4"), ref)
	require.NoError(t, err)

	moves, err := f.ledger.Movements(f.ctx, core.MovementFilter{RefID: "journal"})
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, core.MovementRelease, moves[0].Kind)
	assert.True(t, moves[0].Quantity.Equal(d("-4")))
	assert.True(t, moves[0].ReservedAfter.Equal(d("6")))
	assert.Equal(t, core.MovementReserve, moves[1].Kind)
	assert.True(t, moves[1].Quantity.Equal(d("10")))
}

func TestLedger_ConcurrentReservationsNeverOverReserve(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "100", "0")

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d("3"), core.Reference{Type: core.RefManual})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case core.ErrorKind(err) == "INSUFFICIENT_STOCK":
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 33, succeeded)
	assert.Equal(t, workers-33, short)
	f.requireBalance(t, f.central, f.p1, "100", "99")
}

func TestLedger_ConcurrentDisjointKeys(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.central, f.p1, "1000", "0")
	f.stock(t, f.field, f.p2, "1000", "0")

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.ledger.Reserve(f.ctx, key(f.central, f.p1), d("1"), core.Reference{Type: core.RefManual})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.ledger.CommitIn(f.ctx, key(f.field, f.p2), d("2"), core.Reference{Type: core.RefManual})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.requireBalance(t, f.central, f.p1, "1000", "100")
	f.requireBalance(t, f.field, f.p2, "1200", "0")
}

func TestLedger_SetLimits(t *testing.T) {
	f := newFixture(t)
	f.stock(t, f.field, f.p1, "3", "1")

	maxStock := d("50")
	b, err := f.ledger.SetLimits(f.ctx, key(f.field, f.p1), d("10"), &maxStock)
	require.NoError(t, err)
	assert.True(t, b.MinStock.Equal(d("10")))
	f.requireBalance(t, f.field, f.p1, "3", "1")

	low := d("5")
	_, err = f.ledger.SetLimits(f.ctx, key(f.field, f.p1), d("10"), &low)
	require.ErrorIs(t, err, core.ErrInvalidQuantity)
}
