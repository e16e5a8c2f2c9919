package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldstock/internal/core"
)

func TestInTx_RollbackLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := core.BalanceKey{LocationID: "L1", ProductID: "P1"}
	boom := errors.New("boom")

	err := s.InTx(ctx, func(tx core.Tx) error {
		bs, err := tx.LockBalances(ctx, []core.BalanceKey{k})
		require.NoError(t, err)
		b := bs[k]
		b.Quantity = decimal.NewFromInt(10)
		require.NoError(t, tx.SaveBalance(ctx, b))
		require.NoError(t, tx.SaveLocation(ctx, &core.Location{ID: "L1", Code: "L1", IsActive: true}))
		n, err := tx.NextSequence(ctx, "RM", 2026)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetBalance(ctx, k)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, err = s.GetLocation(ctx, "L1")
	assert.ErrorIs(t, err, core.ErrNotFound)

	err = s.InTx(ctx, func(tx core.Tx) error {
		n, err := tx.NextSequence(ctx, "RM", 2026)
		assert.Equal(t, int64(1), n, "rolled back numbers are reused")
		return err
	})
	require.NoError(t, err)
}

func TestInTx_ReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	k := core.BalanceKey{LocationID: "L1", ProductID: "P1"}

	err := s.InTx(ctx, func(tx core.Tx) error {
		require.NoError(t, tx.SaveBalance(ctx, &core.StockBalance{LocationID: "L1", ProductID: "P1", Quantity: decimal.NewFromInt(4)}))
		bs, err := tx.LocationBalances(ctx, "L1")
		require.NoError(t, err)
		require.Len(t, bs, 1)
		assert.True(t, bs[0].Quantity.Equal(decimal.NewFromInt(4)))

		_, err = s.GetBalance(ctx, k)
		assert.ErrorIs(t, err, core.ErrNotFound, "uncommitted writes are invisible outside the tx")
		return nil
	})
	require.NoError(t, err)

	b, err := s.GetBalance(ctx, k)
	require.NoError(t, err)
	assert.True(t, b.Quantity.Equal(decimal.NewFromInt(4)))
}

func TestInTx_SaveBalanceRejectsBrokenInvariant(t *testing.T) {
	ctx := context.Background()
	s := New()

	err := s.InTx(ctx, func(tx core.Tx) error {
		return tx.SaveBalance(ctx, &core.StockBalance{
			LocationID: "L1", ProductID: "P1",
			Quantity: decimal.NewFromInt(1), Reserved: decimal.NewFromInt(2),
		})
	})
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestInTx_DuplicateCodeConflictsAtCommit(t *testing.T) {
	ctx := context.Background()
	s := New()
	save := func(id string) error {
		return s.InTx(ctx, func(tx core.Tx) error {
			return tx.SaveProduct(ctx, &core.Product{ID: id, Code: "CIM-50", IsActive: true})
		})
	}
	require.NoError(t, save("a"))
	require.ErrorIs(t, save("b"), core.ErrConflict)
	require.NoError(t, save("a"), "re-saving the same product is an update")
}

func TestLockBalances_SerializesSameKey(t *testing.T) {
	ctx := context.Background()
	s := New(WithStripes(8))
	k := core.BalanceKey{LocationID: "L1", ProductID: "P1"}

	locked := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_ = s.InTx(ctx, func(tx core.Tx) error {
			_, err := tx.LockBalances(ctx, []core.BalanceKey{k})
			close(locked)
			<-release
			return err
		})
	}()
	<-locked

	go func() {
		defer close(done)
		_ = s.InTx(ctx, func(tx core.Tx) error {
			_, err := tx.LockBalances(ctx, []core.BalanceKey{k})
			return err
		})
	}()

	select {
	case <-done:
		t.Fatal("second transaction acquired a held balance lock")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second transaction never acquired the lock")
	}
}

func TestLockKeys_RejectsDescendingSecondBatch(t *testing.T) {
	lt := newLockTable(4)
	l := newTxLocks(lt)
	defer l.releaseAll()

	var hi, lo core.BalanceKey
	for i := 0; ; i++ {
		k := core.BalanceKey{LocationID: "L", ProductID: string(rune('a' + i))}
		switch lt.stripe(k) {
		case 3:
			hi = k
		case 0:
			lo = k
		}
		if hi.ProductID != "" && lo.ProductID != "" {
			break
		}
	}
	require.NoError(t, l.lockKeys([]core.BalanceKey{hi}))
	require.Error(t, l.lockKeys([]core.BalanceKey{lo}))
	require.NoError(t, l.lockKeys([]core.BalanceKey{hi}), "held stripes are not locked twice")
}

func TestEntityLocks_DroppedAfterRelease(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.InTx(ctx, func(tx core.Tx) error {
				// Half contend on one transfer, the rest each use their own.
				id := "T-shared"
				if i%2 == 1 {
					id = fmt.Sprintf("T-%d", i)
				}
				_, _ = tx.LockTransfer(ctx, id)
				_, _ = tx.LockLocation(ctx, fmt.Sprintf("L-%d", i))
				return nil
			})
		}(i)
	}
	wg.Wait()

	assert.Zero(t, s.locks.size(), "no entity mutex outlives its transactions")

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.InTx(ctx, func(tx core.Tx) error {
			_, _ = tx.LockLocation(ctx, "L-held")
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	assert.Equal(t, 1, s.locks.size())
	close(release)
	assert.Eventually(t, func() bool { return s.locks.size() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestListMaterialRequests_Pagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	err := s.InTx(ctx, func(tx core.Tx) error {
		for i := 0; i < 5; i++ {
			r := &core.MaterialRequest{
				ID:          string(rune('a' + i)),
				Code:        "RM-2026-000" + string(rune('1'+i)),
				Status:      core.RequestDraft,
				RequestedAt: base.Add(time.Duration(i) * time.Hour),
			}
			if err := tx.SaveMaterialRequest(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, total, err := s.ListMaterialRequests(ctx, core.RequestFilter{Page: core.Page{Page: 2, PageSize: 2}})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, got, 2)
	assert.Equal(t, "RM-2026-0003", got[0].Code)
	assert.Equal(t, "RM-2026-0002", got[1].Code)
}
