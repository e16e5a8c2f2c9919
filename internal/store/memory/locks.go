package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/zeebo/xxh3"

	"fieldstock/internal/core"
)

// DefaultStripes is the number of balance lock stripes used by New.
const DefaultStripes = 256

// lockTable serializes transactions. Balance keys hash onto a fixed set of
// mutex stripes; documents and sequences get one mutex per name.
//
// Entity mutexes are reference counted and dropped when the last holder or
// waiter releases them, so the table only ever holds names some transaction
// is currently using. They are not striped: two unrelated names sharing a
// stripe would break the document, location, balance lock order.
type lockTable struct {
	stripes  []sync.Mutex
	entities *xsync.Map[string, *entityLock]
}

type entityLock struct {
	mu   sync.Mutex
	refs int // guarded by the map bucket, see acquire and release
}

func newLockTable(stripes int) *lockTable {
	if stripes <= 0 {
		stripes = DefaultStripes
	}
	return &lockTable{
		stripes:  make([]sync.Mutex, stripes),
		entities: xsync.NewMap[string, *entityLock](),
	}
}

func (lt *lockTable) stripe(k core.BalanceKey) int {
	return int(xxh3.HashString(k.String()) % uint64(len(lt.stripes)))
}

// acquire registers interest in name before blocking on its mutex, so a
// concurrent release cannot drop the entry while this caller waits.
func (lt *lockTable) acquire(name string) *entityLock {
	e, _ := lt.entities.Compute(name, func(old *entityLock, loaded bool) (*entityLock, xsync.ComputeOp) {
		if !loaded {
			old = &entityLock{}
		}
		old.refs++
		return old, xsync.UpdateOp
	})
	e.mu.Lock()
	return e
}

func (lt *lockTable) release(name string, e *entityLock) {
	e.mu.Unlock()
	lt.entities.Compute(name, func(old *entityLock, loaded bool) (*entityLock, xsync.ComputeOp) {
		if !loaded {
			return old, xsync.CancelOp
		}
		old.refs--
		if old.refs == 0 {
			return old, xsync.DeleteOp
		}
		return old, xsync.UpdateOp
	})
}

// size reports how many entity names are currently tracked.
func (lt *lockTable) size() int {
	return lt.entities.Size()
}

// txLocks tracks what one transaction holds. Everything is released together
// when the transaction ends.
type txLocks struct {
	table    *lockTable
	stripes  []int
	entities map[string]*entityLock
}

func newTxLocks(table *lockTable) txLocks {
	return txLocks{table: table, entities: make(map[string]*entityLock)}
}

func (l *txLocks) lockEntity(name string) {
	if _, held := l.entities[name]; held {
		return
	}
	l.entities[name] = l.table.acquire(name)
}

// lockKeys acquires the stripes of keys in ascending order. A transaction may
// add stripes later only above the ones it already holds; anything else could
// deadlock against a transaction locking in the opposite order.
func (l *txLocks) lockKeys(keys []core.BalanceKey) error {
	held := make(map[int]bool, len(l.stripes))
	for _, s := range l.stripes {
		held[s] = true
	}
	var want []int
	for _, k := range keys {
		s := l.table.stripe(k)
		if !held[s] {
			held[s] = true
			want = append(want, s)
		}
	}
	if len(want) == 0 {
		return nil
	}
	sort.Ints(want)
	if n := len(l.stripes); n > 0 && want[0] < l.stripes[n-1] {
		return fmt.Errorf("balance stripe %d requested after stripe %d: lock all balances of a transaction in one call",
			want[0], l.stripes[n-1])
	}
	for _, s := range want {
		l.table.stripes[s].Lock()
		l.stripes = append(l.stripes, s)
	}
	return nil
}

func (l *txLocks) releaseAll() {
	for i := len(l.stripes) - 1; i >= 0; i-- {
		l.table.stripes[l.stripes[i]].Unlock()
	}
	l.stripes = nil
	for name, e := range l.entities {
		l.table.release(name, e)
		delete(l.entities, name)
	}
}
