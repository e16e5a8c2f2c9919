package core

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the persistence collaborator.
//
// InTx runs fn inside one transaction: if fn returns an error nothing it wrote
// is visible afterwards. Lock* methods on Tx hold their lock until the
// transaction ends, which is how mutations on one balance key or one workflow
// document are serialized.
type Store interface {
	Reader
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Reader is the non-locking read side of a Store. Single-entity getters
// return an error wrapping ErrNotFound when the entity does not exist.
type Reader interface {
	GetLocation(ctx context.Context, id string) (*Location, error)
	GetLocationByCode(ctx context.Context, code string) (*Location, error)
	ListLocations(ctx context.Context, includeInactive bool) ([]Location, error)

	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	GetBalance(ctx context.Context, key BalanceKey) (*StockBalance, error)
	ListBalances(ctx context.Context, filter BalanceFilter) ([]StockBalance, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)

	GetMaterialRequest(ctx context.Context, id string) (*MaterialRequest, error)
	GetMaterialRequestByCode(ctx context.Context, code string) (*MaterialRequest, error)
	ListMaterialRequests(ctx context.Context, filter RequestFilter) ([]MaterialRequest, int, error)

	GetTransfer(ctx context.Context, id string) (*StockTransfer, error)
	GetTransferByCode(ctx context.Context, code string) (*StockTransfer, error)
	ListTransfers(ctx context.Context, filter TransferFilter) ([]StockTransfer, int, error)

	GetCount(ctx context.Context, id string) (*InventoryCount, error)
	GetCountByCode(ctx context.Context, code string) (*InventoryCount, error)
	ListCounts(ctx context.Context, filter CountFilter) ([]InventoryCount, error)

	ListAudit(ctx context.Context, entityType, entityID string) ([]AuditEntry, error)
}

// Tx is one unit of work against the Store.
type Tx interface {
	// LockBalances locks the balances of keys in SortedKeys order, creating
	// empty balances for keys that have none. The returned balances are
	// private copies; write them back with SaveBalance.
	LockBalances(ctx context.Context, keys []BalanceKey) (map[BalanceKey]*StockBalance, error)
	SaveBalance(ctx context.Context, b *StockBalance) error
	InsertMovement(ctx context.Context, m *StockMovement) error
	// LocationBalances reads the balances of one location without locking them.
	LocationBalances(ctx context.Context, locationID string) ([]StockBalance, error)

	LockLocation(ctx context.Context, id string) (*Location, error)
	SaveLocation(ctx context.Context, l *Location) error
	SaveProduct(ctx context.Context, p *Product) error

	// NextSequence returns the next gapless number for (prefix, year), starting at 1.
	NextSequence(ctx context.Context, prefix string, year int) (int64, error)

	LockMaterialRequest(ctx context.Context, id string) (*MaterialRequest, error)
	SaveMaterialRequest(ctx context.Context, r *MaterialRequest) error

	LockTransfer(ctx context.Context, id string) (*StockTransfer, error)
	SaveTransfer(ctx context.Context, t *StockTransfer) error

	LockCount(ctx context.Context, id string) (*InventoryCount, error)
	// LockCountByItem locks the count owning itemID.
	LockCountByItem(ctx context.Context, itemID string) (*InventoryCount, error)
	// OpenCount returns the IN_PROGRESS count at locationID or ErrNotFound.
	OpenCount(ctx context.Context, locationID string) (*InventoryCount, error)
	SaveCount(ctx context.Context, c *InventoryCount) error

	AppendAudit(ctx context.Context, e *AuditEntry) error
}

// AuditEntry records one change to a workflow document or master record.
type AuditEntry struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Action     string          `json:"action"`
	ActorID    string          `json:"actor_id"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
