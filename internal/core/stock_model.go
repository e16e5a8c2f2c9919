package core

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LocationType classifies a stock location.
type LocationType string

const (
	LocationCentral LocationType = "CENTRAL"
	LocationField   LocationType = "FIELD"
	LocationTransit LocationType = "TRANSIT"
)

// Valid reports whether t is a known location type.
func (t LocationType) Valid() bool {
	switch t {
	case LocationCentral, LocationField, LocationTransit:
		return true
	}
	return false
}

// Location is a place that holds stock: a central warehouse, a field site or a
// transit buffer. Locations are soft-deleted once they exist.
type Location struct {
	ID         string       `json:"id"`
	Code       string       `json:"code"`
	Name       string       `json:"name"`
	Type       LocationType `json:"type"`
	ContractID *string      `json:"contract_id,omitempty"`
	ManagerID  *string      `json:"manager_id,omitempty"`
	IsActive   bool         `json:"is_active"`
	CreatedAt  time.Time    `json:"created_at"`
	DeletedAt  *time.Time   `json:"deleted_at,omitempty"`
}

// Product is a stocked material.
type Product struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Category  string    `json:"category"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// BalanceKey identifies one StockBalance.
type BalanceKey struct {
	LocationID string `json:"location_id"`
	ProductID  string `json:"product_id"`
}

func (k BalanceKey) String() string {
	return k.LocationID + "/" + k.ProductID
}

// Less orders keys by location, then product. Stores lock keys in this order.
func (k BalanceKey) Less(o BalanceKey) bool {
	if k.LocationID != o.LocationID {
		return k.LocationID < o.LocationID
	}
	return k.ProductID < o.ProductID
}

// SortedKeys returns keys deduplicated and in lock order.
func SortedKeys(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(keys))
	out := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// StockBalance holds the counters for one (location, product) pair.
//
// Invariant: 0 <= Reserved <= Quantity. Only the Ledger writes Quantity and Reserved.
type StockBalance struct {
	LocationID string           `json:"location_id"`
	ProductID  string           `json:"product_id"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Reserved   decimal.Decimal  `json:"reserved"`
	MinStock   decimal.Decimal  `json:"min_stock"`
	MaxStock   *decimal.Decimal `json:"max_stock,omitempty"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// NewBalance returns an empty balance for key.
func NewBalance(key BalanceKey) *StockBalance {
	return &StockBalance{LocationID: key.LocationID, ProductID: key.ProductID}
}

func (b StockBalance) Key() BalanceKey {
	return BalanceKey{LocationID: b.LocationID, ProductID: b.ProductID}
}

// Available is Quantity minus Reserved.
func (b StockBalance) Available() decimal.Decimal {
	return b.Quantity.Sub(b.Reserved)
}

// CheckInvariant returns ErrInvalidState if the balance violates 0 <= reserved <= quantity.
func (b StockBalance) CheckInvariant() error {
	if b.Reserved.IsNegative() {
		return fmt.Errorf("%w: balance %s has negative reserved quantity %s", ErrInvalidState, b.Key(), b.Reserved)
	}
	if b.Reserved.GreaterThan(b.Quantity) {
		return fmt.Errorf("%w: balance %s reserves %s of %s", ErrInvalidState, b.Key(), b.Reserved, b.Quantity)
	}
	return nil
}

// MovementKind names a ledger operation.
type MovementKind string

const (
	MovementReserve   MovementKind = "RESERVE"
	MovementRelease   MovementKind = "RELEASE"
	MovementCommitOut MovementKind = "COMMIT_OUT"
	MovementCommitIn  MovementKind = "COMMIT_IN"
	MovementAdjust    MovementKind = "ADJUST"
)

// Reference ties a ledger movement to the business document that caused it.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Note string `json:"note,omitempty"`
}

// Reference types written by the workflows.
const (
	RefMaterialRequest = "MATERIAL_REQUEST"
	RefStockTransfer   = "STOCK_TRANSFER"
	RefInventoryCount  = "INVENTORY_COUNT"
	RefManual          = "MANUAL"
)

// Movement is one ledger operation requested by a caller.
// Quantity is the delta for MovementAdjust and a positive amount otherwise.
type Movement struct {
	Key      BalanceKey
	Kind     MovementKind
	Quantity decimal.Decimal
	Ref      Reference
}

// StockMovement is the journal row recorded for every applied Movement.
type StockMovement struct {
	ID            string          `json:"id"`
	LocationID    string          `json:"location_id"`
	ProductID     string          `json:"product_id"`
	Kind          MovementKind    `json:"kind"`
	Quantity      decimal.Decimal `json:"quantity"`
	QuantityAfter decimal.Decimal `json:"quantity_after"`
	ReservedAfter decimal.Decimal `json:"reserved_after"`
	RefType       string          `json:"ref_type"`
	RefID         string          `json:"ref_id"`
	Note          string          `json:"note,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// BalanceFilter narrows balance listings. Empty fields match everything.
type BalanceFilter struct {
	LocationID string
	ProductID  string
}

// MovementFilter narrows movement listings. Limit <= 0 means no limit.
type MovementFilter struct {
	LocationID string
	ProductID  string
	RefID      string
	Limit      int
}

// Page requests one page of a listing. Page is 1-based.
type Page struct {
	Page     int
	PageSize int
}

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// Normalize fills defaults and clamps the page size.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

// Offset is the number of rows skipped before this page.
func (p Page) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PageSize
}
