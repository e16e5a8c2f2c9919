package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CountStatus is the lifecycle state of an InventoryCount.
type CountStatus string

const (
	CountInProgress CountStatus = "IN_PROGRESS"
	CountCompleted  CountStatus = "COMPLETED"
	CountCancelled  CountStatus = "CANCELLED"
)

// CountType describes the scope of a count.
type CountType string

const (
	CountFull     CountType = "FULL"
	CountRotating CountType = "ROTATING"
	CountSpot     CountType = "SPOT"
)

func (t CountType) Valid() bool {
	switch t {
	case CountFull, CountRotating, CountSpot:
		return true
	}
	return false
}

// InventoryCount reconciles system quantities at one location with a physical count.
type InventoryCount struct {
	ID            string               `json:"id"`
	Code          string               `json:"code"`
	LocationID    string               `json:"location_id"`
	CountType     CountType            `json:"count_type"`
	Status        CountStatus          `json:"status"`
	TotalItems    int                  `json:"total_items"`
	ItemsCounted  int                  `json:"items_counted"`
	Discrepancies int                  `json:"discrepancies"`
	Notes         string               `json:"notes,omitempty"`
	StartedBy     string               `json:"started_by"`
	CompletedBy   *string              `json:"completed_by,omitempty"`
	CancelReason  string               `json:"cancel_reason,omitempty"`
	StartedAt     time.Time            `json:"started_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	CancelledAt   *time.Time           `json:"cancelled_at,omitempty"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Items         []InventoryCountItem `json:"items"`
}

// InventoryCountItem compares the snapshot quantity of one product with its count.
type InventoryCountItem struct {
	ID         string           `json:"id"`
	CountID    string           `json:"count_id"`
	ProductID  string           `json:"product_id"`
	SystemQty  decimal.Decimal  `json:"system_qty"`
	CountedQty *decimal.Decimal `json:"counted_qty,omitempty"`
	Difference *decimal.Decimal `json:"difference,omitempty"`
	Notes      string           `json:"notes,omitempty"`
	CountedBy  *string          `json:"counted_by,omitempty"`
	CountedAt  *time.Time       `json:"counted_at,omitempty"`
}

func (it InventoryCountItem) counted() bool {
	return it.CountedQty != nil
}

func (it InventoryCountItem) divergent() bool {
	return it.Difference != nil && !it.Difference.IsZero()
}

// Clone returns a deep copy of c.
func (c *InventoryCount) Clone() *InventoryCount {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Items = make([]InventoryCountItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// recomputeAggregates derives TotalItems, ItemsCounted and Discrepancies from the items.
func (c *InventoryCount) recomputeAggregates() {
	c.TotalItems = len(c.Items)
	c.ItemsCounted = 0
	c.Discrepancies = 0
	for _, it := range c.Items {
		if it.counted() {
			c.ItemsCounted++
		}
		if it.divergent() {
			c.Discrepancies++
		}
	}
}

// StartCountInput is the input for starting a count.
// ProductIDs restricts the count to those products; it is required for SPOT counts.
type StartCountInput struct {
	LocationID string
	CountType  CountType
	StartedBy  string
	Notes      string
	ProductIDs []string
}

// CountItemStatus filters count items.
type CountItemStatus string

const (
	CountItemsAll       CountItemStatus = ""
	CountItemsPending   CountItemStatus = "pending"
	CountItemsCounted   CountItemStatus = "counted"
	CountItemsDivergent CountItemStatus = "divergent"
)

// CountItemFilter narrows the item list of one count.
type CountItemFilter struct {
	Status CountItemStatus
	Search string // product name or code, case-insensitive
}

// CountItemView is a count item joined with its product.
type CountItemView struct {
	InventoryCountItem
	ProductCode string `json:"product_code"`
	ProductName string `json:"product_name"`
	Unit        string `json:"unit"`
}

// CountProgress summarizes how far a count has got.
type CountProgress struct {
	CountID       string      `json:"count_id"`
	Status        CountStatus `json:"status"`
	TotalItems    int         `json:"total_items"`
	ItemsCounted  int         `json:"items_counted"`
	Discrepancies int         `json:"discrepancies"`
	Percent       float64     `json:"percent"`
}

// CountFilter narrows count listings. Empty fields match everything.
type CountFilter struct {
	LocationID string
	Status     CountStatus
}
