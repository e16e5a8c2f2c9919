package app

import (
	"time"

	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
)

// LocationListResult is returned by ListLocations.
type LocationListResult struct {
	Locations []core.Location `json:"locations"`
}

// ProductListResult is returned by ListProducts.
type ProductListResult struct {
	Products []core.Product `json:"products"`
}

// StockLine is one balance joined with its location and product.
type StockLine struct {
	LocationID   string           `json:"location_id"`
	LocationCode string           `json:"location_code"`
	ProductID    string           `json:"product_id"`
	ProductCode  string           `json:"product_code"`
	ProductName  string           `json:"product_name"`
	Unit         string           `json:"unit"`
	Quantity     decimal.Decimal  `json:"quantity"`
	Reserved     decimal.Decimal  `json:"reserved"`
	Available    decimal.Decimal  `json:"available"`
	MinStock     decimal.Decimal  `json:"min_stock"`
	MaxStock     *decimal.Decimal `json:"max_stock,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StockResult is returned by GetStock.
type StockResult struct {
	Lines []StockLine `json:"lines"`
}

// MovementListResult is returned by ListMovements.
type MovementListResult struct {
	Movements []core.StockMovement `json:"movements"`
}

// RequestListResult is returned by ListRequests.
type RequestListResult struct {
	Requests []core.MaterialRequest `json:"requests"`
	Total    int                    `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
}

// TransferListResult is returned by ListTransfers.
type TransferListResult struct {
	Transfers []core.StockTransfer `json:"transfers"`
	Total     int                  `json:"total"`
	Page      int                  `json:"page"`
	PageSize  int                  `json:"page_size"`
}

// CountListResult is returned by ListCounts.
type CountListResult struct {
	Counts []core.InventoryCount `json:"counts"`
}

// CountItemsResult is returned by CountItems.
type CountItemsResult struct {
	CountID string               `json:"count_id"`
	Code    string               `json:"code"`
	Items   []core.CountItemView `json:"items"`
}
