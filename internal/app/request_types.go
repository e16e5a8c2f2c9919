package app

import (
	"time"

	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
)

// CreateLocationRequest is the input for CreateLocation.
type CreateLocationRequest struct {
	Code       string            `json:"code" jsonschema:"required,minLength=1"`
	Name       string            `json:"name" jsonschema:"required,minLength=1"`
	Type       core.LocationType `json:"type" jsonschema:"required,enum=CENTRAL,enum=FIELD,enum=TRANSIT"`
	ContractID *string           `json:"contract_id,omitempty"`
	ManagerID  *string           `json:"manager_id,omitempty"`
	ActorID    string            `json:"-"`
}

// CreateProductRequest is the input for CreateProduct.
type CreateProductRequest struct {
	Code     string `json:"code" jsonschema:"required,minLength=1"`
	Name     string `json:"name" jsonschema:"required,minLength=1"`
	Unit     string `json:"unit,omitempty" jsonschema:"default=UN"`
	Category string `json:"category,omitempty"`
	ActorID  string `json:"-"`
}

// StockEntryRequest is the input for ReceiveStock and AdjustStock.
// Quantity is positive for receipts and signed for adjustments.
type StockEntryRequest struct {
	LocationRef string          `json:"location" jsonschema:"required"`
	ProductRef  string          `json:"product" jsonschema:"required"`
	Quantity    decimal.Decimal `json:"quantity" jsonschema:"required" jsonschema_description:"Positive for receipts, signed for adjustments"`
	Note        string          `json:"note,omitempty" jsonschema_description:"Mandatory reason for adjustments"`
	ActorID     string          `json:"-"`
}

// SetLimitsRequest is the input for SetStockLimits.
type SetLimitsRequest struct {
	LocationRef string           `json:"location" jsonschema:"required"`
	ProductRef  string           `json:"product" jsonschema:"required"`
	MinStock    decimal.Decimal  `json:"min_stock" jsonschema:"required"`
	MaxStock    *decimal.Decimal `json:"max_stock,omitempty"`
}

// MovementQuery narrows ListMovements. Empty refs match everything.
type MovementQuery struct {
	LocationRef string
	ProductRef  string
	RefID       string
	Limit       int
}

// RequestLine is one product line of a material request.
type RequestLine struct {
	ProductRef string          `json:"product" jsonschema:"required"`
	Quantity   decimal.Decimal `json:"quantity" jsonschema:"required"`
	Notes      string          `json:"notes,omitempty"`
}

// CreateMaterialRequestRequest is the input for CreateMaterialRequest.
type CreateMaterialRequestRequest struct {
	ContractID             string        `json:"contract_id" jsonschema:"required"`
	WorkFrontID            *string       `json:"work_front_id,omitempty"`
	ActivityID             *string       `json:"activity_id,omitempty"`
	SourceLocationRef      string        `json:"source_location" jsonschema:"required"`
	DestinationLocationRef string        `json:"destination_location,omitempty"`
	Priority               core.Priority `json:"priority,omitempty" jsonschema:"enum=LOW,enum=NORMAL,enum=HIGH,enum=URGENT"`
	NeededDate             *time.Time    `json:"needed_date,omitempty"`
	Notes                  string        `json:"notes,omitempty"`
	Items                  []RequestLine `json:"items"`
	RequesterID            string        `json:"-"`
}

// TransferLine is one product line of a transfer.
type TransferLine struct {
	ProductRef string          `json:"product" jsonschema:"required"`
	LotID      *string         `json:"lot_id,omitempty"`
	Quantity   decimal.Decimal `json:"quantity" jsonschema:"required"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
}

// CreateTransferRequest is the input for CreateTransfer.
type CreateTransferRequest struct {
	SourceLocationRef      string         `json:"source_location" jsonschema:"required"`
	DestinationLocationRef string         `json:"destination_location" jsonschema:"required"`
	Notes                  string         `json:"notes,omitempty"`
	Items                  []TransferLine `json:"items"`
	RequesterID            string         `json:"-"`
}

// StartCountRequest is the input for StartCount.
type StartCountRequest struct {
	LocationRef string         `json:"location" jsonschema:"required" jsonschema_description:"Location ID or code"`
	CountType   core.CountType `json:"count_type,omitempty" jsonschema:"enum=FULL,enum=ROTATING,enum=SPOT"`
	Notes       string         `json:"notes,omitempty"`
	ProductRefs []string       `json:"products,omitempty" jsonschema_description:"Products to count; required for SPOT counts"`
	StartedBy   string         `json:"-"`
}
