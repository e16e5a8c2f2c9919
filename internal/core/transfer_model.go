package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus is the lifecycle state of a StockTransfer.
//
//	DRAFT → PENDING → APPROVED | REJECTED
//	APPROVED → IN_TRANSIT → DELIVERED | DELIVERED_WITH_DISCREPANCY
//	DRAFT | PENDING | APPROVED → CANCELLED
type TransferStatus string

const (
	TransferDraft                    TransferStatus = "DRAFT"
	TransferPending                  TransferStatus = "PENDING"
	TransferApproved                 TransferStatus = "APPROVED"
	TransferRejected                 TransferStatus = "REJECTED"
	TransferInTransit                TransferStatus = "IN_TRANSIT"
	TransferDelivered                TransferStatus = "DELIVERED"
	TransferDeliveredWithDiscrepancy TransferStatus = "DELIVERED_WITH_DISCREPANCY"
	TransferCancelled                TransferStatus = "CANCELLED"
)

// StockTransfer moves stock between two locations.
type StockTransfer struct {
	ID                    string              `json:"id"`
	Code                  string              `json:"code"`
	SourceLocationID      string              `json:"source_location_id"`
	DestinationLocationID string              `json:"destination_location_id"`
	RequesterID           string              `json:"requester_id"`
	ApproverID            *string             `json:"approver_id,omitempty"`
	ShipperID             *string             `json:"shipper_id,omitempty"`
	ReceiverID            *string             `json:"receiver_id,omitempty"`
	Status                TransferStatus      `json:"status"`
	VehiclePlate          string              `json:"vehicle_plate,omitempty"`
	DriverName            string              `json:"driver_name,omitempty"`
	ReceiverSignature     string              `json:"receiver_signature,omitempty"`
	Notes                 string              `json:"notes,omitempty"`
	RejectionReason       string              `json:"rejection_reason,omitempty"`
	CancelReason          string              `json:"cancel_reason,omitempty"`
	TotalItems            int                 `json:"total_items"`
	TotalValue            decimal.Decimal     `json:"total_value"`
	RequestedAt           time.Time           `json:"requested_at"`
	SubmittedAt           *time.Time          `json:"submitted_at,omitempty"`
	ApprovedAt            *time.Time          `json:"approved_at,omitempty"`
	ShippedAt             *time.Time          `json:"shipped_at,omitempty"`
	ReceivedAt            *time.Time          `json:"received_at,omitempty"`
	CancelledAt           *time.Time          `json:"cancelled_at,omitempty"`
	UpdatedAt             time.Time           `json:"updated_at"`
	Items                 []StockTransferItem `json:"items"`
}

// StockTransferItem is one product line of a transfer.
type StockTransferItem struct {
	ID               string               `json:"id"`
	TransferID       string               `json:"transfer_id"`
	ProductID        string               `json:"product_id"`
	LotID            *string              `json:"lot_id,omitempty"`
	Quantity         decimal.Decimal      `json:"quantity"`
	UnitPrice        decimal.Decimal      `json:"unit_price"`
	ShippedQuantity  *decimal.Decimal     `json:"shipped_quantity,omitempty"`
	ReceivedQuantity *decimal.Decimal     `json:"received_quantity,omitempty"`
	Discrepancy      *TransferDiscrepancy `json:"discrepancy,omitempty"`
}

// TransferDiscrepancy records a difference between shipped and received quantity.
type TransferDiscrepancy struct {
	Expected decimal.Decimal `json:"expected"`
	Received decimal.Decimal `json:"received"`
	Reason   string          `json:"reason"`
}

// Clone returns a deep copy of t.
func (t *StockTransfer) Clone() *StockTransfer {
	if t == nil {
		return nil
	}
	c := *t
	c.Items = make([]StockTransferItem, len(t.Items))
	for i, it := range t.Items {
		if it.Discrepancy != nil {
			d := *it.Discrepancy
			it.Discrepancy = &d
		}
		c.Items[i] = it
	}
	return &c
}

// recomputeTotals refreshes TotalItems and TotalValue from the item list.
func (t *StockTransfer) recomputeTotals() {
	t.TotalItems = len(t.Items)
	total := decimal.Zero
	for _, it := range t.Items {
		total = total.Add(it.Quantity.Mul(it.UnitPrice))
	}
	t.TotalValue = total
}

// CreateTransferInput is the input for creating a DRAFT transfer.
type CreateTransferInput struct {
	SourceLocationID      string
	DestinationLocationID string
	RequesterID           string
	Notes                 string
	Items                 []TransferItemInput
}

// TransferItemInput is one line of a new or edited transfer.
type TransferItemInput struct {
	ProductID string
	LotID     *string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
}

// ReceiptLine overrides the received quantity of one transfer item.
// Reason is mandatory when ReceivedQuantity differs from the shipped quantity.
type ReceiptLine struct {
	ItemID           string
	ReceivedQuantity decimal.Decimal
	Reason           string
}

// TransferFilter narrows transfer listings. Empty fields match everything.
type TransferFilter struct {
	Status                TransferStatus
	SourceLocationID      string
	DestinationLocationID string
	Search                string // matched against code and notes, case-insensitive
	Page                  Page
}
