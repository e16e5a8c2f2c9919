package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the lifecycle state of a MaterialRequest.
//
//	DRAFT → PENDING → APPROVED | PARTIALLY_APPROVED | REJECTED
//	APPROVED | PARTIALLY_APPROVED → SEPARATING → DELIVERED
//	DRAFT | PENDING | APPROVED | PARTIALLY_APPROVED → CANCELLED
type RequestStatus string

const (
	RequestDraft             RequestStatus = "DRAFT"
	RequestPending           RequestStatus = "PENDING"
	RequestApproved          RequestStatus = "APPROVED"
	RequestPartiallyApproved RequestStatus = "PARTIALLY_APPROVED"
	RequestRejected          RequestStatus = "REJECTED"
	RequestSeparating        RequestStatus = "SEPARATING"
	RequestDelivered         RequestStatus = "DELIVERED"
	RequestCancelled         RequestStatus = "CANCELLED"
)

// Priority of a material request.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// MaterialRequest asks a source location to release material to a work front.
type MaterialRequest struct {
	ID                    string                `json:"id"`
	Code                  string                `json:"code"`
	ContractID            string                `json:"contract_id"`
	WorkFrontID           *string               `json:"work_front_id,omitempty"`
	ActivityID            *string               `json:"activity_id,omitempty"`
	SourceLocationID      string                `json:"source_location_id"`
	DestinationLocationID *string               `json:"destination_location_id,omitempty"`
	RequesterID           string                `json:"requester_id"`
	ApproverID            *string               `json:"approver_id,omitempty"`
	SeparatorID           *string               `json:"separator_id,omitempty"`
	DelivererID           *string               `json:"deliverer_id,omitempty"`
	ReceiverName          string                `json:"receiver_name,omitempty"`
	Status                RequestStatus         `json:"status"`
	Priority              Priority              `json:"priority"`
	NeededDate            *time.Time            `json:"needed_date,omitempty"`
	Notes                 string                `json:"notes,omitempty"`
	RejectionReason       string                `json:"rejection_reason,omitempty"`
	CancelReason          string                `json:"cancel_reason,omitempty"`
	RequestedAt           time.Time             `json:"requested_at"`
	SubmittedAt           *time.Time            `json:"submitted_at,omitempty"`
	ApprovedAt            *time.Time            `json:"approved_at,omitempty"`
	SeparatedAt           *time.Time            `json:"separated_at,omitempty"`
	DeliveredAt           *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time            `json:"cancelled_at,omitempty"`
	UpdatedAt             time.Time             `json:"updated_at"`
	Items                 []MaterialRequestItem `json:"items"`
}

// MaterialRequestItem is one requested product line.
type MaterialRequestItem struct {
	ID                string           `json:"id"`
	RequestID         string           `json:"request_id"`
	ProductID         string           `json:"product_id"`
	RequestedQuantity decimal.Decimal  `json:"requested_quantity"`
	ApprovedQuantity  *decimal.Decimal `json:"approved_quantity,omitempty"`
	SeparatedQuantity *decimal.Decimal `json:"separated_quantity,omitempty"`
	DeliveredQuantity *decimal.Decimal `json:"delivered_quantity,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

// approved returns ApprovedQuantity or zero when unset.
func (it MaterialRequestItem) approved() decimal.Decimal {
	if it.ApprovedQuantity == nil {
		return decimal.Zero
	}
	return *it.ApprovedQuantity
}

// separated returns SeparatedQuantity, falling back to the approved quantity.
func (it MaterialRequestItem) separated() decimal.Decimal {
	if it.SeparatedQuantity == nil {
		return it.approved()
	}
	return *it.SeparatedQuantity
}

// Clone returns a deep copy of r.
func (r *MaterialRequest) Clone() *MaterialRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.Items = make([]MaterialRequestItem, len(r.Items))
	copy(c.Items, r.Items)
	return &c
}

// CreateMaterialRequestInput is the input for creating a DRAFT material request.
type CreateMaterialRequestInput struct {
	ContractID            string
	WorkFrontID           *string
	ActivityID            *string
	SourceLocationID      string
	DestinationLocationID *string
	RequesterID           string
	Priority              Priority // empty means NORMAL
	NeededDate            *time.Time
	Notes                 string
	Items                 []RequestItemInput
}

// RequestItemInput is one line of a new or edited material request.
type RequestItemInput struct {
	ProductID string
	Quantity  decimal.Decimal
	Notes     string
}

// ItemApproval sets the approved quantity of one request item.
type ItemApproval struct {
	ItemID           string
	ApprovedQuantity decimal.Decimal
}

// ItemSeparation records how much of an approved item was actually picked.
type ItemSeparation struct {
	ItemID            string
	SeparatedQuantity decimal.Decimal
}

// RequestFilter narrows material request listings. Empty fields match everything.
type RequestFilter struct {
	Status           RequestStatus
	Priority         Priority
	ContractID       string
	WorkFrontID      string
	RequesterID      string
	SourceLocationID string
	Search           string // matched against code and notes, case-insensitive
	Page             Page
}
