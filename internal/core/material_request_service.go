package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaterialRequestService manages the material request lifecycle.
// Stock is reserved at approval and leaves the source location at delivery.
type MaterialRequestService interface {
	Create(ctx context.Context, in CreateMaterialRequestInput) (*MaterialRequest, error)
	// AddItem and RemoveItem edit a DRAFT request.
	AddItem(ctx context.Context, requestID, actorID string, item RequestItemInput) (*MaterialRequest, error)
	RemoveItem(ctx context.Context, requestID, actorID, itemID string) (*MaterialRequest, error)

	// Submit transitions DRAFT → PENDING. Nothing is reserved yet.
	Submit(ctx context.Context, requestID, actorID string) (*MaterialRequest, error)
	// Approve transitions PENDING → APPROVED, reserving every requested quantity.
	// Either every item is reserved or none is.
	Approve(ctx context.Context, requestID, approverID string) (*MaterialRequest, error)
	// ApproveWithItems transitions PENDING → APPROVED or PARTIALLY_APPROVED using
	// per-item approved quantities. Items not listed are approved in full.
	ApproveWithItems(ctx context.Context, requestID, approverID string, items []ItemApproval) (*MaterialRequest, error)
	// Reject transitions PENDING → REJECTED.
	Reject(ctx context.Context, requestID, approverID, reason string) (*MaterialRequest, error)
	// StartSeparation transitions APPROVED | PARTIALLY_APPROVED → SEPARATING.
	// Each listed item records a separated quantity between 0 and its approved
	// quantity; items not listed are separated in full.
	StartSeparation(ctx context.Context, requestID, actorID string, separations []ItemSeparation) (*MaterialRequest, error)
	// Deliver transitions SEPARATING → DELIVERED. The separated quantity is
	// committed out and any approved remainder is released.
	Deliver(ctx context.Context, requestID, delivererID, receiverName string) (*MaterialRequest, error)
	// Cancel transitions DRAFT | PENDING → CANCELLED. Approved requests may also
	// be cancelled; their reservations are released in the same transaction.
	Cancel(ctx context.Context, requestID, actorID, reason string) (*MaterialRequest, error)

	Get(ctx context.Context, requestID string) (*MaterialRequest, error)
	GetByCode(ctx context.Context, code string) (*MaterialRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]MaterialRequest, int, error)
}

type materialRequestService struct {
	workflow
}

// NewMaterialRequestService constructs a MaterialRequestService.
func NewMaterialRequestService(store Store, ledger *Ledger, opts Options) MaterialRequestService {
	return &materialRequestService{workflow: newWorkflow(store, ledger, opts)}
}

func (s *materialRequestService) Create(ctx context.Context, in CreateMaterialRequestInput) (*MaterialRequest, error) {
	if err := requireActor(in.RequesterID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ContractID) == "" {
		return nil, fmt.Errorf("%w: contract is required", ErrValidation)
	}
	if in.Priority == "" {
		in.Priority = PriorityNormal
	}
	if !in.Priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, in.Priority)
	}
	if _, err := s.activeLocation(ctx, in.SourceLocationID, "source"); err != nil {
		return nil, err
	}
	if in.DestinationLocationID != nil {
		if _, err := s.activeLocation(ctx, *in.DestinationLocationID, "destination"); err != nil {
			return nil, err
		}
	}

	now := s.opts.Now()
	r := &MaterialRequest{
		ID:                    uuid.NewString(),
		ContractID:            in.ContractID,
		WorkFrontID:           in.WorkFrontID,
		ActivityID:            in.ActivityID,
		SourceLocationID:      in.SourceLocationID,
		DestinationLocationID: in.DestinationLocationID,
		RequesterID:           in.RequesterID,
		Status:                RequestDraft,
		Priority:              in.Priority,
		NeededDate:            in.NeededDate,
		Notes:                 in.Notes,
		RequestedAt:           now,
		UpdatedAt:             now,
	}
	for i, item := range in.Items {
		if err := s.appendItem(ctx, r, item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}

	err := s.store.InTx(ctx, func(tx Tx) error {
		code, err := s.nextCode(ctx, tx, prefixMaterialRequest)
		if err != nil {
			return err
		}
		r.Code = code
		if err := tx.SaveMaterialRequest(ctx, r); err != nil {
			return fmt.Errorf("failed to insert material request: %w", err)
		}
		return s.audit(ctx, tx, EntityMaterialRequest, r.ID, "create", in.RequesterID, nil, r)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("material request created", "code", r.Code, "items", len(r.Items))
	return r, nil
}

func (s *materialRequestService) appendItem(ctx context.Context, r *MaterialRequest, in RequestItemInput) error {
	if err := s.checkProduct(ctx, in.ProductID); err != nil {
		return err
	}
	if err := positive(in.Quantity, "requested quantity"); err != nil {
		return err
	}
	for _, it := range r.Items {
		if it.ProductID == in.ProductID {
			return fmt.Errorf("%w: product %s is already on request %s", ErrValidation, in.ProductID, r.Code)
		}
	}
	r.Items = append(r.Items, MaterialRequestItem{
		ID:                uuid.NewString(),
		RequestID:         r.ID,
		ProductID:         in.ProductID,
		RequestedQuantity: in.Quantity,
		Notes:             in.Notes,
	})
	return nil
}

func (s *materialRequestService) AddItem(ctx context.Context, requestID, actorID string, item RequestItemInput) (*MaterialRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, actorID, "add_item", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestDraft {
			return fmt.Errorf("%w: request %s cannot be edited: status is %s (must be DRAFT)", ErrInvalidTransition, r.Code, r.Status)
		}
		return s.appendItem(ctx, r, item)
	})
}

func (s *materialRequestService) RemoveItem(ctx context.Context, requestID, actorID, itemID string) (*MaterialRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, actorID, "remove_item", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestDraft {
			return fmt.Errorf("%w: request %s cannot be edited: status is %s (must be DRAFT)", ErrInvalidTransition, r.Code, r.Status)
		}
		for i, it := range r.Items {
			if it.ID == itemID {
				r.Items = append(r.Items[:i], r.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("item %s on request %s: %w", itemID, r.Code, ErrNotFound)
	})
}

func (s *materialRequestService) Submit(ctx context.Context, requestID, actorID string) (*MaterialRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, actorID, "submit", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestDraft {
			return fmt.Errorf("%w: request %s cannot be submitted: status is %s (must be DRAFT)", ErrInvalidTransition, r.Code, r.Status)
		}
		if len(r.Items) == 0 {
			return fmt.Errorf("%w: request %s has no items", ErrValidation, r.Code)
		}
		r.Status = RequestPending
		r.SubmittedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *materialRequestService) Approve(ctx context.Context, requestID, approverID string) (*MaterialRequest, error) {
	return s.approve(ctx, requestID, approverID, nil)
}

func (s *materialRequestService) ApproveWithItems(ctx context.Context, requestID, approverID string, items []ItemApproval) (*MaterialRequest, error) {
	return s.approve(ctx, requestID, approverID, items)
}

func (s *materialRequestService) approve(ctx context.Context, requestID, approverID string, approvals []ItemApproval) (*MaterialRequest, error) {
	if err := requireActor(approverID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, approverID, "approve", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestPending {
			return fmt.Errorf("%w: request %s cannot be approved: status is %s (must be PENDING)", ErrInvalidTransition, r.Code, r.Status)
		}

		byItem := make(map[string]decimal.Decimal, len(approvals))
		for _, a := range approvals {
			if _, dup := byItem[a.ItemID]; dup {
				return fmt.Errorf("%w: item %s is approved twice", ErrValidation, a.ItemID)
			}
			byItem[a.ItemID] = a.ApprovedQuantity
		}
		known := make(map[string]bool, len(r.Items))
		for _, it := range r.Items {
			known[it.ID] = true
		}
		for id := range byItem {
			if !known[id] {
				return fmt.Errorf("item %s on request %s: %w", id, r.Code, ErrNotFound)
			}
		}

		partial := false
		var movements []Movement
		for i := range r.Items {
			it := &r.Items[i]
			qty := it.RequestedQuantity
			if v, ok := byItem[it.ID]; ok {
				qty = v
			}
			if qty.IsNegative() || qty.GreaterThan(it.RequestedQuantity) {
				return fmt.Errorf("%w: approved quantity %s for product %s must be between 0 and %s",
					ErrInvalidQuantity, qty, it.ProductID, it.RequestedQuantity)
			}
			if qty.LessThan(it.RequestedQuantity) {
				partial = true
			}
			it.ApprovedQuantity = ptr(qty)
			if qty.IsPositive() {
				movements = append(movements, Movement{
					Key:      BalanceKey{LocationID: r.SourceLocationID, ProductID: it.ProductID},
					Kind:     MovementReserve,
					Quantity: qty,
					Ref:      Reference{Type: RefMaterialRequest, ID: r.ID, Note: "approved " + r.Code},
				})
			}
		}
		if len(movements) == 0 {
			return fmt.Errorf("%w: request %s approves nothing; reject it instead", ErrInvalidQuantity, r.Code)
		}

		if _, err := s.ledger.ApplyTx(ctx, tx, movements); err != nil {
			return fmt.Errorf("request %s: %w", r.Code, err)
		}

		r.Status = RequestApproved
		if partial {
			r.Status = RequestPartiallyApproved
		}
		r.ApproverID = ptr(approverID)
		r.ApprovedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *materialRequestService) Reject(ctx context.Context, requestID, approverID, reason string) (*MaterialRequest, error) {
	if err := requireActor(approverID); err != nil {
		return nil, err
	}
	if err := requireReason(reason, "reject a request"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, approverID, "reject", reason, func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestPending {
			return fmt.Errorf("%w: request %s cannot be rejected: status is %s (must be PENDING)", ErrInvalidTransition, r.Code, r.Status)
		}
		r.Status = RequestRejected
		r.ApproverID = ptr(approverID)
		r.RejectionReason = reason
		return nil
	})
}

func (s *materialRequestService) StartSeparation(ctx context.Context, requestID, actorID string, separations []ItemSeparation) (*MaterialRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, actorID, "start_separation", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestApproved && r.Status != RequestPartiallyApproved {
			return fmt.Errorf("%w: request %s cannot start separation: status is %s (must be APPROVED or PARTIALLY_APPROVED)",
				ErrInvalidTransition, r.Code, r.Status)
		}
		byItem := make(map[string]decimal.Decimal, len(separations))
		for _, sep := range separations {
			if _, dup := byItem[sep.ItemID]; dup {
				return fmt.Errorf("%w: item %s is separated twice", ErrValidation, sep.ItemID)
			}
			byItem[sep.ItemID] = sep.SeparatedQuantity
		}
		known := make(map[string]bool, len(r.Items))
		for _, it := range r.Items {
			known[it.ID] = true
		}
		for id := range byItem {
			if !known[id] {
				return fmt.Errorf("item %s on request %s: %w", id, r.Code, ErrNotFound)
			}
		}

		for i := range r.Items {
			it := &r.Items[i]
			qty := it.approved()
			if v, ok := byItem[it.ID]; ok {
				if v.IsNegative() || v.GreaterThan(qty) {
					return fmt.Errorf("%w: separated quantity %s for product %s must be between 0 and %s",
						ErrInvalidQuantity, v, it.ProductID, qty)
				}
				qty = v
			}
			it.SeparatedQuantity = ptr(qty)
		}
		r.Status = RequestSeparating
		r.SeparatorID = ptr(actorID)
		r.SeparatedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *materialRequestService) Deliver(ctx context.Context, requestID, delivererID, receiverName string) (*MaterialRequest, error) {
	if err := requireActor(delivererID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(receiverName) == "" {
		return nil, fmt.Errorf("%w: receiver name is required to deliver a request", ErrValidation)
	}
	return s.mutate(ctx, requestID, delivererID, "deliver", "", func(tx Tx, r *MaterialRequest) error {
		if r.Status != RequestSeparating {
			return fmt.Errorf("%w: request %s cannot be delivered: status is %s (must be SEPARATING)", ErrInvalidTransition, r.Code, r.Status)
		}
		var movements []Movement
		for i := range r.Items {
			it := &r.Items[i]
			key := BalanceKey{LocationID: r.SourceLocationID, ProductID: it.ProductID}
			qty := it.separated()
			it.DeliveredQuantity = ptr(qty)
			if qty.IsPositive() {
				movements = append(movements, Movement{
					Key:      key,
					Kind:     MovementCommitOut,
					Quantity: qty,
					Ref:      Reference{Type: RefMaterialRequest, ID: r.ID, Note: "delivered " + r.Code},
				})
			}
			// Whatever was approved but not picked goes back to available stock.
			if short := it.approved().Sub(qty); short.IsPositive() {
				movements = append(movements, Movement{
					Key:      key,
					Kind:     MovementRelease,
					Quantity: short,
					Ref:      Reference{Type: RefMaterialRequest, ID: r.ID, Note: "not separated " + r.Code},
				})
			}
		}
		if _, err := s.ledger.ApplyTx(ctx, tx, movements); err != nil {
			return fmt.Errorf("request %s: %w", r.Code, err)
		}
		r.Status = RequestDelivered
		r.DelivererID = ptr(delivererID)
		r.ReceiverName = strings.TrimSpace(receiverName)
		r.DeliveredAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *materialRequestService) Cancel(ctx context.Context, requestID, actorID, reason string) (*MaterialRequest, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := requireReason(reason, "cancel a request"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, requestID, actorID, "cancel", reason, func(tx Tx, r *MaterialRequest) error {
		switch r.Status {
		case RequestDraft, RequestPending:
		case RequestApproved, RequestPartiallyApproved:
			var movements []Movement
			for _, it := range r.Items {
				if qty := it.approved(); qty.IsPositive() {
					movements = append(movements, Movement{
						Key:      BalanceKey{LocationID: r.SourceLocationID, ProductID: it.ProductID},
						Kind:     MovementRelease,
						Quantity: qty,
						Ref:      Reference{Type: RefMaterialRequest, ID: r.ID, Note: "cancelled " + r.Code},
					})
				}
			}
			if _, err := s.ledger.ApplyTx(ctx, tx, movements); err != nil {
				return fmt.Errorf("request %s: %w", r.Code, err)
			}
		default:
			return fmt.Errorf("%w: request %s cannot be cancelled: status is %s", ErrInvalidTransition, r.Code, r.Status)
		}
		r.Status = RequestCancelled
		r.CancelReason = reason
		r.CancelledAt = ptr(s.opts.Now())
		return nil
	})
}

// mutate locks a request, applies fn, and persists and audits the result in one
// transaction. Status changes are signalled after commit.
func (s *materialRequestService) mutate(ctx context.Context, requestID, actorID, action, reason string, fn func(tx Tx, r *MaterialRequest) error) (*MaterialRequest, error) {
	var before, after *MaterialRequest
	err := s.store.InTx(ctx, func(tx Tx) error {
		r, err := tx.LockMaterialRequest(ctx, requestID)
		if err != nil {
			return err
		}
		before = r.Clone()
		if err := fn(tx, r); err != nil {
			return err
		}
		r.UpdatedAt = s.opts.Now()
		if err := tx.SaveMaterialRequest(ctx, r); err != nil {
			return fmt.Errorf("failed to update material request %s: %w", r.Code, err)
		}
		after = r
		return s.audit(ctx, tx, EntityMaterialRequest, r.ID, action, actorID, before, r)
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, EntityMaterialRequest, after.ID, after.Code, string(before.Status), string(after.Status), actorID, reason)
	return after, nil
}

func (s *materialRequestService) Get(ctx context.Context, requestID string) (*MaterialRequest, error) {
	return s.store.GetMaterialRequest(ctx, requestID)
}

func (s *materialRequestService) GetByCode(ctx context.Context, code string) (*MaterialRequest, error) {
	return s.store.GetMaterialRequestByCode(ctx, code)
}

func (s *materialRequestService) List(ctx context.Context, filter RequestFilter) ([]MaterialRequest, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.store.ListMaterialRequests(ctx, filter)
}
