package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferService manages stock transfers between locations.
type TransferService interface {
	Create(ctx context.Context, in CreateTransferInput) (*StockTransfer, error)
	AddItem(ctx context.Context, transferID, actorID string, item TransferItemInput) (*StockTransfer, error)
	RemoveItem(ctx context.Context, transferID, actorID, itemID string) (*StockTransfer, error)

	// Submit transitions DRAFT → PENDING.
	Submit(ctx context.Context, transferID, actorID string) (*StockTransfer, error)
	// Approve transitions PENDING → APPROVED, reserving every item at the source.
	Approve(ctx context.Context, transferID, approverID string) (*StockTransfer, error)
	// Reject transitions PENDING → REJECTED.
	Reject(ctx context.Context, transferID, approverID, reason string) (*StockTransfer, error)
	// Dispatch transitions APPROVED → IN_TRANSIT and commits the reserved stock out of the source.
	Dispatch(ctx context.Context, transferID, shipperID, vehiclePlate, driverName string) (*StockTransfer, error)
	// Receive transitions IN_TRANSIT → DELIVERED or DELIVERED_WITH_DISCREPANCY and
	// commits the received quantities into the destination.
	Receive(ctx context.Context, transferID, receiverID, receiverSignature string, lines []ReceiptLine) (*StockTransfer, error)
	// Cancel transitions DRAFT | PENDING | APPROVED → CANCELLED, releasing the
	// source reservation when the transfer was approved.
	Cancel(ctx context.Context, transferID, actorID, reason string) (*StockTransfer, error)

	Get(ctx context.Context, transferID string) (*StockTransfer, error)
	GetByCode(ctx context.Context, code string) (*StockTransfer, error)
	List(ctx context.Context, filter TransferFilter) ([]StockTransfer, int, error)
}

type transferService struct {
	workflow
}

// NewTransferService constructs a TransferService.
func NewTransferService(store Store, ledger *Ledger, opts Options) TransferService {
	return &transferService{workflow: newWorkflow(store, ledger, opts)}
}

func (s *transferService) Create(ctx context.Context, in CreateTransferInput) (*StockTransfer, error) {
	if err := requireActor(in.RequesterID); err != nil {
		return nil, err
	}
	if in.SourceLocationID != "" && in.SourceLocationID == in.DestinationLocationID {
		return nil, fmt.Errorf("%w: source and destination must differ", ErrValidation)
	}
	if _, err := s.activeLocation(ctx, in.SourceLocationID, "source"); err != nil {
		return nil, err
	}
	if _, err := s.activeLocation(ctx, in.DestinationLocationID, "destination"); err != nil {
		return nil, err
	}

	now := s.opts.Now()
	t := &StockTransfer{
		ID:                    uuid.NewString(),
		SourceLocationID:      in.SourceLocationID,
		DestinationLocationID: in.DestinationLocationID,
		RequesterID:           in.RequesterID,
		Status:                TransferDraft,
		Notes:                 in.Notes,
		TotalValue:            decimal.Zero,
		RequestedAt:           now,
		UpdatedAt:             now,
	}
	for i, item := range in.Items {
		if err := s.appendItem(ctx, t, item); err != nil {
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
	}
	t.recomputeTotals()

	err := s.store.InTx(ctx, func(tx Tx) error {
		code, err := s.nextCode(ctx, tx, prefixStockTransfer)
		if err != nil {
			return err
		}
		t.Code = code
		if err := tx.SaveTransfer(ctx, t); err != nil {
			return fmt.Errorf("failed to insert stock transfer: %w", err)
		}
		return s.audit(ctx, tx, EntityStockTransfer, t.ID, "create", in.RequesterID, nil, t)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("stock transfer created", "code", t.Code, "items", len(t.Items))
	return t, nil
}

func (s *transferService) appendItem(ctx context.Context, t *StockTransfer, in TransferItemInput) error {
	if err := s.checkProduct(ctx, in.ProductID); err != nil {
		return err
	}
	if err := positive(in.Quantity, "transfer quantity"); err != nil {
		return err
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price cannot be negative, got %s", ErrInvalidQuantity, in.UnitPrice)
	}
	for _, it := range t.Items {
		if it.ProductID == in.ProductID && sameLot(it.LotID, in.LotID) {
			return fmt.Errorf("%w: product %s is already on transfer %s", ErrValidation, in.ProductID, t.Code)
		}
	}
	t.Items = append(t.Items, StockTransferItem{
		ID:         uuid.NewString(),
		TransferID: t.ID,
		ProductID:  in.ProductID,
		LotID:      in.LotID,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
	})
	return nil
}

func sameLot(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (s *transferService) AddItem(ctx context.Context, transferID, actorID string, item TransferItemInput) (*StockTransfer, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, actorID, "add_item", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferDraft {
			return fmt.Errorf("%w: transfer %s cannot be edited: status is %s (must be DRAFT)", ErrInvalidTransition, t.Code, t.Status)
		}
		return s.appendItem(ctx, t, item)
	})
}

func (s *transferService) RemoveItem(ctx context.Context, transferID, actorID, itemID string) (*StockTransfer, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, actorID, "remove_item", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferDraft {
			return fmt.Errorf("%w: transfer %s cannot be edited: status is %s (must be DRAFT)", ErrInvalidTransition, t.Code, t.Status)
		}
		for i, it := range t.Items {
			if it.ID == itemID {
				t.Items = append(t.Items[:i], t.Items[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("item %s on transfer %s: %w", itemID, t.Code, ErrNotFound)
	})
}

func (s *transferService) Submit(ctx context.Context, transferID, actorID string) (*StockTransfer, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, actorID, "submit", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferDraft {
			return fmt.Errorf("%w: transfer %s cannot be submitted: status is %s (must be DRAFT)", ErrInvalidTransition, t.Code, t.Status)
		}
		if len(t.Items) == 0 {
			return fmt.Errorf("%w: transfer %s has no items", ErrValidation, t.Code)
		}
		t.Status = TransferPending
		t.SubmittedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *transferService) Approve(ctx context.Context, transferID, approverID string) (*StockTransfer, error) {
	if err := requireActor(approverID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, approverID, "approve", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferPending {
			return fmt.Errorf("%w: transfer %s cannot be approved: status is %s (must be PENDING)", ErrInvalidTransition, t.Code, t.Status)
		}
		// Locking both endpoints serializes approval with DeactivateLocation.
		for _, id := range []string{t.SourceLocationID, t.DestinationLocationID} {
			loc, err := tx.LockLocation(ctx, id)
			if err != nil {
				return err
			}
			if !loc.IsActive {
				return fmt.Errorf("%w: transfer %s cannot be approved: location %s is inactive", ErrInvalidState, t.Code, loc.Code)
			}
		}
		if _, err := s.ledger.ApplyTx(ctx, tx, t.sourceMovements(MovementReserve, "approved")); err != nil {
			return fmt.Errorf("transfer %s: %w", t.Code, err)
		}
		t.Status = TransferApproved
		t.ApproverID = ptr(approverID)
		t.ApprovedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *transferService) Reject(ctx context.Context, transferID, approverID, reason string) (*StockTransfer, error) {
	if err := requireActor(approverID); err != nil {
		return nil, err
	}
	if err := requireReason(reason, "reject a transfer"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, approverID, "reject", reason, func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferPending {
			return fmt.Errorf("%w: transfer %s cannot be rejected: status is %s (must be PENDING)", ErrInvalidTransition, t.Code, t.Status)
		}
		t.Status = TransferRejected
		t.ApproverID = ptr(approverID)
		t.RejectionReason = reason
		return nil
	})
}

func (s *transferService) Dispatch(ctx context.Context, transferID, shipperID, vehiclePlate, driverName string) (*StockTransfer, error) {
	if err := requireActor(shipperID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, shipperID, "dispatch", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferApproved {
			return fmt.Errorf("%w: transfer %s cannot be dispatched: status is %s (must be APPROVED)", ErrInvalidTransition, t.Code, t.Status)
		}
		if _, err := s.ledger.ApplyTx(ctx, tx, t.sourceMovements(MovementCommitOut, "dispatched")); err != nil {
			return fmt.Errorf("transfer %s: %w", t.Code, err)
		}
		for i := range t.Items {
			t.Items[i].ShippedQuantity = ptr(t.Items[i].Quantity)
		}
		t.Status = TransferInTransit
		t.ShipperID = ptr(shipperID)
		t.VehiclePlate = strings.TrimSpace(vehiclePlate)
		t.DriverName = strings.TrimSpace(driverName)
		t.ShippedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *transferService) Receive(ctx context.Context, transferID, receiverID, receiverSignature string, lines []ReceiptLine) (*StockTransfer, error) {
	if err := requireActor(receiverID); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, receiverID, "receive", "", func(tx Tx, t *StockTransfer) error {
		if t.Status != TransferInTransit {
			return fmt.Errorf("%w: transfer %s cannot be received: status is %s (must be IN_TRANSIT)", ErrInvalidTransition, t.Code, t.Status)
		}

		known := make(map[string]bool, len(t.Items))
		for _, it := range t.Items {
			known[it.ID] = true
		}
		overrides := make(map[string]ReceiptLine, len(lines))
		for _, l := range lines {
			if !known[l.ItemID] {
				return fmt.Errorf("item %s on transfer %s: %w", l.ItemID, t.Code, ErrNotFound)
			}
			if _, dup := overrides[l.ItemID]; dup {
				return fmt.Errorf("%w: item %s is received twice", ErrValidation, l.ItemID)
			}
			overrides[l.ItemID] = l
		}

		discrepancy := false
		var movements []Movement
		for i := range t.Items {
			it := &t.Items[i]
			shipped := it.Quantity
			if it.ShippedQuantity != nil {
				shipped = *it.ShippedQuantity
			}
			received := shipped
			if l, ok := overrides[it.ID]; ok {
				received = l.ReceivedQuantity
				if received.IsNegative() || received.GreaterThan(shipped) {
					return fmt.Errorf("%w: received quantity %s for product %s must be between 0 and %s",
						ErrInvalidQuantity, received, it.ProductID, shipped)
				}
				if !received.Equal(shipped) {
					if err := requireReason(l.Reason, "record a receipt discrepancy"); err != nil {
						return fmt.Errorf("product %s: %w", it.ProductID, err)
					}
					it.Discrepancy = &TransferDiscrepancy{Expected: shipped, Received: received, Reason: strings.TrimSpace(l.Reason)}
					discrepancy = true
				}
			}
			it.ReceivedQuantity = ptr(received)
			if received.IsPositive() {
				movements = append(movements, Movement{
					Key:      BalanceKey{LocationID: t.DestinationLocationID, ProductID: it.ProductID},
					Kind:     MovementCommitIn,
					Quantity: received,
					Ref:      Reference{Type: RefStockTransfer, ID: t.ID, Note: "received " + t.Code},
				})
			}
		}

		if _, err := s.ledger.ApplyTx(ctx, tx, movements); err != nil {
			return fmt.Errorf("transfer %s: %w", t.Code, err)
		}
		t.Status = TransferDelivered
		if discrepancy {
			t.Status = TransferDeliveredWithDiscrepancy
		}
		t.ReceiverID = ptr(receiverID)
		t.ReceiverSignature = strings.TrimSpace(receiverSignature)
		t.ReceivedAt = ptr(s.opts.Now())
		return nil
	})
}

func (s *transferService) Cancel(ctx context.Context, transferID, actorID, reason string) (*StockTransfer, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if err := requireReason(reason, "cancel a transfer"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, transferID, actorID, "cancel", reason, func(tx Tx, t *StockTransfer) error {
		switch t.Status {
		case TransferDraft, TransferPending:
		case TransferApproved:
			if _, err := s.ledger.ApplyTx(ctx, tx, t.sourceMovements(MovementRelease, "cancelled")); err != nil {
				return fmt.Errorf("transfer %s: %w", t.Code, err)
			}
		case TransferInTransit:
			return fmt.Errorf("%w: cannot cancel in-transit transfer %s", ErrInvalidTransition, t.Code)
		default:
			return fmt.Errorf("%w: transfer %s cannot be cancelled: status is %s", ErrInvalidTransition, t.Code, t.Status)
		}
		t.Status = TransferCancelled
		t.CancelReason = reason
		t.CancelledAt = ptr(s.opts.Now())
		return nil
	})
}

// sourceMovements builds one movement of kind per item at the source location.
func (t *StockTransfer) sourceMovements(kind MovementKind, note string) []Movement {
	out := make([]Movement, 0, len(t.Items))
	for _, it := range t.Items {
		out = append(out, Movement{
			Key:      BalanceKey{LocationID: t.SourceLocationID, ProductID: it.ProductID},
			Kind:     kind,
			Quantity: it.Quantity,
			Ref:      Reference{Type: RefStockTransfer, ID: t.ID, Note: note + " " + t.Code},
		})
	}
	return out
}

func (s *transferService) mutate(ctx context.Context, transferID, actorID, action, reason string, fn func(tx Tx, t *StockTransfer) error) (*StockTransfer, error) {
	var before, after *StockTransfer
	err := s.store.InTx(ctx, func(tx Tx) error {
		t, err := tx.LockTransfer(ctx, transferID)
		if err != nil {
			return err
		}
		before = t.Clone()
		if err := fn(tx, t); err != nil {
			return err
		}
		t.recomputeTotals()
		t.UpdatedAt = s.opts.Now()
		if err := tx.SaveTransfer(ctx, t); err != nil {
			return fmt.Errorf("failed to update stock transfer %s: %w", t.Code, err)
		}
		after = t
		return s.audit(ctx, tx, EntityStockTransfer, t.ID, action, actorID, before, t)
	})
	if err != nil {
		return nil, err
	}
	s.transitioned(ctx, EntityStockTransfer, after.ID, after.Code, string(before.Status), string(after.Status), actorID, reason)
	return after, nil
}

func (s *transferService) Get(ctx context.Context, transferID string) (*StockTransfer, error) {
	return s.store.GetTransfer(ctx, transferID)
}

func (s *transferService) GetByCode(ctx context.Context, code string) (*StockTransfer, error) {
	return s.store.GetTransferByCode(ctx, code)
}

func (s *transferService) List(ctx context.Context, filter TransferFilter) ([]StockTransfer, int, error) {
	filter.Page = filter.Page.Normalize()
	return s.store.ListTransfers(ctx, filter)
}
