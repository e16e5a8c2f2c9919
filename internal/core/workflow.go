package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entity types used in audit entries, notifications and metrics.
const (
	EntityLocation        = "location"
	EntityProduct         = "product"
	EntityMaterialRequest = "material_request"
	EntityStockTransfer   = "stock_transfer"
	EntityInventoryCount  = "inventory_count"
)

// Document code prefixes. Codes look like RM-2026-0001.
const (
	prefixMaterialRequest = "RM"
	prefixStockTransfer   = "TR"
	prefixInventoryCount  = "INV"
)

// workflow holds what the document services share.
type workflow struct {
	store  Store
	ledger *Ledger
	opts   Options
}

func newWorkflow(store Store, ledger *Ledger, opts Options) workflow {
	return workflow{store: store, ledger: ledger, opts: opts.withDefaults()}
}

// nextCode allocates the next gapless document code for prefix in the current year.
func (w workflow) nextCode(ctx context.Context, tx Tx, prefix string) (string, error) {
	year := w.opts.Now().Year()
	n, err := tx.NextSequence(ctx, prefix, year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate %s number: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d-%04d", prefix, year, n), nil
}

// audit appends a before/after snapshot of an entity inside tx.
func (w workflow) audit(ctx context.Context, tx Tx, entityType, entityID, action, actorID string, before, after any) error {
	entry := &AuditEntry{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actorID,
		CreatedAt:  w.opts.Now(),
	}
	var err error
	if before != nil {
		if entry.Before, err = json.Marshal(before); err != nil {
			return fmt.Errorf("failed to encode audit snapshot: %w", err)
		}
	}
	if after != nil {
		if entry.After, err = json.Marshal(after); err != nil {
			return fmt.Errorf("failed to encode audit snapshot: %w", err)
		}
	}
	if err := tx.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// transitioned records a committed status change and tells the notifier.
func (w workflow) transitioned(ctx context.Context, entityType, id, code, from, to, actorID, reason string) {
	if from == to {
		return
	}
	w.opts.Metrics.RecordTransition(entityType, from, to)
	w.opts.Logger.Info("status changed", "entity", entityType, "code", code, "from", from, "to", to, "actor", actorID)

	e := Event{
		Type:       entityType + "." + strings.ToLower(to),
		EntityType: entityType,
		EntityID:   id,
		Code:       code,
		Status:     to,
		ActorID:    actorID,
		Reason:     reason,
		OccurredAt: w.opts.Now(),
	}
	if err := w.opts.Notifier.Notify(ctx, e); err != nil {
		w.opts.Logger.Warn("notification failed", "event", e.Type, "code", code, "error", err)
	}
}

// activeLocation returns the location or an error if it is missing or deactivated.
func (w workflow) activeLocation(ctx context.Context, id, role string) (*Location, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: %s location is required", ErrValidation, role)
	}
	loc, err := w.store.GetLocation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s location %s: %w", role, id, err)
	}
	if !loc.IsActive {
		return nil, fmt.Errorf("%w: %s location %s is inactive", ErrValidation, role, loc.Code)
	}
	return loc, nil
}

// checkProduct verifies that productID names an active product.
func (w workflow) checkProduct(ctx context.Context, productID string) error {
	if productID == "" {
		return fmt.Errorf("%w: product is required", ErrValidation)
	}
	p, err := w.store.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("product %s: %w", productID, err)
	}
	if !p.IsActive {
		return fmt.Errorf("%w: product %s is inactive", ErrValidation, p.Code)
	}
	return nil
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return fmt.Errorf("%w: actor is required", ErrValidation)
	}
	return nil
}

func requireReason(reason, what string) error {
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("%w: a reason is required to %s", ErrMissingReason, what)
	}
	return nil
}

func positive(qty decimal.Decimal, what string) error {
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidQuantity, what, qty)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}
