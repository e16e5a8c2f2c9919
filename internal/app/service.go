package app

import (
	"context"

	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
)

// ApplicationService is the single interface all adapters (CLI, REPL, Web) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println, no ANSI codes, and no display logic of any kind.
//
// Every ref parameter accepts either the entity ID or its human code
// (location code, product code, RM-/TR-/INV- document code).
type ApplicationService interface {
	// ListLocations returns stock locations ordered by code.
	ListLocations(ctx context.Context, includeInactive bool) (*LocationListResult, error)

	// CreateLocation registers a new active stock location.
	CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error)

	// DeactivateLocation soft-deletes a location with no reserved stock and no open count.
	DeactivateLocation(ctx context.Context, ref, actorID string) (*core.Location, error)

	// ListProducts returns all products ordered by code.
	ListProducts(ctx context.Context) (*ProductListResult, error)

	// CreateProduct registers a new product.
	CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error)

	// GetStock returns balances joined with location and product master data.
	// Empty refs match everything.
	GetStock(ctx context.Context, locationRef, productRef string) (*StockResult, error)

	// ListMovements returns ledger journal rows, newest first.
	ListMovements(ctx context.Context, q MovementQuery) (*MovementListResult, error)

	// ReceiveStock books an external goods receipt into a location (COMMIT_IN).
	ReceiveStock(ctx context.Context, req StockEntryRequest) (*core.StockBalance, error)

	// AdjustStock applies a signed correction by running a one-product SPOT
	// count to the corrected quantity. A reason is required, and the location
	// must be active with no other count in progress.
	AdjustStock(ctx context.Context, req StockEntryRequest) (*core.StockBalance, error)

	// SetStockLimits maintains the minimum and optional maximum stock of a balance.
	SetStockLimits(ctx context.Context, req SetLimitsRequest) (*core.StockBalance, error)

	CreateMaterialRequest(ctx context.Context, req CreateMaterialRequestRequest) (*core.MaterialRequest, error)
	AddRequestItem(ctx context.Context, ref, actorID string, line RequestLine) (*core.MaterialRequest, error)
	RemoveRequestItem(ctx context.Context, ref, actorID, itemID string) (*core.MaterialRequest, error)
	SubmitRequest(ctx context.Context, ref, actorID string) (*core.MaterialRequest, error)

	// ApproveRequest approves in full when approvals is empty, otherwise per item.
	ApproveRequest(ctx context.Context, ref, approverID string, approvals []core.ItemApproval) (*core.MaterialRequest, error)
	RejectRequest(ctx context.Context, ref, approverID, reason string) (*core.MaterialRequest, error)
	// StartSeparation separates every approved quantity in full unless
	// separations lists a smaller picked quantity for an item.
	StartSeparation(ctx context.Context, ref, actorID string, separations []core.ItemSeparation) (*core.MaterialRequest, error)
	DeliverRequest(ctx context.Context, ref, delivererID, receiverName string) (*core.MaterialRequest, error)
	CancelRequest(ctx context.Context, ref, actorID, reason string) (*core.MaterialRequest, error)
	GetRequest(ctx context.Context, ref string) (*core.MaterialRequest, error)

	// ListRequests lists material requests. SourceLocationID in the filter may be a ref.
	ListRequests(ctx context.Context, filter core.RequestFilter) (*RequestListResult, error)

	CreateTransfer(ctx context.Context, req CreateTransferRequest) (*core.StockTransfer, error)
	AddTransferItem(ctx context.Context, ref, actorID string, line TransferLine) (*core.StockTransfer, error)
	RemoveTransferItem(ctx context.Context, ref, actorID, itemID string) (*core.StockTransfer, error)
	SubmitTransfer(ctx context.Context, ref, actorID string) (*core.StockTransfer, error)
	ApproveTransfer(ctx context.Context, ref, approverID string) (*core.StockTransfer, error)
	RejectTransfer(ctx context.Context, ref, approverID, reason string) (*core.StockTransfer, error)
	DispatchTransfer(ctx context.Context, ref, shipperID, vehiclePlate, driverName string) (*core.StockTransfer, error)
	ReceiveTransfer(ctx context.Context, ref, receiverID, signature string, lines []core.ReceiptLine) (*core.StockTransfer, error)
	CancelTransfer(ctx context.Context, ref, actorID, reason string) (*core.StockTransfer, error)
	GetTransfer(ctx context.Context, ref string) (*core.StockTransfer, error)

	// ListTransfers lists transfers. Location IDs in the filter may be refs.
	ListTransfers(ctx context.Context, filter core.TransferFilter) (*TransferListResult, error)

	StartCount(ctx context.Context, req StartCountRequest) (*core.InventoryCount, error)
	RegisterCount(ctx context.Context, itemID, actorID string, counted decimal.Decimal, notes string) (*core.InventoryCount, error)
	CompleteCount(ctx context.Context, ref, actorID string) (*core.InventoryCount, error)
	CancelCount(ctx context.Context, ref, actorID, reason string) (*core.InventoryCount, error)
	GetCount(ctx context.Context, ref string) (*core.InventoryCount, error)
	ListCounts(ctx context.Context, filter core.CountFilter) (*CountListResult, error)
	CountItems(ctx context.Context, ref string, filter core.CountItemFilter) (*CountItemsResult, error)
	CountProgress(ctx context.Context, ref string) (*core.CountProgress, error)

	// ComputeAlerts evaluates low-stock alerts. LocationID in the filter may be a ref.
	ComputeAlerts(ctx context.Context, filter core.AlertFilter) (*core.AlertReport, error)

	// DraftTransferFromAlert creates a DRAFT transfer covering the alert's deficit.
	DraftTransferFromAlert(ctx context.Context, locationRef, productRef, requesterID string) (*core.StockTransfer, error)

	// AuditTrail returns the audit entries of one entity, oldest first.
	AuditTrail(ctx context.Context, entityType, ref string) ([]core.AuditEntry, error)
}
