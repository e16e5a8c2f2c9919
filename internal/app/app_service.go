package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fieldstock/internal/core"
)

// Services groups the core services the application layer delegates to.
type Services struct {
	Store     core.Store
	Ledger    *core.Ledger
	Catalog   core.CatalogService
	Requests  core.MaterialRequestService
	Transfers core.TransferService
	Counts    core.InventoryCountService
	Alerts    core.AlertService
}

// NewServices wires every core service on one store.
func NewServices(store core.Store, thresholds core.AlertThresholds, opts core.Options) Services {
	ledger := core.NewLedger(store, opts)
	transfers := core.NewTransferService(store, ledger, opts)
	return Services{
		Store:     store,
		Ledger:    ledger,
		Catalog:   core.NewCatalogService(store, opts),
		Requests:  core.NewMaterialRequestService(store, ledger, opts),
		Transfers: transfers,
		Counts:    core.NewInventoryCountService(store, ledger, opts),
		Alerts:    core.NewAlertService(store, transfers, thresholds, opts),
	}
}

type appService struct {
	Services
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(svc Services) ApplicationService {
	return &appService{Services: svc}
}

// ── catalog ───────────────────────────────────────────────────────────────────

func (s *appService) ListLocations(ctx context.Context, includeInactive bool) (*LocationListResult, error) {
	locs, err := s.Catalog.ListLocations(ctx, includeInactive)
	if err != nil {
		return nil, err
	}
	return &LocationListResult{Locations: locs}, nil
}

func (s *appService) CreateLocation(ctx context.Context, req CreateLocationRequest) (*core.Location, error) {
	return s.Catalog.CreateLocation(ctx, core.CreateLocationInput{
		Code:       req.Code,
		Name:       req.Name,
		Type:       req.Type,
		ContractID: req.ContractID,
		ManagerID:  req.ManagerID,
		ActorID:    req.ActorID,
	})
}

func (s *appService) DeactivateLocation(ctx context.Context, ref, actorID string) (*core.Location, error) {
	loc, err := s.resolveLocation(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Catalog.DeactivateLocation(ctx, loc.ID, actorID)
}

func (s *appService) ListProducts(ctx context.Context) (*ProductListResult, error) {
	ps, err := s.Catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	return &ProductListResult{Products: ps}, nil
}

func (s *appService) CreateProduct(ctx context.Context, req CreateProductRequest) (*core.Product, error) {
	return s.Catalog.CreateProduct(ctx, core.CreateProductInput{
		Code:     req.Code,
		Name:     req.Name,
		Unit:     req.Unit,
		Category: req.Category,
		ActorID:  req.ActorID,
	})
}

// ── stock ─────────────────────────────────────────────────────────────────────

func (s *appService) GetStock(ctx context.Context, locationRef, productRef string) (*StockResult, error) {
	var filter core.BalanceFilter
	if locationRef != "" {
		loc, err := s.resolveLocation(ctx, locationRef)
		if err != nil {
			return nil, err
		}
		filter.LocationID = loc.ID
	}
	if productRef != "" {
		p, err := s.resolveProduct(ctx, productRef)
		if err != nil {
			return nil, err
		}
		filter.ProductID = p.ID
	}

	balances, err := s.Ledger.Balances(ctx, filter)
	if err != nil {
		return nil, err
	}
	locs, err := s.Catalog.ListLocations(ctx, true)
	if err != nil {
		return nil, err
	}
	products, err := s.Catalog.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	locByID := make(map[string]core.Location, len(locs))
	for _, l := range locs {
		locByID[l.ID] = l
	}
	prodByID := make(map[string]core.Product, len(products))
	for _, p := range products {
		prodByID[p.ID] = p
	}

	lines := make([]StockLine, 0, len(balances))
	for _, b := range balances {
		l, p := locByID[b.LocationID], prodByID[b.ProductID]
		lines = append(lines, StockLine{
			LocationID:   b.LocationID,
			LocationCode: l.Code,
			ProductID:    b.ProductID,
			ProductCode:  p.Code,
			ProductName:  p.Name,
			Unit:         p.Unit,
			Quantity:     b.Quantity,
			Reserved:     b.Reserved,
			Available:    b.Available(),
			MinStock:     b.MinStock,
			MaxStock:     b.MaxStock,
			UpdatedAt:    b.UpdatedAt,
		})
	}
	return &StockResult{Lines: lines}, nil
}

func (s *appService) ListMovements(ctx context.Context, q MovementQuery) (*MovementListResult, error) {
	filter := core.MovementFilter{RefID: q.RefID, Limit: q.Limit}
	if q.LocationRef != "" {
		loc, err := s.resolveLocation(ctx, q.LocationRef)
		if err != nil {
			return nil, err
		}
		filter.LocationID = loc.ID
	}
	if q.ProductRef != "" {
		p, err := s.resolveProduct(ctx, q.ProductRef)
		if err != nil {
			return nil, err
		}
		filter.ProductID = p.ID
	}
	ms, err := s.Ledger.Movements(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MovementListResult{Movements: ms}, nil
}

func (s *appService) ReceiveStock(ctx context.Context, req StockEntryRequest) (*core.StockBalance, error) {
	key, err := s.stockKey(ctx, req.LocationRef, req.ProductRef, true)
	if err != nil {
		return nil, err
	}
	return s.Ledger.CommitIn(ctx, key, req.Quantity, manualRef(req.ActorID, req.Note))
}

// AdjustStock books a correction as a single-product SPOT count: the count is
// started, the corrected quantity registered and the count completed, so the
// ADJUST movement references the count and the audit trail records who did it.
// A rejected correction cancels the count it opened.
func (s *appService) AdjustStock(ctx context.Context, req StockEntryRequest) (*core.StockBalance, error) {
	note := strings.TrimSpace(req.Note)
	if note == "" {
		return nil, fmt.Errorf("%w: manual adjustments need a reason", core.ErrMissingReason)
	}
	key, err := s.stockKey(ctx, req.LocationRef, req.ProductRef, false)
	if err != nil {
		return nil, err
	}

	c, err := s.Counts.Start(ctx, core.StartCountInput{
		LocationID: key.LocationID,
		CountType:  core.CountSpot,
		StartedBy:  req.ActorID,
		Notes:      "adjustment: " + note,
		ProductIDs: []string{key.ProductID},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open adjustment count: %w", err)
	}

	item := c.Items[0]
	target := item.SystemQty.Add(req.Quantity)
	if target.IsNegative() {
		err = fmt.Errorf("%w: adjusting by %s would leave %s", core.ErrInvalidAdjustment, req.Quantity, target)
	} else if _, err = s.Counts.RegisterItem(ctx, item.ID, req.ActorID, target, note); err == nil {
		_, err = s.Counts.Complete(ctx, c.ID, req.ActorID)
	}
	if err != nil {
		if _, cerr := s.Counts.Cancel(ctx, c.ID, req.ActorID, "adjustment rejected"); cerr != nil {
			err = errors.Join(err, fmt.Errorf("failed to cancel count %s: %w", c.Code, cerr))
		}
		return nil, err
	}
	return s.Ledger.Balance(ctx, key)
}

func (s *appService) SetStockLimits(ctx context.Context, req SetLimitsRequest) (*core.StockBalance, error) {
	key, err := s.stockKey(ctx, req.LocationRef, req.ProductRef, false)
	if err != nil {
		return nil, err
	}
	return s.Ledger.SetLimits(ctx, key, req.MinStock, req.MaxStock)
}

// ── material requests ─────────────────────────────────────────────────────────

func (s *appService) CreateMaterialRequest(ctx context.Context, req CreateMaterialRequestRequest) (*core.MaterialRequest, error) {
	src, err := s.resolveLocation(ctx, req.SourceLocationRef)
	if err != nil {
		return nil, err
	}
	in := core.CreateMaterialRequestInput{
		ContractID:       req.ContractID,
		WorkFrontID:      req.WorkFrontID,
		ActivityID:       req.ActivityID,
		SourceLocationID: src.ID,
		RequesterID:      req.RequesterID,
		Priority:         req.Priority,
		NeededDate:       req.NeededDate,
		Notes:            req.Notes,
	}
	if req.DestinationLocationRef != "" {
		dst, err := s.resolveLocation(ctx, req.DestinationLocationRef)
		if err != nil {
			return nil, err
		}
		in.DestinationLocationID = &dst.ID
	}
	for _, line := range req.Items {
		item, err := s.requestItem(ctx, line)
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, item)
	}
	return s.Requests.Create(ctx, in)
}

func (s *appService) AddRequestItem(ctx context.Context, ref, actorID string, line RequestLine) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	item, err := s.requestItem(ctx, line)
	if err != nil {
		return nil, err
	}
	return s.Requests.AddItem(ctx, r.ID, actorID, item)
}

func (s *appService) RemoveRequestItem(ctx context.Context, ref, actorID, itemID string) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.RemoveItem(ctx, r.ID, actorID, itemID)
}

func (s *appService) SubmitRequest(ctx context.Context, ref, actorID string) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.Submit(ctx, r.ID, actorID)
}

func (s *appService) ApproveRequest(ctx context.Context, ref, approverID string, approvals []core.ItemApproval) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(approvals) == 0 {
		return s.Requests.Approve(ctx, r.ID, approverID)
	}
	return s.Requests.ApproveWithItems(ctx, r.ID, approverID, approvals)
}

func (s *appService) RejectRequest(ctx context.Context, ref, approverID, reason string) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.Reject(ctx, r.ID, approverID, reason)
}

func (s *appService) StartSeparation(ctx context.Context, ref, actorID string, separations []core.ItemSeparation) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.StartSeparation(ctx, r.ID, actorID, separations)
}

func (s *appService) DeliverRequest(ctx context.Context, ref, delivererID, receiverName string) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.Deliver(ctx, r.ID, delivererID, receiverName)
}

func (s *appService) CancelRequest(ctx context.Context, ref, actorID, reason string) (*core.MaterialRequest, error) {
	r, err := s.resolveRequest(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Requests.Cancel(ctx, r.ID, actorID, reason)
}

func (s *appService) GetRequest(ctx context.Context, ref string) (*core.MaterialRequest, error) {
	return s.resolveRequest(ctx, ref)
}

func (s *appService) ListRequests(ctx context.Context, filter core.RequestFilter) (*RequestListResult, error) {
	if filter.SourceLocationID != "" {
		loc, err := s.resolveLocation(ctx, filter.SourceLocationID)
		if err != nil {
			return nil, err
		}
		filter.SourceLocationID = loc.ID
	}
	rs, total, err := s.Requests.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	p := filter.Page.Normalize()
	return &RequestListResult{Requests: rs, Total: total, Page: p.Page, PageSize: p.PageSize}, nil
}

// ── transfers ─────────────────────────────────────────────────────────────────

func (s *appService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (*core.StockTransfer, error) {
	src, err := s.resolveLocation(ctx, req.SourceLocationRef)
	if err != nil {
		return nil, err
	}
	dst, err := s.resolveLocation(ctx, req.DestinationLocationRef)
	if err != nil {
		return nil, err
	}
	in := core.CreateTransferInput{
		SourceLocationID:      src.ID,
		DestinationLocationID: dst.ID,
		RequesterID:           req.RequesterID,
		Notes:                 req.Notes,
	}
	for _, line := range req.Items {
		item, err := s.transferItem(ctx, line)
		if err != nil {
			return nil, err
		}
		in.Items = append(in.Items, item)
	}
	return s.Transfers.Create(ctx, in)
}

func (s *appService) AddTransferItem(ctx context.Context, ref, actorID string, line TransferLine) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	item, err := s.transferItem(ctx, line)
	if err != nil {
		return nil, err
	}
	return s.Transfers.AddItem(ctx, t.ID, actorID, item)
}

func (s *appService) RemoveTransferItem(ctx context.Context, ref, actorID, itemID string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.RemoveItem(ctx, t.ID, actorID, itemID)
}

func (s *appService) SubmitTransfer(ctx context.Context, ref, actorID string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Submit(ctx, t.ID, actorID)
}

func (s *appService) ApproveTransfer(ctx context.Context, ref, approverID string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Approve(ctx, t.ID, approverID)
}

func (s *appService) RejectTransfer(ctx context.Context, ref, approverID, reason string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Reject(ctx, t.ID, approverID, reason)
}

func (s *appService) DispatchTransfer(ctx context.Context, ref, shipperID, vehiclePlate, driverName string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Dispatch(ctx, t.ID, shipperID, vehiclePlate, driverName)
}

func (s *appService) ReceiveTransfer(ctx context.Context, ref, receiverID, signature string, lines []core.ReceiptLine) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Receive(ctx, t.ID, receiverID, signature, lines)
}

func (s *appService) CancelTransfer(ctx context.Context, ref, actorID, reason string) (*core.StockTransfer, error) {
	t, err := s.resolveTransfer(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Transfers.Cancel(ctx, t.ID, actorID, reason)
}

func (s *appService) GetTransfer(ctx context.Context, ref string) (*core.StockTransfer, error) {
	return s.resolveTransfer(ctx, ref)
}

func (s *appService) ListTransfers(ctx context.Context, filter core.TransferFilter) (*TransferListResult, error) {
	for _, id := range []*string{&filter.SourceLocationID, &filter.DestinationLocationID} {
		if *id == "" {
			continue
		}
		loc, err := s.resolveLocation(ctx, *id)
		if err != nil {
			return nil, err
		}
		*id = loc.ID
	}
	ts, total, err := s.Transfers.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	p := filter.Page.Normalize()
	return &TransferListResult{Transfers: ts, Total: total, Page: p.Page, PageSize: p.PageSize}, nil
}

// ── inventory counts ──────────────────────────────────────────────────────────

func (s *appService) StartCount(ctx context.Context, req StartCountRequest) (*core.InventoryCount, error) {
	loc, err := s.resolveLocation(ctx, req.LocationRef)
	if err != nil {
		return nil, err
	}
	in := core.StartCountInput{
		LocationID: loc.ID,
		CountType:  req.CountType,
		StartedBy:  req.StartedBy,
		Notes:      req.Notes,
	}
	for _, ref := range req.ProductRefs {
		p, err := s.resolveProduct(ctx, ref)
		if err != nil {
			return nil, err
		}
		in.ProductIDs = append(in.ProductIDs, p.ID)
	}
	return s.Counts.Start(ctx, in)
}

func (s *appService) RegisterCount(ctx context.Context, itemID, actorID string, counted decimal.Decimal, notes string) (*core.InventoryCount, error) {
	return s.Counts.RegisterItem(ctx, itemID, actorID, counted, notes)
}

func (s *appService) CompleteCount(ctx context.Context, ref, actorID string) (*core.InventoryCount, error) {
	c, err := s.resolveCount(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Counts.Complete(ctx, c.ID, actorID)
}

func (s *appService) CancelCount(ctx context.Context, ref, actorID, reason string) (*core.InventoryCount, error) {
	c, err := s.resolveCount(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Counts.Cancel(ctx, c.ID, actorID, reason)
}

func (s *appService) GetCount(ctx context.Context, ref string) (*core.InventoryCount, error) {
	return s.resolveCount(ctx, ref)
}

func (s *appService) ListCounts(ctx context.Context, filter core.CountFilter) (*CountListResult, error) {
	if filter.LocationID != "" {
		loc, err := s.resolveLocation(ctx, filter.LocationID)
		if err != nil {
			return nil, err
		}
		filter.LocationID = loc.ID
	}
	cs, err := s.Counts.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &CountListResult{Counts: cs}, nil
}

func (s *appService) CountItems(ctx context.Context, ref string, filter core.CountItemFilter) (*CountItemsResult, error) {
	c, err := s.resolveCount(ctx, ref)
	if err != nil {
		return nil, err
	}
	items, err := s.Counts.Items(ctx, c.ID, filter)
	if err != nil {
		return nil, err
	}
	return &CountItemsResult{CountID: c.ID, Code: c.Code, Items: items}, nil
}

func (s *appService) CountProgress(ctx context.Context, ref string) (*core.CountProgress, error) {
	c, err := s.resolveCount(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.Counts.Progress(ctx, c.ID)
}

// ── alerts and audit ──────────────────────────────────────────────────────────

func (s *appService) ComputeAlerts(ctx context.Context, filter core.AlertFilter) (*core.AlertReport, error) {
	if filter.LocationID != "" {
		loc, err := s.resolveLocation(ctx, filter.LocationID)
		if err != nil {
			return nil, err
		}
		filter.LocationID = loc.ID
	}
	return s.Alerts.Compute(ctx, filter)
}

func (s *appService) DraftTransferFromAlert(ctx context.Context, locationRef, productRef, requesterID string) (*core.StockTransfer, error) {
	key, err := s.stockKey(ctx, locationRef, productRef, false)
	if err != nil {
		return nil, err
	}
	return s.Alerts.DraftTransferFromAlert(ctx, key.LocationID, key.ProductID, requesterID)
}

func (s *appService) AuditTrail(ctx context.Context, entityType, ref string) ([]core.AuditEntry, error) {
	id := ref
	switch entityType {
	case core.EntityMaterialRequest:
		r, err := s.resolveRequest(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = r.ID
	case core.EntityStockTransfer:
		t, err := s.resolveTransfer(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = t.ID
	case core.EntityInventoryCount:
		c, err := s.resolveCount(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = c.ID
	case core.EntityLocation:
		l, err := s.resolveLocation(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = l.ID
	case core.EntityProduct:
		p, err := s.resolveProduct(ctx, ref)
		if err != nil {
			return nil, err
		}
		id = p.ID
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", core.ErrValidation, entityType)
	}
	return s.Store.ListAudit(ctx, entityType, id)
}

// ── private helpers ───────────────────────────────────────────────────────────

// isID reports whether ref looks like a generated entity ID rather than a code.
func isID(ref string) bool {
	_, err := uuid.Parse(ref)
	return err == nil
}

func (s *appService) resolveLocation(ctx context.Context, ref string) (*core.Location, error) {
	if isID(ref) {
		return s.Catalog.GetLocation(ctx, ref)
	}
	return s.Catalog.GetLocationByCode(ctx, ref)
}

func (s *appService) resolveProduct(ctx context.Context, ref string) (*core.Product, error) {
	if isID(ref) {
		return s.Catalog.GetProduct(ctx, ref)
	}
	return s.Catalog.GetProductByCode(ctx, ref)
}

func (s *appService) resolveRequest(ctx context.Context, ref string) (*core.MaterialRequest, error) {
	if isID(ref) {
		return s.Requests.Get(ctx, ref)
	}
	return s.Requests.GetByCode(ctx, docCode(ref))
}

func (s *appService) resolveTransfer(ctx context.Context, ref string) (*core.StockTransfer, error) {
	if isID(ref) {
		return s.Transfers.Get(ctx, ref)
	}
	return s.Transfers.GetByCode(ctx, docCode(ref))
}

func (s *appService) resolveCount(ctx context.Context, ref string) (*core.InventoryCount, error) {
	if isID(ref) {
		return s.Counts.Get(ctx, ref)
	}
	return s.Counts.GetByCode(ctx, docCode(ref))
}

func docCode(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// stockKey resolves a balance key. requireActive rejects inactive locations
// and products.
func (s *appService) stockKey(ctx context.Context, locationRef, productRef string, requireActive bool) (core.BalanceKey, error) {
	loc, err := s.resolveLocation(ctx, locationRef)
	if err != nil {
		return core.BalanceKey{}, err
	}
	p, err := s.resolveProduct(ctx, productRef)
	if err != nil {
		return core.BalanceKey{}, err
	}
	if requireActive && (!loc.IsActive || !p.IsActive) {
		return core.BalanceKey{}, fmt.Errorf("%w: %s and %s must be active", core.ErrValidation, loc.Code, p.Code)
	}
	return core.BalanceKey{LocationID: loc.ID, ProductID: p.ID}, nil
}

func (s *appService) requestItem(ctx context.Context, line RequestLine) (core.RequestItemInput, error) {
	p, err := s.resolveProduct(ctx, line.ProductRef)
	if err != nil {
		return core.RequestItemInput{}, err
	}
	return core.RequestItemInput{ProductID: p.ID, Quantity: line.Quantity, Notes: line.Notes}, nil
}

func (s *appService) transferItem(ctx context.Context, line TransferLine) (core.TransferItemInput, error) {
	p, err := s.resolveProduct(ctx, line.ProductRef)
	if err != nil {
		return core.TransferItemInput{}, err
	}
	return core.TransferItemInput{ProductID: p.ID, LotID: line.LotID, Quantity: line.Quantity, UnitPrice: line.UnitPrice}, nil
}

func manualRef(actorID, note string) core.Reference {
	return core.Reference{Type: core.RefManual, ID: actorID, Note: note}
}
