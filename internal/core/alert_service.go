package core

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// AlertService derives low-stock alerts from ledger balances. It never
// mutates stock; DraftTransferFromAlert only creates a DRAFT transfer.
type AlertService interface {
	Compute(ctx context.Context, filter AlertFilter) (*AlertReport, error)
	DraftTransferFromAlert(ctx context.Context, locationID, productID, requesterID string) (*StockTransfer, error)
}

type alertService struct {
	store      Store
	transfers  TransferService
	thresholds AlertThresholds
	opts       Options
}

// NewAlertService constructs an AlertService. Drafts are created through transfers.
func NewAlertService(store Store, transfers TransferService, thresholds AlertThresholds, opts Options) AlertService {
	return &alertService{store: store, transfers: transfers, thresholds: thresholds, opts: opts.withDefaults()}
}

// EvaluateAlert classifies one balance. ok is false when the balance raises no alert.
func EvaluateAlert(b StockBalance, th AlertThresholds) (tier Criticality, deficit decimal.Decimal, ok bool) {
	if !b.MinStock.IsPositive() {
		return "", decimal.Zero, false
	}
	available := b.Available()
	deficit = b.MinStock.Sub(available)
	if !deficit.IsPositive() {
		return "", decimal.Zero, false
	}
	if !available.IsPositive() {
		return CriticalityCritical, deficit, true
	}
	ratio := deficit.Div(b.MinStock)
	switch {
	case ratio.GreaterThanOrEqual(th.WarningRatio):
		return CriticalityWarning, deficit, true
	case ratio.GreaterThanOrEqual(th.LowRatio):
		return CriticalityLow, deficit, true
	}
	return "", decimal.Zero, false
}

func (s *alertService) Compute(ctx context.Context, filter AlertFilter) (*AlertReport, error) {
	if filter.Criticality != "" && !filter.Criticality.Valid() {
		return nil, fmt.Errorf("%w: unknown criticality %q", ErrValidation, filter.Criticality)
	}
	balances, err := s.store.ListBalances(ctx, BalanceFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	locations, err := s.store.ListLocations(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	products, err := s.store.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	locByID := make(map[string]Location, len(locations))
	for _, l := range locations {
		locByID[l.ID] = l
	}
	prodByID := make(map[string]Product, len(products))
	for _, p := range products {
		prodByID[p.ID] = p
	}
	byProduct := make(map[string][]StockBalance)
	for _, b := range balances {
		if _, active := locByID[b.LocationID]; active {
			byProduct[b.ProductID] = append(byProduct[b.ProductID], b)
		}
	}

	report := &AlertReport{Alerts: []StockAlert{}}
	for _, b := range balances {
		loc, active := locByID[b.LocationID]
		if !active {
			continue
		}
		if filter.LocationID != "" && b.LocationID != filter.LocationID {
			continue
		}
		prod, ok := prodByID[b.ProductID]
		if !ok || !prod.IsActive {
			continue
		}
		if filter.Category != "" && prod.Category != filter.Category {
			continue
		}
		tier, deficit, ok := EvaluateAlert(b, s.thresholds)
		if !ok {
			continue
		}
		report.Counts.add(tier)
		if filter.Criticality != "" && tier != filter.Criticality {
			continue
		}

		a := StockAlert{
			LocationID:   loc.ID,
			LocationCode: loc.Code,
			ProductID:    prod.ID,
			ProductCode:  prod.Code,
			ProductName:  prod.Name,
			Category:     prod.Category,
			Quantity:     b.Quantity,
			Reserved:     b.Reserved,
			Available:    b.Available(),
			MinStock:     b.MinStock,
			Deficit:      deficit,
			Criticality:  tier,
			Action:       ActionPurchase,
		}
		if src, ok := suggestSource(b.LocationID, deficit, byProduct[b.ProductID], locByID); ok {
			a.Action = ActionCreateTransfer
			a.SourceLocationID = ptr(src.ID)
			a.SourceLocationCode = src.Code
		}
		report.Alerts = append(report.Alerts, a)
	}

	sort.SliceStable(report.Alerts, func(i, j int) bool {
		x, y := report.Alerts[i], report.Alerts[j]
		if x.Criticality != y.Criticality {
			return x.Criticality.rank() < y.Criticality.rank()
		}
		if !x.Deficit.Equal(y.Deficit) {
			return x.Deficit.GreaterThan(y.Deficit)
		}
		if x.LocationCode != y.LocationCode {
			return x.LocationCode < y.LocationCode
		}
		return x.ProductCode < y.ProductCode
	})

	if filter.LocationID == "" && filter.Category == "" {
		s.opts.Metrics.RecordAlerts(report.Counts)
	}
	s.opts.Logger.Debug("alerts computed", "total", report.Counts.Total, "critical", report.Counts.Critical)
	return report, nil
}

// suggestSource picks the location that can cover deficit from its surplus
// over its own minimum. CENTRAL locations win over larger surpluses.
func suggestSource(target string, deficit decimal.Decimal, candidates []StockBalance, locs map[string]Location) (Location, bool) {
	var (
		best        Location
		bestSurplus decimal.Decimal
		found       bool
	)
	for _, c := range candidates {
		if c.LocationID == target {
			continue
		}
		loc, ok := locs[c.LocationID]
		if !ok || loc.Type == LocationTransit {
			continue
		}
		surplus := c.Available().Sub(c.MinStock)
		if surplus.LessThan(deficit) {
			continue
		}
		if !found || better(loc, surplus, best, bestSurplus) {
			best, bestSurplus, found = loc, surplus, true
		}
	}
	return best, found
}

func better(loc Location, surplus decimal.Decimal, best Location, bestSurplus decimal.Decimal) bool {
	if (loc.Type == LocationCentral) != (best.Type == LocationCentral) {
		return loc.Type == LocationCentral
	}
	if !surplus.Equal(bestSurplus) {
		return surplus.GreaterThan(bestSurplus)
	}
	return loc.Code < best.Code
}

func (s *alertService) DraftTransferFromAlert(ctx context.Context, locationID, productID, requesterID string) (*StockTransfer, error) {
	report, err := s.Compute(ctx, AlertFilter{LocationID: locationID})
	if err != nil {
		return nil, err
	}
	for _, a := range report.Alerts {
		if a.ProductID != productID {
			continue
		}
		if a.SourceLocationID == nil {
			return nil, fmt.Errorf("%w: no location can cover the deficit of %s for product %s at %s",
				ErrValidation, a.Deficit, a.ProductCode, a.LocationCode)
		}
		t, err := s.transfers.Create(ctx, CreateTransferInput{
			SourceLocationID:      *a.SourceLocationID,
			DestinationLocationID: a.LocationID,
			RequesterID:           requesterID,
			Notes:                 fmt.Sprintf("Replenishment of %s at %s (%s alert)", a.ProductCode, a.LocationCode, a.Criticality),
			Items: []TransferItemInput{{
				ProductID: a.ProductID,
				Quantity:  a.Deficit,
				UnitPrice: decimal.Zero,
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to draft transfer from alert: %w", err)
		}
		s.opts.Logger.Info("transfer drafted from alert", "code", t.Code, "product", a.ProductCode, "location", a.LocationCode)
		return t, nil
	}
	return nil, fmt.Errorf("%w: product %s at location %s is not below its minimum", ErrValidation, productID, locationID)
}
