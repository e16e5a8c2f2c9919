package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// CatalogService maintains locations and products.
type CatalogService interface {
	CreateLocation(ctx context.Context, in CreateLocationInput) (*Location, error)
	GetLocation(ctx context.Context, id string) (*Location, error)
	GetLocationByCode(ctx context.Context, code string) (*Location, error)
	ListLocations(ctx context.Context, includeInactive bool) ([]Location, error)
	// DeactivateLocation soft-deletes a location. Its balance history is kept.
	// It fails with ErrInvalidState while the location has reserved stock, an
	// open count, or an approved or in-transit transfer to or from it.
	DeactivateLocation(ctx context.Context, id, actorID string) (*Location, error)

	CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	GetProductByCode(ctx context.Context, code string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// CreateLocationInput is the input for CreateLocation.
type CreateLocationInput struct {
	Code       string
	Name       string
	Type       LocationType
	ContractID *string
	ManagerID  *string
	ActorID    string
}

// CreateProductInput is the input for CreateProduct.
type CreateProductInput struct {
	Code     string
	Name     string
	Unit     string
	Category string
	ActorID  string
}

type catalogService struct {
	workflow
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(store Store, opts Options) CatalogService {
	return &catalogService{workflow: newWorkflow(store, nil, opts)}
}

func (s *catalogService) CreateLocation(ctx context.Context, in CreateLocationInput) (*Location, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: location code and name are required", ErrValidation)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown location type %q", ErrValidation, in.Type)
	}
	if _, err := s.store.GetLocationByCode(ctx, code); err == nil {
		return nil, fmt.Errorf("%w: location code %s already exists", ErrConflict, code)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check location code: %w", err)
	}

	loc := &Location{
		ID:         uuid.NewString(),
		Code:       code,
		Name:       strings.TrimSpace(in.Name),
		Type:       in.Type,
		ContractID: in.ContractID,
		ManagerID:  in.ManagerID,
		IsActive:   true,
		CreatedAt:  s.opts.Now(),
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.SaveLocation(ctx, loc); err != nil {
			return fmt.Errorf("failed to insert location %s: %w", code, err)
		}
		return s.audit(ctx, tx, EntityLocation, loc.ID, "create", in.ActorID, nil, loc)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("location created", "code", loc.Code, "type", loc.Type)
	return loc, nil
}

func (s *catalogService) DeactivateLocation(ctx context.Context, id, actorID string) (*Location, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	var out *Location
	err := s.store.InTx(ctx, func(tx Tx) error {
		loc, err := tx.LockLocation(ctx, id)
		if err != nil {
			return err
		}
		if !loc.IsActive {
			return fmt.Errorf("%w: location %s is already inactive", ErrInvalidState, loc.Code)
		}
		balances, err := tx.LocationBalances(ctx, loc.ID)
		if err != nil {
			return fmt.Errorf("failed to read balances of %s: %w", loc.Code, err)
		}
		for _, b := range balances {
			if b.Reserved.IsPositive() {
				return fmt.Errorf("%w: location %s still has %s reserved of product %s",
					ErrInvalidState, loc.Code, b.Reserved, b.ProductID)
			}
		}
		if err := s.checkNoOpenTransfers(ctx, loc); err != nil {
			return err
		}
		if open, err := tx.OpenCount(ctx, loc.ID); err == nil {
			return fmt.Errorf("%w: count %s is in progress at location %s", ErrInvalidState, open.Code, loc.Code)
		} else if !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("failed to check open counts: %w", err)
		}

		before := *loc
		loc.IsActive = false
		loc.DeletedAt = ptr(s.opts.Now())
		if err := tx.SaveLocation(ctx, loc); err != nil {
			return fmt.Errorf("failed to update location %s: %w", loc.Code, err)
		}
		out = loc
		return s.audit(ctx, tx, EntityLocation, loc.ID, "deactivate", actorID, before, loc)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("location deactivated", "code", out.Code, "actor", actorID)
	return out, nil
}

func (s *catalogService) GetLocation(ctx context.Context, id string) (*Location, error) {
	return s.store.GetLocation(ctx, id)
}

func (s *catalogService) GetLocationByCode(ctx context.Context, code string) (*Location, error) {
	return s.store.GetLocationByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *catalogService) ListLocations(ctx context.Context, includeInactive bool) ([]Location, error) {
	return s.store.ListLocations(ctx, includeInactive)
}

func (s *catalogService) CreateProduct(ctx context.Context, in CreateProductInput) (*Product, error) {
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: product code and name are required", ErrValidation)
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "UN"
	}
	if _, err := s.store.GetProductByCode(ctx, code); err == nil {
		return nil, fmt.Errorf("%w: product code %s already exists", ErrConflict, code)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check product code: %w", err)
	}

	p := &Product{
		ID:        uuid.NewString(),
		Code:      code,
		Name:      strings.TrimSpace(in.Name),
		Unit:      unit,
		Category:  strings.TrimSpace(in.Category),
		IsActive:  true,
		CreatedAt: s.opts.Now(),
	}
	err := s.store.InTx(ctx, func(tx Tx) error {
		if err := tx.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("failed to insert product %s: %w", code, err)
		}
		return s.audit(ctx, tx, EntityProduct, p.ID, "create", in.ActorID, nil, p)
	})
	if err != nil {
		return nil, err
	}
	s.opts.Logger.Info("product created", "code", p.Code)
	return p, nil
}

func (s *catalogService) GetProduct(ctx context.Context, id string) (*Product, error) {
	return s.store.GetProduct(ctx, id)
}

func (s *catalogService) GetProductByCode(ctx context.Context, code string) (*Product, error) {
	return s.store.GetProductByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}

// checkNoOpenTransfers refuses while an approved or in-transit transfer has loc
// as an endpoint. Such a transfer would still commit stock out of or into loc.
func (s *catalogService) checkNoOpenTransfers(ctx context.Context, loc *Location) error {
	for _, status := range []TransferStatus{TransferApproved, TransferInTransit} {
		for _, f := range []TransferFilter{
			{Status: status, SourceLocationID: loc.ID},
			{Status: status, DestinationLocationID: loc.ID},
		} {
			f.Page = Page{PageSize: 1}
			ts, total, err := s.store.ListTransfers(ctx, f)
			if err != nil {
				return fmt.Errorf("failed to check transfers of %s: %w", loc.Code, err)
			}
			if total > 0 {
				return fmt.Errorf("%w: transfer %s (%s) still moves stock through location %s",
					ErrInvalidState, ts[0].Code, status, loc.Code)
			}
		}
	}
	return nil
}
