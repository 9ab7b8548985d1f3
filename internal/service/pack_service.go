package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// PackService manages packs and the pack-inclusion graph.
type PackService interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Pack, error)
	List(ctx context.Context) ([]domain.Pack, error)
	Create(ctx context.Context, pack domain.Pack) (domain.Pack, error)

	// AddInclusion inserts edge packID -> includesPackID after checking the
	// edge keeps the graph acyclic. The check walks the full reachability
	// set of the included pack, not just one hop.
	AddInclusion(ctx context.Context, packID, includesPackID uuid.UUID) error

	// RemoveInclusion deletes an inclusion edge.
	RemoveInclusion(ctx context.Context, packID, includesPackID uuid.UUID) error

	// LinkCategory attaches a category to a pack.
	LinkCategory(ctx context.Context, packID, categoryID uuid.UUID) error
}

type packService struct {
	packRepo repository.PackRepository
	log      *logger.Logger
}

// NewPackService creates the pack management service.
func NewPackService(packRepo repository.PackRepository, log *logger.Logger) PackService {
	return &packService{packRepo: packRepo, log: log}
}

func (s *packService) GetByID(ctx context.Context, id uuid.UUID) (domain.Pack, error) {
	return s.packRepo.GetByID(ctx, id)
}

func (s *packService) List(ctx context.Context) ([]domain.Pack, error) {
	return s.packRepo.List(ctx)
}

func (s *packService) Create(ctx context.Context, pack domain.Pack) (domain.Pack, error) {
	if pack.Name == "" {
		return domain.Pack{}, domain.NewValidationError("name", "pack name is required")
	}
	if pack.PriceMonthly < 0 {
		return domain.Pack{}, domain.NewValidationError("priceMonthly", "price cannot be negative")
	}
	if pack.IsFree && pack.PriceMonthly != 0 {
		return domain.Pack{}, domain.NewValidationError("priceMonthly", "free pack cannot carry a price")
	}

	created, err := s.packRepo.Create(ctx, pack)
	if err != nil {
		return domain.Pack{}, err
	}

	s.log.Infow("Pack created", "packID", created.ID, "name", created.Name, "isFree", created.IsFree)
	return created, nil
}

func (s *packService) AddInclusion(ctx context.Context, packID, includesPackID uuid.UUID) error {
	if packID == includesPackID {
		return domain.NewConflictError("pack hierarchy", "pack cannot include itself")
	}

	if _, err := s.packRepo.GetByID(ctx, packID); err != nil {
		return err
	}
	if _, err := s.packRepo.GetByID(ctx, includesPackID); err != nil {
		return err
	}

	edges, err := s.packRepo.ListHierarchyEdges(ctx)
	if err != nil {
		return err
	}

	// Everything reachable from the included pack must not lead back to the
	// includer, otherwise the new edge closes a cycle.
	reachable := expandPackClosure([]uuid.UUID{includesPackID}, edges)
	for _, id := range reachable {
		if id == packID {
			return domain.NewConflictError("pack hierarchy", "inclusion would create a cycle")
		}
	}

	if err := s.packRepo.AddHierarchyEdge(ctx, domain.PackHierarchyEdge{
		PackID:         packID,
		IncludesPackID: includesPackID,
	}); err != nil {
		return err
	}

	s.log.Infow("Pack inclusion added", "packID", packID, "includesPackID", includesPackID)
	return nil
}

func (s *packService) RemoveInclusion(ctx context.Context, packID, includesPackID uuid.UUID) error {
	return s.packRepo.RemoveHierarchyEdge(ctx, domain.PackHierarchyEdge{
		PackID:         packID,
		IncludesPackID: includesPackID,
	})
}

func (s *packService) LinkCategory(ctx context.Context, packID, categoryID uuid.UUID) error {
	if _, err := s.packRepo.GetByID(ctx, packID); err != nil {
		return err
	}
	if _, err := s.packRepo.GetCategory(ctx, categoryID); err != nil {
		return err
	}
	return s.packRepo.LinkCategory(ctx, domain.PackCategory{
		PackID:     packID,
		CategoryID: categoryID,
	})
}
