package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// EntitlementService resolves which content categories a user may access.
// Resolution is re-derived from current state on every call; there is no
// cache, because upgrades, refunds and expiries must be visible immediately.
type EntitlementService interface {
	// ResolveAccessibleCategories returns the category ids reachable from
	// the user's live paid subscription and from every active free pack,
	// expanded through the pack-inclusion graph.
	ResolveAccessibleCategories(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	// CanAccessCategory reports whether the user may view the category.
	CanAccessCategory(ctx context.Context, userID uuid.UUID, categoryID uuid.UUID) (bool, error)

	// AccessiblePacks returns the expanded pack set the entitlement derives
	// from, useful for content listing endpoints.
	AccessiblePacks(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type entitlementService struct {
	subscriptionRepo repository.SubscriptionRepository
	packRepo         repository.PackRepository
	log              *logger.Logger
	now              func() time.Time
}

// NewEntitlementService creates the entitlement resolver.
func NewEntitlementService(
	subscriptionRepo repository.SubscriptionRepository,
	packRepo repository.PackRepository,
	log *logger.Logger,
) EntitlementService {
	return &entitlementService{
		subscriptionRepo: subscriptionRepo,
		packRepo:         packRepo,
		log:              log,
		now:              time.Now,
	}
}

func (s *entitlementService) ResolveAccessibleCategories(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	packIDs, err := s.AccessiblePacks(ctx, userID)
	if err != nil {
		return nil, err
	}

	categories, err := s.packRepo.ListCategoriesForPacks(ctx, packIDs)
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(categories))
	out := make([]uuid.UUID, 0, len(categories))
	for _, category := range categories {
		if !category.IsActive {
			continue
		}
		if _, ok := seen[category.ID]; ok {
			continue
		}
		seen[category.ID] = struct{}{}
		out = append(out, category.ID)
	}
	return out, nil
}

func (s *entitlementService) CanAccessCategory(ctx context.Context, userID uuid.UUID, categoryID uuid.UUID) (bool, error) {
	accessible, err := s.ResolveAccessibleCategories(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, id := range accessible {
		if id == categoryID {
			return true, nil
		}
	}
	return false, nil
}

// AccessiblePacks collects the user's live paid pack plus every active free
// pack, then expands the set to a fixpoint over the inclusion graph.
func (s *entitlementService) AccessiblePacks(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var roots []uuid.UUID

	sub, err := s.subscriptionRepo.GetActiveByUserID(ctx, userID, s.now())
	switch {
	case err == nil:
		roots = append(roots, sub.PackID)
	case errors.Is(err, domain.ErrNotFound):
		// no live paid subscription, free packs only
	default:
		return nil, err
	}

	freePacks, err := s.packRepo.ListFree(ctx)
	if err != nil {
		return nil, err
	}
	for _, pack := range freePacks {
		roots = append(roots, pack.ID)
	}

	edges, err := s.packRepo.ListHierarchyEdges(ctx)
	if err != nil {
		return nil, err
	}

	return expandPackClosure(roots, edges), nil
}

// expandPackClosure walks the inclusion graph breadth first. The visited set
// makes traversal terminate even if a cycle slipped into the edge data.
func expandPackClosure(roots []uuid.UUID, edges []domain.PackHierarchyEdge) []uuid.UUID {
	includes := make(map[uuid.UUID][]uuid.UUID, len(edges))
	for _, edge := range edges {
		includes[edge.PackID] = append(includes[edge.PackID], edge.IncludesPackID)
	}

	visited := make(map[uuid.UUID]struct{}, len(roots))
	queue := make([]uuid.UUID, 0, len(roots))
	var out []uuid.UUID

	for _, root := range roots {
		if _, ok := visited[root]; ok {
			continue
		}
		visited[root] = struct{}{}
		queue = append(queue, root)
	}

	for len(queue) > 0 {
		packID := queue[0]
		queue = queue[1:]
		out = append(out, packID)

		for _, included := range includes[packID] {
			if _, ok := visited[included]; ok {
				continue
			}
			visited[included] = struct{}{}
			queue = append(queue, included)
		}
	}
	return out
}
