package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// PackRepository data access for packs, categories and the pack-inclusion
// graph.
type PackRepository interface {
	// GetByID returns a pack by ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Pack, error)

	// List returns all packs ordered by display order
	List(ctx context.Context) ([]domain.Pack, error)

	// ListFree returns every active free pack
	ListFree(ctx context.Context) ([]domain.Pack, error)

	// Create stores a new pack
	Create(ctx context.Context, pack domain.Pack) (domain.Pack, error)

	// ListHierarchyEdges returns the full pack-inclusion edge set
	ListHierarchyEdges(ctx context.Context) ([]domain.PackHierarchyEdge, error)

	// AddHierarchyEdge inserts an inclusion edge; cycle checks are the
	// caller's responsibility
	AddHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error

	// RemoveHierarchyEdge deletes an inclusion edge
	RemoveHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error

	// ListCategoriesForPacks returns the categories linked to any of the
	// given packs, without duplicates
	ListCategoriesForPacks(ctx context.Context, packIDs []uuid.UUID) ([]domain.Category, error)

	// GetCategory returns a category by ID
	GetCategory(ctx context.Context, id uuid.UUID) (domain.Category, error)

	// LinkCategory attaches a category to a pack
	LinkCategory(ctx context.Context, link domain.PackCategory) error
}

// InMemoryPackRepository in-memory PackRepository, used by tests and local
// development.
type InMemoryPackRepository struct {
	packs          map[uuid.UUID]domain.Pack
	categories     map[uuid.UUID]domain.Category
	edges          []domain.PackHierarchyEdge
	packCategories map[uuid.UUID][]uuid.UUID
	mutex          sync.RWMutex
	log            *logger.Logger
}

// NewInMemoryPackRepository creates a new in-memory pack repository
func NewInMemoryPackRepository(log *logger.Logger) *InMemoryPackRepository {
	return &InMemoryPackRepository{
		packs:          make(map[uuid.UUID]domain.Pack),
		categories:     make(map[uuid.UUID]domain.Category),
		packCategories: make(map[uuid.UUID][]uuid.UUID),
		log:            log,
	}
}

// GetByID returns a pack by ID
func (r *InMemoryPackRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Pack, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	pack, exists := r.packs[id]
	if !exists {
		return domain.Pack{}, domain.ErrNotFound
	}
	return pack, nil
}

// List returns all packs
func (r *InMemoryPackRepository) List(ctx context.Context) ([]domain.Pack, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	packs := make([]domain.Pack, 0, len(r.packs))
	for _, pack := range r.packs {
		packs = append(packs, pack)
	}
	return packs, nil
}

// ListFree returns every active free pack
func (r *InMemoryPackRepository) ListFree(ctx context.Context) ([]domain.Pack, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var packs []domain.Pack
	for _, pack := range r.packs {
		if pack.IsFree && pack.IsActive {
			packs = append(packs, pack)
		}
	}
	return packs, nil
}

// Create stores a new pack
func (r *InMemoryPackRepository) Create(ctx context.Context, pack domain.Pack) (domain.Pack, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if pack.ID == uuid.Nil {
		pack.ID = uuid.New()
	}
	pack.CreatedAt = time.Now()
	pack.UpdatedAt = time.Now()
	r.packs[pack.ID] = pack
	return pack, nil
}

// ListHierarchyEdges returns the full edge set
func (r *InMemoryPackRepository) ListHierarchyEdges(ctx context.Context) ([]domain.PackHierarchyEdge, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	edges := make([]domain.PackHierarchyEdge, len(r.edges))
	copy(edges, r.edges)
	return edges, nil
}

// AddHierarchyEdge inserts an inclusion edge
func (r *InMemoryPackRepository) AddHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.packs[edge.PackID]; !exists {
		return domain.ErrNotFound
	}
	if _, exists := r.packs[edge.IncludesPackID]; !exists {
		return domain.ErrNotFound
	}
	for _, e := range r.edges {
		if e == edge {
			return domain.ErrConflict
		}
	}
	r.edges = append(r.edges, edge)
	return nil
}

// RemoveHierarchyEdge deletes an inclusion edge
func (r *InMemoryPackRepository) RemoveHierarchyEdge(ctx context.Context, edge domain.PackHierarchyEdge) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, e := range r.edges {
		if e == edge {
			r.edges = append(r.edges[:i], r.edges[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// ListCategoriesForPacks returns the categories linked to any given pack
func (r *InMemoryPackRepository) ListCategoriesForPacks(ctx context.Context, packIDs []uuid.UUID) ([]domain.Category, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var categories []domain.Category
	for _, packID := range packIDs {
		for _, catID := range r.packCategories[packID] {
			if _, ok := seen[catID]; ok {
				continue
			}
			seen[catID] = struct{}{}
			if cat, exists := r.categories[catID]; exists {
				categories = append(categories, cat)
			}
		}
	}
	return categories, nil
}

// GetCategory returns a category by ID
func (r *InMemoryPackRepository) GetCategory(ctx context.Context, id uuid.UUID) (domain.Category, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	cat, exists := r.categories[id]
	if !exists {
		return domain.Category{}, domain.ErrNotFound
	}
	return cat, nil
}

// LinkCategory attaches a category to a pack
func (r *InMemoryPackRepository) LinkCategory(ctx context.Context, link domain.PackCategory) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.packs[link.PackID]; !exists {
		return domain.ErrNotFound
	}
	r.packCategories[link.PackID] = append(r.packCategories[link.PackID], link.CategoryID)
	return nil
}

// CreateCategory stores a category. Not part of PackRepository; test and
// seed helper.
func (r *InMemoryPackRepository) CreateCategory(ctx context.Context, cat domain.Category) (domain.Category, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	cat.CreatedAt = time.Now()
	cat.UpdatedAt = time.Now()
	r.categories[cat.ID] = cat
	return cat, nil
}
