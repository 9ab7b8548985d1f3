package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// UserRepository data access for users. The core only needs identity
// lookups and the payment-provider customer mapping; account CRUD lives
// elsewhere.
type UserRepository interface {
	// GetByID returns a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.User, error)

	// GetByStripeCustomerID returns the user mapped to a provider customer
	GetByStripeCustomerID(ctx context.Context, customerID string) (domain.User, error)

	// SetStripeCustomerID stores the provider customer mapping
	SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error
}

// InMemoryUserRepository in-memory UserRepository.
type InMemoryUserRepository struct {
	users map[uuid.UUID]domain.User
	mutex sync.RWMutex
	log   *logger.Logger
}

// NewInMemoryUserRepository creates a new in-memory user repository
func NewInMemoryUserRepository(log *logger.Logger) *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users: make(map[uuid.UUID]domain.User),
		log:   log,
	}
}

// GetByID returns a user by ID
func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

// GetByStripeCustomerID returns the user mapped to a provider customer
func (r *InMemoryUserRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (domain.User, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, user := range r.users {
		if user.StripeCustomerID != "" && user.StripeCustomerID == customerID {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrNotFound
}

// SetStripeCustomerID stores the provider customer mapping
func (r *InMemoryUserRepository) SetStripeCustomerID(ctx context.Context, userID uuid.UUID, customerID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	user, exists := r.users[userID]
	if !exists {
		return domain.ErrNotFound
	}
	user.StripeCustomerID = customerID
	user.UpdatedAt = time.Now()
	r.users[userID] = user
	return nil
}

// Create stores a user. Seed and test helper.
func (r *InMemoryUserRepository) Create(ctx context.Context, user domain.User) (domain.User, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()
	r.users[user.ID] = user
	return user, nil
}
