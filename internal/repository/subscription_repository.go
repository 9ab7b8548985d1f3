package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// SubscriptionRepository data access for subscriptions. Only paid packs
// produce rows here; free-pack access never touches this table.
//
// ActivateWithSupersede and RefundUnwind are the two multi-row operations
// the at-most-one-active invariant depends on; both must be atomic.
type SubscriptionRepository interface {
	// GetByID returns a subscription by ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)

	// GetByUserID returns all subscriptions of a user, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)

	// GetActiveByUserID returns the user's single ACTIVE, non-expired
	// subscription, or ErrNotFound
	GetActiveByUserID(ctx context.Context, userID uuid.UUID, now time.Time) (domain.Subscription, error)

	// GetByStripeID returns the subscription holding the given provider
	// subscription id
	GetByStripeID(ctx context.Context, stripeSubscriptionID string) (domain.Subscription, error)

	// Update persists changes to an existing subscription
	Update(ctx context.Context, sub domain.Subscription) error

	// ActivateWithSupersede inserts the new ACTIVE subscription and, in the
	// same transaction, cancels whatever ACTIVE subscription the user
	// currently holds. Locating the current row happens inside the
	// transaction, serialized per user, so two concurrent activations can
	// never both miss it and leave two ACTIVE rows.
	ActivateWithSupersede(ctx context.Context, sub domain.Subscription) (domain.Subscription, error)

	// RefundUnwind atomically marks the transaction REFUNDED, cancels the
	// user's current ACTIVE subscription (located inside the transaction,
	// ErrNotFound when none exists) and, when restore is non-nil, inserts
	// the restored previous-pack subscription. Returns the restored row if
	// any.
	RefundUnwind(ctx context.Context, transactionID, userID uuid.UUID, restore *domain.Subscription) (*domain.Subscription, error)

	// ListExpired returns every ACTIVE subscription with period end at or
	// before now. Unbounded lookback: backlog from downtime is included.
	ListExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error)

	// ListExpiringBetween returns ACTIVE subscriptions with period end in
	// [from, to)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error)

	// MarkExpired transitions an ACTIVE subscription to EXPIRED; no-op
	// (ErrNotFound) when the row is no longer ACTIVE
	MarkExpired(ctx context.Context, id uuid.UUID) error
}

// InMemorySubscriptionRepository in-memory SubscriptionRepository. Shares a
// transaction repository so RefundUnwind can flip the ledger row the way the
// Postgres implementation does in one transaction.
type InMemorySubscriptionRepository struct {
	subscriptions map[uuid.UUID]domain.Subscription
	transactions  *InMemoryTransactionRepository
	mutex         sync.RWMutex
	log           *logger.Logger
}

// NewInMemorySubscriptionRepository creates a new in-memory subscription
// repository
func NewInMemorySubscriptionRepository(transactions *InMemoryTransactionRepository, log *logger.Logger) *InMemorySubscriptionRepository {
	return &InMemorySubscriptionRepository{
		subscriptions: make(map[uuid.UUID]domain.Subscription),
		transactions:  transactions,
		log:           log,
	}
}

// GetByID returns a subscription by ID
func (r *InMemorySubscriptionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	sub, exists := r.subscriptions[id]
	if !exists {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, nil
}

// GetByUserID returns all subscriptions of a user
func (r *InMemorySubscriptionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var subs []domain.Subscription
	for _, sub := range r.subscriptions {
		if sub.UserID == userID {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// GetActiveByUserID returns the user's single live subscription
func (r *InMemorySubscriptionRepository) GetActiveByUserID(ctx context.Context, userID uuid.UUID, now time.Time) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subscriptions {
		if sub.UserID == userID && sub.IsLiveAt(now) {
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrNotFound
}

// GetByStripeID returns the subscription with the given provider id
func (r *InMemorySubscriptionRepository) GetByStripeID(ctx context.Context, stripeSubscriptionID string) (domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, sub := range r.subscriptions {
		if sub.StripeSubscriptionID != "" && sub.StripeSubscriptionID == stripeSubscriptionID {
			return sub, nil
		}
	}
	return domain.Subscription{}, domain.ErrNotFound
}

// Update persists changes to an existing subscription
func (r *InMemorySubscriptionRepository) Update(ctx context.Context, sub domain.Subscription) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.subscriptions[sub.ID]; !exists {
		return domain.ErrNotFound
	}
	sub.UpdatedAt = time.Now()
	r.subscriptions[sub.ID] = sub
	return nil
}

// ActivateWithSupersede inserts the new row and cancels the user's current
// ACTIVE one under the same lock
func (r *InMemorySubscriptionRepository) ActivateWithSupersede(ctx context.Context, sub domain.Subscription) (domain.Subscription, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	now := time.Now()
	r.cancelActiveLocked(sub.UserID, now)

	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.subscriptions[sub.ID] = sub
	return sub, nil
}

// cancelActiveLocked cancels every ACTIVE row of the user. Callers hold the
// write lock.
func (r *InMemorySubscriptionRepository) cancelActiveLocked(userID uuid.UUID, now time.Time) bool {
	cancelled := false
	for id, sub := range r.subscriptions {
		if sub.UserID == userID && sub.Status == domain.SubscriptionStatusActive {
			sub.Status = domain.SubscriptionStatusCancelled
			sub.CancelledAt = &now
			sub.UpdatedAt = now
			r.subscriptions[id] = sub
			cancelled = true
		}
	}
	return cancelled
}

// RefundUnwind marks the ledger row refunded, cancels the user's current
// ACTIVE subscription and optionally restores the previous pack
func (r *InMemorySubscriptionRepository) RefundUnwind(ctx context.Context, transactionID, userID uuid.UUID, restore *domain.Subscription) (*domain.Subscription, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := r.transactions.UpdateStatus(ctx, transactionID, domain.TransactionStatusRefunded); err != nil {
		return nil, err
	}

	now := time.Now()
	if !r.cancelActiveLocked(userID, now) {
		return nil, domain.ErrNotFound
	}

	if restore == nil {
		return nil, nil
	}
	restored := *restore
	restored.CreatedAt = now
	restored.UpdatedAt = now
	r.subscriptions[restored.ID] = restored
	return &restored, nil
}

// ListExpired returns every ACTIVE subscription past its period end
func (r *InMemorySubscriptionRepository) ListExpired(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var subs []domain.Subscription
	for _, sub := range r.subscriptions {
		if sub.Status == domain.SubscriptionStatusActive && !sub.CurrentPeriodEnd.After(now) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// ListExpiringBetween returns ACTIVE subscriptions ending in [from, to)
func (r *InMemorySubscriptionRepository) ListExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Subscription, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var subs []domain.Subscription
	for _, sub := range r.subscriptions {
		if sub.Status != domain.SubscriptionStatusActive {
			continue
		}
		if !sub.CurrentPeriodEnd.Before(from) && sub.CurrentPeriodEnd.Before(to) {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

// MarkExpired transitions an ACTIVE subscription to EXPIRED
func (r *InMemorySubscriptionRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sub, exists := r.subscriptions[id]
	if !exists || sub.Status != domain.SubscriptionStatusActive {
		return domain.ErrNotFound
	}
	sub.Status = domain.SubscriptionStatusExpired
	sub.UpdatedAt = time.Now()
	r.subscriptions[id] = sub
	return nil
}
