package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// TransactionRepository data access for the append-only payment ledger.
type TransactionRepository interface {
	// Create appends a ledger row
	Create(ctx context.Context, txn domain.Transaction) (domain.Transaction, error)

	// GetByID returns a ledger row by ID
	GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error)

	// GetByPaymentIntentID returns the ledger row holding the given provider
	// payment intent id
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Transaction, error)

	// GetByUserID returns a user's ledger rows, newest first
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// UpdateStatus transitions a ledger row's status
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error
}

// InMemoryTransactionRepository in-memory TransactionRepository.
type InMemoryTransactionRepository struct {
	transactions map[uuid.UUID]domain.Transaction
	mutex        sync.RWMutex
	log          *logger.Logger
}

// NewInMemoryTransactionRepository creates a new in-memory transaction
// repository
func NewInMemoryTransactionRepository(log *logger.Logger) *InMemoryTransactionRepository {
	return &InMemoryTransactionRepository{
		transactions: make(map[uuid.UUID]domain.Transaction),
		log:          log,
	}
}

// Create appends a ledger row
func (r *InMemoryTransactionRepository) Create(ctx context.Context, txn domain.Transaction) (domain.Transaction, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CreatedAt = time.Now()
	txn.UpdatedAt = time.Now()
	r.transactions[txn.ID] = txn
	return txn, nil
}

// GetByID returns a ledger row by ID
func (r *InMemoryTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Transaction, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	txn, exists := r.transactions[id]
	if !exists {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return txn, nil
}

// GetByPaymentIntentID returns the ledger row for a payment intent
func (r *InMemoryTransactionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (domain.Transaction, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, txn := range r.transactions {
		if txn.StripePaymentIntentID != "" && txn.StripePaymentIntentID == paymentIntentID {
			return txn, nil
		}
	}
	return domain.Transaction{}, domain.ErrNotFound
}

// GetByUserID returns a user's ledger rows, newest first
func (r *InMemoryTransactionRepository) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var txns []domain.Transaction
	for _, txn := range r.transactions {
		if txn.UserID == userID {
			txns = append(txns, txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool {
		return txns[i].CreatedAt.After(txns[j].CreatedAt)
	})
	return txns, nil
}

// UpdateStatus transitions a ledger row's status
func (r *InMemoryTransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	txn, exists := r.transactions[id]
	if !exists {
		return domain.ErrNotFound
	}
	txn.Status = status
	txn.UpdatedAt = time.Now()
	r.transactions[id] = txn
	return nil
}
