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

// WebhookEventRepository durable log of inbound provider webhooks, keyed by
// the provider's unique event id for idempotency.
type WebhookEventRepository interface {
	// Upsert inserts the event, or bumps retry_count when the
	// (provider, event_id) pair already exists. The second return value
	// reports whether this delivery was a duplicate.
	Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, bool, error)

	// GetByEventID returns the logged event for a provider event id
	GetByEventID(ctx context.Context, provider, eventID string) (domain.WebhookEvent, error)

	// GetByID returns a logged event by internal id
	GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookEvent, error)

	// MarkProcessed flags the event as successfully processed
	MarkProcessed(ctx context.Context, id uuid.UUID) error

	// MarkFailed stores the processing error on the event row
	MarkFailed(ctx context.Context, id uuid.UUID, processingErr string) error

	// List returns logged events, newest first
	List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error)
}

// InMemoryWebhookEventRepository in-memory WebhookEventRepository.
type InMemoryWebhookEventRepository struct {
	events map[uuid.UUID]domain.WebhookEvent
	byKey  map[string]uuid.UUID
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryWebhookEventRepository creates a new in-memory webhook event
// repository
func NewInMemoryWebhookEventRepository(log *logger.Logger) *InMemoryWebhookEventRepository {
	return &InMemoryWebhookEventRepository{
		events: make(map[uuid.UUID]domain.WebhookEvent),
		byKey:  make(map[string]uuid.UUID),
		log:    log,
	}
}

func eventKey(provider, eventID string) string {
	return provider + ":" + eventID
}

// Upsert inserts the event or bumps retry_count on duplicate delivery
func (r *InMemoryWebhookEventRepository) Upsert(ctx context.Context, event domain.WebhookEvent) (domain.WebhookEvent, bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := eventKey(event.Provider, event.EventID)
	if id, exists := r.byKey[key]; exists {
		existing := r.events[id]
		existing.RetryCount++
		existing.UpdatedAt = time.Now()
		r.events[id] = existing
		return existing, true, nil
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now()
	event.UpdatedAt = time.Now()
	r.events[event.ID] = event
	r.byKey[key] = event.ID
	return event, false, nil
}

// GetByEventID returns the logged event for a provider event id
func (r *InMemoryWebhookEventRepository) GetByEventID(ctx context.Context, provider, eventID string) (domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	id, exists := r.byKey[eventKey(provider, eventID)]
	if !exists {
		return domain.WebhookEvent{}, domain.ErrNotFound
	}
	return r.events[id], nil
}

// GetByID returns a logged event by internal id
func (r *InMemoryWebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	event, exists := r.events[id]
	if !exists {
		return domain.WebhookEvent{}, domain.ErrNotFound
	}
	return event, nil
}

// MarkProcessed flags the event as successfully processed
func (r *InMemoryWebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	event, exists := r.events[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	event.Processed = true
	event.Error = ""
	event.ProcessedAt = &now
	event.UpdatedAt = now
	r.events[id] = event
	return nil
}

// MarkFailed stores the processing error on the event row
func (r *InMemoryWebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, processingErr string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	event, exists := r.events[id]
	if !exists {
		return domain.ErrNotFound
	}
	event.Error = processingErr
	event.UpdatedAt = time.Now()
	r.events[id] = event
	return nil
}

// List returns logged events, newest first
func (r *InMemoryWebhookEventRepository) List(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	events := make([]domain.WebhookEvent, 0, len(r.events))
	for _, event := range r.events {
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})

	if offset >= len(events) {
		return []domain.WebhookEvent{}, nil
	}
	end := offset + limit
	if end > len(events) {
		end = len(events)
	}
	return events[offset:end], nil
}
