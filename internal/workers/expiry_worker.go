package workers

import (
	"context"
	"time"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/metrics"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const (
	expiryInterval = time.Hour
	expiryLockKey  = "libero:lock:expiry-sweep"
)

// ExpiryWorker expires subscriptions past their period end. The sweep reads
// every overdue ACTIVE row regardless of age, so a backlog accumulated
// during downtime is drained on the next tick.
type ExpiryWorker struct {
	subscriptionRepo repository.SubscriptionRepository
	packRepo         repository.PackRepository
	subscriptions    service.SubscriptionService
	producer         notify.EventProducer
	metrics          metrics.SubscriptionMetrics
	locker           Locker
	log              *logger.Logger
	now              func() time.Time
}

// NewExpiryWorker creates the hourly expiry sweep.
func NewExpiryWorker(
	subscriptionRepo repository.SubscriptionRepository,
	packRepo repository.PackRepository,
	subscriptions service.SubscriptionService,
	producer notify.EventProducer,
	m metrics.SubscriptionMetrics,
	locker Locker,
	log *logger.Logger,
) *ExpiryWorker {
	return &ExpiryWorker{
		subscriptionRepo: subscriptionRepo,
		packRepo:         packRepo,
		subscriptions:    subscriptions,
		producer:         producer,
		metrics:          m,
		locker:           locker,
		log:              log,
		now:              time.Now,
	}
}

// Run sweeps hourly until the context is cancelled.
func (w *ExpiryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(expiryInterval)
	defer ticker.Stop()

	w.log.Infow("Expiry worker started", "interval", expiryInterval)
	for {
		select {
		case <-ctx.Done():
			w.log.Infow("Expiry worker stopped")
			return
		case <-ticker.C:
			w.runLocked(ctx)
		}
	}
}

func (w *ExpiryWorker) runLocked(ctx context.Context) {
	ok, err := w.locker.Acquire(ctx, expiryLockKey, expiryInterval/2)
	if err != nil {
		w.log.Errorw("Failed to acquire expiry lock, sweeping anyway", "error", err)
	} else if !ok {
		w.log.Debugw("Expiry sweep held by another instance, skipping")
		return
	}

	if err := w.Sweep(ctx); err != nil {
		w.log.Errorw("Expiry sweep failed", "error", err)
	}
}

// Sweep expires every overdue ACTIVE subscription. Each row is handled
// independently; a failing row is logged and the sweep moves on.
func (w *ExpiryWorker) Sweep(ctx context.Context) error {
	started := w.now()
	expired, err := w.subscriptionRepo.ListExpired(ctx, started)
	if err != nil {
		return err
	}

	swept := 0
	for _, sub := range expired {
		if err := w.expireOne(ctx, sub); err != nil {
			w.log.Errorw("Failed to expire subscription, continuing sweep",
				"subscriptionID", sub.ID, "error", err)
			continue
		}
		swept++
	}

	w.metrics.ObserveSweepDuration("expiry", time.Since(started))
	w.metrics.ObserveSweepRows("expiry", swept)
	if len(expired) > 0 {
		w.log.Infow("Expiry sweep finished", "overdue", len(expired), "expired", swept)
	}
	return nil
}

func (w *ExpiryWorker) expireOne(ctx context.Context, sub domain.Subscription) error {
	if err := w.subscriptionRepo.MarkExpired(ctx, sub.ID); err != nil {
		// Another writer got there first; side effects stay suppressed.
		return err
	}

	pack, err := w.packRepo.GetByID(ctx, sub.PackID)
	if err != nil {
		w.log.Errorw("Failed to load pack for expired subscription",
			"subscriptionID", sub.ID, "packID", sub.PackID, "error", err)
		return nil
	}

	w.metrics.IncExpired(pack.Name)
	if err := w.producer.PublishSubscriptionExpired(ctx, sub); err != nil {
		w.log.Errorw("Failed to publish expiry event", "subscriptionID", sub.ID, "error", err)
	}

	if pack.IsFree {
		return nil
	}

	// Suppressed when another live paid subscription exists, e.g. an old
	// row swept after the user already upgraded.
	w.subscriptions.ApplyAccessRemoval(ctx, sub.UserID, pack)
	return nil
}
