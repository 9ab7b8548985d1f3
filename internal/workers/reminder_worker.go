package workers

import (
	"context"
	"time"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const (
	reminderHour      = 10
	reminderDaysAhead = 3
	reminderLockKey   = "libero:lock:renewal-reminder"
)

// ReminderWorker notifies users whose subscription ends in three days.
// It runs once per day at a fixed local hour; the day-wide window means a
// missed run is covered by the next one with no duplicate messages, since
// each subscription falls into the window exactly once.
type ReminderWorker struct {
	subscriptionRepo repository.SubscriptionRepository
	packRepo         repository.PackRepository
	userRepo         repository.UserRepository
	notifier         notify.Notifier
	locker           Locker
	log              *logger.Logger
	now              func() time.Time
}

// NewReminderWorker creates the daily renewal-reminder sweep.
func NewReminderWorker(
	subscriptionRepo repository.SubscriptionRepository,
	packRepo repository.PackRepository,
	userRepo repository.UserRepository,
	notifier notify.Notifier,
	locker Locker,
	log *logger.Logger,
) *ReminderWorker {
	return &ReminderWorker{
		subscriptionRepo: subscriptionRepo,
		packRepo:         packRepo,
		userRepo:         userRepo,
		notifier:         notifier,
		locker:           locker,
		log:              log,
		now:              time.Now,
	}
}

// Run sweeps once per day at reminderHour local time until the context is
// cancelled.
func (w *ReminderWorker) Run(ctx context.Context) {
	w.log.Infow("Reminder worker started", "hour", reminderHour, "daysAhead", reminderDaysAhead)
	for {
		wait := time.Until(nextRunAt(w.now()))
		select {
		case <-ctx.Done():
			w.log.Infow("Reminder worker stopped")
			return
		case <-time.After(wait):
			w.runLocked(ctx)
		}
	}
}

func nextRunAt(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), reminderHour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (w *ReminderWorker) runLocked(ctx context.Context) {
	ok, err := w.locker.Acquire(ctx, reminderLockKey, time.Hour)
	if err != nil {
		w.log.Errorw("Failed to acquire reminder lock, sweeping anyway", "error", err)
	} else if !ok {
		w.log.Debugw("Reminder sweep held by another instance, skipping")
		return
	}

	if err := w.Sweep(ctx); err != nil {
		w.log.Errorw("Reminder sweep failed", "error", err)
	}
}

// Sweep sends a renewal reminder for every ACTIVE subscription ending on
// the day reminderDaysAhead days from now.
func (w *ReminderWorker) Sweep(ctx context.Context) error {
	now := w.now()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		AddDate(0, 0, reminderDaysAhead)
	to := from.AddDate(0, 0, 1)

	expiring, err := w.subscriptionRepo.ListExpiringBetween(ctx, from, to)
	if err != nil {
		return err
	}

	for _, sub := range expiring {
		w.remindOne(ctx, sub)
	}
	if len(expiring) > 0 {
		w.log.Infow("Reminder sweep finished", "reminded", len(expiring))
	}
	return nil
}

func (w *ReminderWorker) remindOne(ctx context.Context, sub domain.Subscription) {
	user, err := w.userRepo.GetByID(ctx, sub.UserID)
	if err != nil {
		w.log.Errorw("Failed to load user for renewal reminder",
			"subscriptionID", sub.ID, "userID", sub.UserID, "error", err)
		return
	}
	pack, err := w.packRepo.GetByID(ctx, sub.PackID)
	if err != nil {
		w.log.Errorw("Failed to load pack for renewal reminder",
			"subscriptionID", sub.ID, "packID", sub.PackID, "error", err)
		return
	}
	w.notifier.SendRenewalReminder(ctx, user, pack, reminderDaysAhead)
}
