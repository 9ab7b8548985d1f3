package workers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
)

type reminderFixture struct {
	subscriptionRepo *repository.InMemorySubscriptionRepository
	packRepo         *repository.InMemoryPackRepository
	userRepo         *repository.InMemoryUserRepository
	notifier         *stubNotifier
	worker           *ReminderWorker
}

func newReminderFixture() *reminderFixture {
	log := testLogger()
	transactionRepo := repository.NewInMemoryTransactionRepository(log)
	f := &reminderFixture{
		subscriptionRepo: repository.NewInMemorySubscriptionRepository(transactionRepo, log),
		packRepo:         repository.NewInMemoryPackRepository(log),
		userRepo:         repository.NewInMemoryUserRepository(log),
		notifier:         &stubNotifier{},
	}
	f.worker = NewReminderWorker(
		f.subscriptionRepo,
		f.packRepo,
		f.userRepo,
		f.notifier,
		NoopLocker{},
		log,
	)
	return f
}

func (f *reminderFixture) seed(t *testing.T, email string, periodEnd time.Time) (domain.User, domain.Pack) {
	t.Helper()
	pack, err := f.packRepo.Create(context.Background(), domain.Pack{
		Name:         "Silver",
		PriceMonthly: 50,
		Currency:     "EUR",
		IsActive:     true,
	})
	require.NoError(t, err)
	user, err := f.userRepo.Create(context.Background(), domain.User{
		Email:             email,
		PreferredLanguage: "en",
		Status:            domain.UserStatusActive,
	})
	require.NoError(t, err)
	seedSubscription(f.subscriptionRepo, user.ID, pack.ID, periodEnd)
	return user, pack
}

func TestReminderSweepTargetsThirdDayOut(t *testing.T) {
	f := newReminderFixture()
	now := time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)
	f.worker.now = func() time.Time { return now }

	due, pack := f.seed(t, "due@example.com", now.AddDate(0, 0, 3).Add(2*time.Hour))
	f.seed(t, "soon@example.com", now.AddDate(0, 0, 2))
	f.seed(t, "later@example.com", now.AddDate(0, 0, 4).Add(12*time.Hour))

	require.NoError(t, f.worker.Sweep(context.Background()))

	require.Len(t, f.notifier.reminders, 1)
	assert.Equal(t, due.ID, f.notifier.reminders[0].user.ID)
	assert.Equal(t, pack.ID, f.notifier.reminders[0].pack.ID)
	assert.Equal(t, reminderDaysAhead, f.notifier.reminders[0].daysLeft)
}

func TestReminderSweepWindowIsDayWide(t *testing.T) {
	f := newReminderFixture()
	now := time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)
	f.worker.now = func() time.Time { return now }

	// Window start is inclusive, end is exclusive.
	windowStart := time.Date(2025, time.June, 13, 0, 0, 0, 0, time.UTC)
	f.seed(t, "start@example.com", windowStart)
	f.seed(t, "end@example.com", windowStart.AddDate(0, 0, 1))

	require.NoError(t, f.worker.Sweep(context.Background()))

	require.Len(t, f.notifier.reminders, 1)
	assert.Equal(t, "start@example.com", f.notifier.reminders[0].user.Email)
}

func TestReminderSweepSkipsNonActiveSubscriptions(t *testing.T) {
	f := newReminderFixture()
	now := time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)
	f.worker.now = func() time.Time { return now }

	user, _ := f.seed(t, "cancelled@example.com", now.AddDate(0, 0, 3).Add(2*time.Hour))
	subs, err := f.subscriptionRepo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	sub := subs[0]
	sub.Status = domain.SubscriptionStatusCancelled
	require.NoError(t, f.subscriptionRepo.Update(context.Background(), sub))

	require.NoError(t, f.worker.Sweep(context.Background()))
	assert.Empty(t, f.notifier.reminders)
}

func TestReminderSweepSkipsRowsWithMissingUser(t *testing.T) {
	f := newReminderFixture()
	now := time.Date(2025, time.June, 10, 10, 0, 0, 0, time.UTC)
	f.worker.now = func() time.Time { return now }

	pack, err := f.packRepo.Create(context.Background(), domain.Pack{
		Name: "Silver", PriceMonthly: 50, Currency: "EUR", IsActive: true,
	})
	require.NoError(t, err)
	seedSubscription(f.subscriptionRepo, uuid.New(), pack.ID, now.AddDate(0, 0, 3).Add(time.Hour))

	require.NoError(t, f.worker.Sweep(context.Background()))
	assert.Empty(t, f.notifier.reminders)
}

func TestNextRunAtSameDayBeforeHour(t *testing.T) {
	now := time.Date(2025, time.June, 10, 8, 30, 0, 0, time.UTC)
	next := nextRunAt(now)
	assert.Equal(t, time.Date(2025, time.June, 10, reminderHour, 0, 0, 0, time.UTC), next)
}

func TestNextRunAtRollsToNextDay(t *testing.T) {
	now := time.Date(2025, time.June, 10, reminderHour, 0, 0, 0, time.UTC)
	next := nextRunAt(now)
	assert.Equal(t, time.Date(2025, time.June, 11, reminderHour, 0, 0, 0, time.UTC), next)
}
