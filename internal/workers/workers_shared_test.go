package workers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

type accessRemoval struct {
	userID uuid.UUID
	pack   domain.Pack
}

// stubSubscriptionService records access removals; the sweep workers never
// touch the other operations.
type stubSubscriptionService struct {
	removals []accessRemoval
}

func (s *stubSubscriptionService) GetByID(context.Context, uuid.UUID) (domain.Subscription, error) {
	return domain.Subscription{}, domain.ErrNotFound
}

func (s *stubSubscriptionService) GetByUserID(context.Context, uuid.UUID) ([]domain.Subscription, error) {
	return nil, nil
}

func (s *stubSubscriptionService) GetTransactions(context.Context, uuid.UUID) ([]domain.Transaction, error) {
	return nil, nil
}

func (s *stubSubscriptionService) CreateCheckout(context.Context, uuid.UUID, uuid.UUID) (service.CheckoutResult, error) {
	return service.CheckoutResult{}, errors.New("not implemented")
}

func (s *stubSubscriptionService) ActivatePaidSubscription(context.Context, uuid.UUID, uuid.UUID, string, *domain.UpgradeOrigin) (domain.Subscription, error) {
	return domain.Subscription{}, errors.New("not implemented")
}

func (s *stubSubscriptionService) CancelSubscription(context.Context, uuid.UUID, uuid.UUID, bool) (domain.Subscription, error) {
	return domain.Subscription{}, errors.New("not implemented")
}

func (s *stubSubscriptionService) HandleRefund(context.Context, string, float64, string) error {
	return errors.New("not implemented")
}

func (s *stubSubscriptionService) RequestRefund(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

func (s *stubSubscriptionService) ApplyAccessRemoval(_ context.Context, userID uuid.UUID, pack domain.Pack) {
	s.removals = append(s.removals, accessRemoval{userID: userID, pack: pack})
}

type stubNotifier struct {
	reminders []reminderCall
}

type reminderCall struct {
	user     domain.User
	pack     domain.Pack
	daysLeft int
}

func (n *stubNotifier) SendPaymentConfirmation(context.Context, domain.User, domain.Pack) {}
func (n *stubNotifier) SendRefundConfirmation(context.Context, domain.User, float64, string) {
}
func (n *stubNotifier) SendSubscriptionEnded(context.Context, domain.User, domain.Pack) {}
func (n *stubNotifier) SendAdminPaymentAlert(context.Context, string, string)           {}

func (n *stubNotifier) SendRenewalReminder(_ context.Context, user domain.User, pack domain.Pack, daysLeft int) {
	n.reminders = append(n.reminders, reminderCall{user: user, pack: pack, daysLeft: daysLeft})
}

type deniedLocker struct{}

func (deniedLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, nil
}
func (deniedLocker) Release(context.Context, string) error { return nil }

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("lock store unreachable")
}
func (brokenLocker) Release(context.Context, string) error { return nil }

func testLogger() *logger.Logger {
	return logger.New("error")
}

func seedSubscription(repo *repository.InMemorySubscriptionRepository, userID, packID uuid.UUID, periodEnd time.Time) domain.Subscription {
	sub := domain.Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		PackID:             packID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
		CurrentPeriodEnd:   periodEnd,
	}
	created, _ := repo.ActivateWithSupersede(context.Background(), sub)
	return created
}
