package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/stripe"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/metrics"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// cancelCall records one provider-side cancellation request.
type cancelCall struct {
	subscriptionID string
	atPeriodEnd    bool
}

// fakeProvider is a recording stand-in for the Stripe client.
type fakeProvider struct {
	customerID   string
	session      stripe.CheckoutSession
	trialSubID   string
	sessionErr   error
	cancelErr    error
	trialErr     error
	refundErr    error
	cancelCalls  []cancelCall
	sessionCalls []stripe.CheckoutSessionParams
	trialCalls   int
	refundCalls  []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		customerID: "cus_test",
		session:    stripe.CheckoutSession{ID: "cs_test", URL: "https://checkout.test/cs_test"},
		trialSubID: "sub_trial",
	}
}

func (p *fakeProvider) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	return p.customerID, nil
}

func (p *fakeProvider) CreateCheckoutSession(ctx context.Context, params stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if p.sessionErr != nil {
		return nil, p.sessionErr
	}
	p.sessionCalls = append(p.sessionCalls, params)
	session := p.session
	return &session, nil
}

func (p *fakeProvider) CreateTrialSubscription(ctx context.Context, customerID, packName string, amount float64, currency string, trialEnd time.Time, metadata map[string]string) (string, error) {
	if p.trialErr != nil {
		return "", p.trialErr
	}
	p.trialCalls++
	return p.trialSubID, nil
}

func (p *fakeProvider) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	if p.cancelErr != nil {
		return p.cancelErr
	}
	p.cancelCalls = append(p.cancelCalls, cancelCall{subscriptionID: subscriptionID, atPeriodEnd: atPeriodEnd})
	return nil
}

func (p *fakeProvider) CreateRefund(ctx context.Context, paymentIntentID string) error {
	if p.refundErr != nil {
		return p.refundErr
	}
	p.refundCalls = append(p.refundCalls, paymentIntentID)
	return nil
}

// fakeMessenger records group membership side effects.
type fakeMessenger struct {
	kicked   []int64
	unbanned []int64
}

func (m *fakeMessenger) KickUser(ctx context.Context, telegramUserID int64, language string) error {
	m.kicked = append(m.kicked, telegramUserID)
	return nil
}

func (m *fakeMessenger) UnbanUser(ctx context.Context, telegramUserID int64, language string) error {
	m.unbanned = append(m.unbanned, telegramUserID)
	return nil
}

func (m *fakeMessenger) CreateInviteLink(ctx context.Context, language string) (string, error) {
	return "https://t.me/+vip", nil
}

func (m *fakeMessenger) CreateCommunityInviteLink(ctx context.Context) (string, error) {
	return "https://t.me/+community", nil
}

func (m *fakeMessenger) SendDirectMessage(ctx context.Context, telegramUserID int64, text string) error {
	return nil
}

// fakeNotifier counts user-facing notifications.
type fakeNotifier struct {
	paymentConfirmations int
	refundConfirmations  int
	subscriptionEnded    int
	renewalReminders     int
	adminAlerts          []string
}

func (n *fakeNotifier) SendPaymentConfirmation(ctx context.Context, user domain.User, pack domain.Pack) {
	n.paymentConfirmations++
}

func (n *fakeNotifier) SendRefundConfirmation(ctx context.Context, user domain.User, amount float64, currency string) {
	n.refundConfirmations++
}

func (n *fakeNotifier) SendSubscriptionEnded(ctx context.Context, user domain.User, pack domain.Pack) {
	n.subscriptionEnded++
}

func (n *fakeNotifier) SendRenewalReminder(ctx context.Context, user domain.User, pack domain.Pack, daysLeft int) {
	n.renewalReminders++
}

func (n *fakeNotifier) SendAdminPaymentAlert(ctx context.Context, subject, detail string) {
	n.adminAlerts = append(n.adminAlerts, subject)
}

// fixture wires the service stack onto in-memory repositories and recording
// fakes.
type fixture struct {
	packRepo         *repository.InMemoryPackRepository
	subscriptionRepo *repository.InMemorySubscriptionRepository
	transactionRepo  *repository.InMemoryTransactionRepository
	userRepo         *repository.InMemoryUserRepository
	webhookRepo      *repository.InMemoryWebhookEventRepository
	provider         *fakeProvider
	messenger        *fakeMessenger
	notifier         *fakeNotifier

	subscriptions SubscriptionService
	packs         PackService
	entitlements  EntitlementService
	webhooks      WebhookService
}

func newFixture() *fixture {
	log := logger.New("error")
	f := &fixture{
		packRepo:        repository.NewInMemoryPackRepository(log),
		transactionRepo: repository.NewInMemoryTransactionRepository(log),
		userRepo:        repository.NewInMemoryUserRepository(log),
		webhookRepo:     repository.NewInMemoryWebhookEventRepository(log),
		provider:        newFakeProvider(),
		messenger:       &fakeMessenger{},
		notifier:        &fakeNotifier{},
	}
	f.subscriptionRepo = repository.NewInMemorySubscriptionRepository(f.transactionRepo, log)

	f.subscriptions = NewSubscriptionService(
		f.subscriptionRepo, f.transactionRepo, f.packRepo, f.userRepo,
		f.provider, f.messenger, f.notifier, notify.NoopEventProducer{},
		metrics.NoopSubscriptionMetrics{},
		CheckoutConfig{SuccessURL: "https://app.test/success", CancelURL: "https://app.test/cancel"},
		log,
	)
	f.packs = NewPackService(f.packRepo, log)
	f.entitlements = NewEntitlementService(f.subscriptionRepo, f.packRepo, log)
	f.webhooks = NewWebhookService(
		f.webhookRepo, f.subscriptionRepo, f.transactionRepo, f.packRepo, f.userRepo,
		f.subscriptions, f.provider, f.messenger, f.notifier,
		notify.NoopEventProducer{}, metrics.NoopSubscriptionMetrics{}, log,
	)
	return f
}

func (f *fixture) seedPack(name string, price float64, free bool) domain.Pack {
	pack, _ := f.packRepo.Create(context.Background(), domain.Pack{
		ID:           uuid.New(),
		Name:         name,
		PriceMonthly: price,
		Currency:     "EUR",
		IsFree:       free,
		IsActive:     true,
	})
	return pack
}

func (f *fixture) seedCategory(name string, active bool) domain.Category {
	cat, _ := f.packRepo.CreateCategory(context.Background(), domain.Category{
		ID:       uuid.New(),
		Name:     name,
		IsActive: active,
	})
	return cat
}

func (f *fixture) seedUser(telegramID int64) domain.User {
	user := domain.User{
		ID:                uuid.New(),
		Email:             "user@test.dev",
		PreferredLanguage: "en",
		Status:            domain.UserStatusActive,
		TelegramUserID:    telegramID,
	}
	created, _ := f.userRepo.Create(context.Background(), user)
	return created
}
