package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/stripe"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/telegram"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/metrics"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// CheckoutConfig holds the redirect URLs stamped on provider checkout
// sessions.
type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
}

// CheckoutResult is returned to the caller so the user can be redirected to
// the hosted checkout page.
type CheckoutResult struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SubscriptionService is the subscription state machine. ACTIVE rows move to
// CANCELLED (cancel, refund, upgrade supersede) or EXPIRED (sweep); both are
// terminal, renewals are always new rows.
type SubscriptionService interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error)
	GetTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error)

	// CreateCheckout validates purchase eligibility and opens a provider
	// checkout session. Eligibility failures happen before any provider
	// call.
	CreateCheckout(ctx context.Context, userID, packID uuid.UUID) (CheckoutResult, error)

	// ActivatePaidSubscription inserts a new ACTIVE subscription, atomically
	// cancelling the user's prior active paid one. The only path that
	// creates subscription rows.
	ActivatePaidSubscription(ctx context.Context, userID, packID uuid.UUID, externalSubID string, upgrade *domain.UpgradeOrigin) (domain.Subscription, error)

	// CancelSubscription cancels remotely first, then mirrors locally.
	CancelSubscription(ctx context.Context, userID, subID uuid.UUID, immediate bool) (domain.Subscription, error)

	// RequestRefund asks the provider to refund a completed transaction in
	// full. Local state is untouched here; the provider's refund webhook
	// drives the unwind once the refund settles.
	RequestRefund(ctx context.Context, transactionID uuid.UUID) error

	// HandleRefund unwinds one upgrade step: marks the ledger row REFUNDED,
	// cancels the current active paid subscription and restores the
	// previous pack when the cancelled row was an upgrade.
	HandleRefund(ctx context.Context, paymentIntentID string, amountRefunded float64, currency string) error

	// ApplyAccessRemoval kicks the user from the Telegram groups and sends
	// the subscription-ended notice, but only when no other live paid
	// subscription remains. Failures are logged, never propagated.
	ApplyAccessRemoval(ctx context.Context, userID uuid.UUID, pack domain.Pack)
}

type subscriptionService struct {
	subscriptionRepo repository.SubscriptionRepository
	transactionRepo  repository.TransactionRepository
	packRepo         repository.PackRepository
	userRepo         repository.UserRepository
	provider         stripe.Provider
	messenger        telegram.Messenger
	notifier         notify.Notifier
	producer         notify.EventProducer
	metrics          metrics.SubscriptionMetrics
	checkout         CheckoutConfig
	log              *logger.Logger
	now              func() time.Time
}

// NewSubscriptionService creates the subscription state machine.
func NewSubscriptionService(
	subscriptionRepo repository.SubscriptionRepository,
	transactionRepo repository.TransactionRepository,
	packRepo repository.PackRepository,
	userRepo repository.UserRepository,
	provider stripe.Provider,
	messenger telegram.Messenger,
	notifier notify.Notifier,
	producer notify.EventProducer,
	m metrics.SubscriptionMetrics,
	checkout CheckoutConfig,
	log *logger.Logger,
) SubscriptionService {
	return &subscriptionService{
		subscriptionRepo: subscriptionRepo,
		transactionRepo:  transactionRepo,
		packRepo:         packRepo,
		userRepo:         userRepo,
		provider:         provider,
		messenger:        messenger,
		notifier:         notifier,
		producer:         producer,
		metrics:          m,
		checkout:         checkout,
		log:              log,
		now:              time.Now,
	}
}

func (s *subscriptionService) GetByID(ctx context.Context, id uuid.UUID) (domain.Subscription, error) {
	return s.subscriptionRepo.GetByID(ctx, id)
}

func (s *subscriptionService) GetByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Subscription, error) {
	return s.subscriptionRepo.GetByUserID(ctx, userID)
}

func (s *subscriptionService) GetTransactions(ctx context.Context, userID uuid.UUID) ([]domain.Transaction, error) {
	return s.transactionRepo.GetByUserID(ctx, userID)
}

// checkoutPlan is the outcome of the eligibility check: what to charge and
// what upgrade context to stamp on the session.
type checkoutPlan struct {
	amount   float64
	metadata domain.CheckoutMetadata
}

func (s *subscriptionService) planCheckout(ctx context.Context, userID uuid.UUID, pack domain.Pack) (checkoutPlan, error) {
	plan := checkoutPlan{
		amount: pack.PriceMonthly,
		metadata: domain.CheckoutMetadata{
			UserID: userID.String(),
			PackID: pack.ID.String(),
		},
	}

	current, err := s.subscriptionRepo.GetActiveByUserID(ctx, userID, s.now())
	if errors.Is(err, domain.ErrNotFound) {
		return plan, nil
	}
	if err != nil {
		return checkoutPlan{}, err
	}

	if current.PackID == pack.ID {
		return checkoutPlan{}, domain.NewConflictError("subscription",
			fmt.Sprintf("already subscribed to pack %q", pack.Name))
	}

	currentPack, err := s.packRepo.GetByID(ctx, current.PackID)
	if err != nil {
		return checkoutPlan{}, err
	}
	if pack.PriceMonthly <= currentPack.PriceMonthly {
		return checkoutPlan{}, domain.NewConflictError("subscription",
			fmt.Sprintf("current pack %q (%.2f %s) blocks this purchase: only upgrades to a higher-priced pack are allowed",
				currentPack.Name, currentPack.PriceMonthly, currentPack.Currency))
	}

	plan.amount = pack.PriceMonthly - currentPack.PriceMonthly
	plan.metadata.IsUpgrade = true
	plan.metadata.CurrentSubscriptionID = current.ID.String()
	plan.metadata.PreviousPackID = currentPack.ID.String()
	plan.metadata.OldPackName = currentPack.Name
	return plan, nil
}

func (s *subscriptionService) CreateCheckout(ctx context.Context, userID, packID uuid.UUID) (CheckoutResult, error) {
	pack, err := s.packRepo.GetByID(ctx, packID)
	if err != nil {
		return CheckoutResult{}, err
	}
	if pack.IsFree {
		return CheckoutResult{}, domain.NewValidationError("packId", "free packs cannot be purchased")
	}
	if !pack.IsActive {
		return CheckoutResult{}, domain.NewValidationError("packId", "pack is not available for purchase")
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return CheckoutResult{}, err
	}

	plan, err := s.planCheckout(ctx, userID, pack)
	if err != nil {
		return CheckoutResult{}, err
	}

	customerID, err := s.provider.GetOrCreateCustomer(ctx, user.ID.String(), user.Email)
	if err != nil {
		return CheckoutResult{}, err
	}
	if user.StripeCustomerID != customerID {
		if err := s.userRepo.SetStripeCustomerID(ctx, user.ID, customerID); err != nil {
			s.log.Warnw("Failed to store customer mapping", "userID", user.ID, "error", err)
		}
	}

	session, err := s.provider.CreateCheckoutSession(ctx, stripe.CheckoutSessionParams{
		CustomerID: customerID,
		PackName:   pack.Name,
		Amount:     plan.amount,
		Currency:   pack.Currency,
		OneTime:    plan.metadata.IsUpgrade,
		SuccessURL: s.checkout.SuccessURL,
		CancelURL:  s.checkout.CancelURL,
		Metadata:   checkoutMetadataMap(plan.metadata),
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	s.log.Infow("Checkout session created",
		"userID", userID, "packID", packID, "sessionID", session.ID, "isUpgrade", plan.metadata.IsUpgrade)
	return CheckoutResult{SessionID: session.ID, URL: session.URL}, nil
}

func checkoutMetadataMap(m domain.CheckoutMetadata) map[string]string {
	out := map[string]string{
		"userId": m.UserID,
		"packId": m.PackID,
	}
	if m.IsUpgrade {
		out["isUpgrade"] = "true"
		out["currentSubscriptionId"] = m.CurrentSubscriptionID
		out["previousPackId"] = m.PreviousPackID
		out["oldPackName"] = m.OldPackName
	}
	return out
}

func (s *subscriptionService) ActivatePaidSubscription(ctx context.Context, userID, packID uuid.UUID, externalSubID string, upgrade *domain.UpgradeOrigin) (domain.Subscription, error) {
	pack, err := s.packRepo.GetByID(ctx, packID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if pack.IsFree {
		return domain.Subscription{}, domain.NewValidationError("packId", "free packs do not create subscriptions")
	}

	now := s.now()
	sub := domain.Subscription{
		ID:                   uuid.New(),
		UserID:               userID,
		PackID:               packID,
		Status:               domain.SubscriptionStatusActive,
		CurrentPeriodStart:   now,
		CurrentPeriodEnd:     domain.AddCalendarMonth(now),
		StripeSubscriptionID: externalSubID,
		Upgrade:              upgrade,
	}

	// Locating and cancelling the prior active row happens inside the
	// repository transaction; a read here could go stale under concurrent
	// checkout completions.
	created, err := s.subscriptionRepo.ActivateWithSupersede(ctx, sub)
	if err != nil {
		return domain.Subscription{}, err
	}

	s.metrics.IncActivated(pack.Name)
	if err := s.producer.PublishSubscriptionActivated(ctx, created); err != nil {
		s.log.Errorw("Failed to publish activation event", "subscriptionID", created.ID, "error", err)
	}

	s.log.Infow("Subscription activated",
		"subscriptionID", created.ID, "userID", userID, "packID", packID,
		"periodEnd", created.CurrentPeriodEnd, "isUpgrade", created.IsUpgrade())
	return created, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, userID, subID uuid.UUID, immediate bool) (domain.Subscription, error) {
	sub, err := s.subscriptionRepo.GetByID(ctx, subID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.UserID != userID {
		return domain.Subscription{}, domain.NewNotFoundError("subscription", subID.String())
	}

	pack, err := s.packRepo.GetByID(ctx, sub.PackID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if pack.IsFree {
		return domain.Subscription{}, domain.NewValidationError("subscriptionId", "free pack access cannot be cancelled")
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return domain.Subscription{}, domain.NewConflictError("subscription", "subscription is not active")
	}

	// Remote first. A provider failure here aborts the cancel before local
	// state changes.
	if sub.StripeSubscriptionID != "" {
		if err := s.provider.CancelSubscription(ctx, sub.StripeSubscriptionID, !immediate); err != nil {
			return domain.Subscription{}, err
		}
	}

	now := s.now()
	if immediate {
		sub.Status = domain.SubscriptionStatusCancelled
		sub.CancelledAt = &now
	} else {
		sub.CancelAtPeriodEnd = true
	}
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return domain.Subscription{}, err
	}

	s.metrics.IncCancelled(pack.Name)
	if err := s.producer.PublishSubscriptionCancelled(ctx, sub); err != nil {
		s.log.Errorw("Failed to publish cancellation event", "subscriptionID", sub.ID, "error", err)
	}

	if immediate {
		s.ApplyAccessRemoval(ctx, sub.UserID, pack)
	}

	s.log.Infow("Subscription cancelled",
		"subscriptionID", sub.ID, "userID", userID, "immediate", immediate)
	return sub, nil
}

func (s *subscriptionService) RequestRefund(ctx context.Context, transactionID uuid.UUID) error {
	txn, err := s.transactionRepo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn.Status != domain.TransactionStatusCompleted {
		return domain.NewConflictError("transaction", "only completed transactions can be refunded")
	}
	if txn.StripePaymentIntentID == "" {
		return domain.NewValidationError("transactionId", "transaction carries no provider payment")
	}

	if err := s.provider.CreateRefund(ctx, txn.StripePaymentIntentID); err != nil {
		return err
	}

	s.log.Infow("Refund requested",
		"transactionID", txn.ID, "paymentIntentID", txn.StripePaymentIntentID)
	return nil
}

func (s *subscriptionService) HandleRefund(ctx context.Context, paymentIntentID string, amountRefunded float64, currency string) error {
	txn, err := s.transactionRepo.GetByPaymentIntentID(ctx, paymentIntentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warnw("Refund for unknown payment intent, ignoring", "paymentIntentID", paymentIntentID)
		return nil
	}
	if err != nil {
		return err
	}
	if txn.Status == domain.TransactionStatusRefunded {
		s.log.Infow("Transaction already refunded, ignoring", "transactionID", txn.ID)
		return nil
	}

	now := s.now()
	current, err := s.subscriptionRepo.GetActiveByUserID(ctx, txn.UserID, now)
	if errors.Is(err, domain.ErrNotFound) {
		// Nothing left to cancel, just flip the ledger row.
		if err := s.transactionRepo.UpdateStatus(ctx, txn.ID, domain.TransactionStatusRefunded); err != nil {
			return err
		}
		s.notifyRefund(ctx, txn.UserID, amountRefunded, currency)
		return nil
	}
	if err != nil {
		return err
	}

	restore, err := s.buildRestoredSubscription(ctx, current, now)
	if err != nil {
		return err
	}

	// The unwind locates and cancels the user's active row inside its own
	// transaction; the read above only shapes the restore.
	restored, err := s.subscriptionRepo.RefundUnwind(ctx, txn.ID, txn.UserID, restore)
	if err != nil {
		return err
	}

	// Provider cleanup happens after the local commit. Local state is
	// authoritative for entitlement; a provider failure here is logged and
	// retried out of band.
	if current.StripeSubscriptionID != "" {
		if err := s.provider.CancelSubscription(ctx, current.StripeSubscriptionID, false); err != nil {
			s.log.Errorw("Provider-side cancel failed after refund commit",
				"subscriptionID", current.ID, "stripeSubscriptionID", current.StripeSubscriptionID, "error", err)
		}
	}

	if pack, err := s.packRepo.GetByID(ctx, current.PackID); err == nil {
		s.metrics.IncRefunded(pack.Name)
	}
	if err := s.producer.PublishSubscriptionCancelled(ctx, current); err != nil {
		s.log.Errorw("Failed to publish refund cancellation event", "subscriptionID", current.ID, "error", err)
	}

	s.notifyRefund(ctx, txn.UserID, amountRefunded, currency)

	if restored != nil {
		s.log.Infow("Refund restored previous pack",
			"userID", txn.UserID, "restoredSubscriptionID", restored.ID, "packID", restored.PackID)
		return nil
	}

	// No restoration: kick only if nothing else paid keeps the user in.
	if pack, err := s.packRepo.GetByID(ctx, current.PackID); err == nil {
		s.ApplyAccessRemoval(ctx, txn.UserID, pack)
	}
	return nil
}

// buildRestoredSubscription prepares the previous-pack row for an upgrade
// refund. The restored row copies the previous subscription's own lineage,
// so refunding again unwinds one more step.
func (s *subscriptionService) buildRestoredSubscription(ctx context.Context, current domain.Subscription, now time.Time) (*domain.Subscription, error) {
	if !current.IsUpgrade() {
		return nil, nil
	}

	if _, err := s.packRepo.GetByID(ctx, current.Upgrade.PreviousPackID); err != nil {
		return nil, fmt.Errorf("previous pack lookup for refund restore: %w", err)
	}

	var lineage *domain.UpgradeOrigin
	if prev, err := s.subscriptionRepo.GetByID(ctx, current.Upgrade.PreviousSubscriptionID); err == nil {
		lineage = prev.Upgrade
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return &domain.Subscription{
		ID:                 uuid.New(),
		UserID:             current.UserID,
		PackID:             current.Upgrade.PreviousPackID,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   domain.AddCalendarMonth(now),
		Upgrade:            lineage,
	}, nil
}

func (s *subscriptionService) ApplyAccessRemoval(ctx context.Context, userID uuid.UUID, pack domain.Pack) {
	if _, err := s.subscriptionRepo.GetActiveByUserID(ctx, userID, s.now()); err == nil {
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.log.Errorw("Kick guard check failed", "userID", userID, "error", err)
		return
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to load user for access removal", "userID", userID, "error", err)
		return
	}

	if user.TelegramUserID != 0 {
		if err := s.messenger.KickUser(ctx, user.TelegramUserID, user.PreferredLanguage); err != nil {
			s.log.Errorw("Failed to remove Telegram access", "userID", userID, "error", err)
		}
	}
	s.notifier.SendSubscriptionEnded(ctx, user, pack)
}

func (s *subscriptionService) notifyRefund(ctx context.Context, userID uuid.UUID, amount float64, currency string) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to load user for refund notification", "userID", userID, "error", err)
		return
	}
	s.notifier.SendRefundConfirmation(ctx, user, amount, currency)
}
