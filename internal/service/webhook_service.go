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

// Provider period timestamps before this epoch are garbage and must not
// overwrite local state.
var minSaneEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()

// Upgrade-difference payments defer the next full charge by roughly one
// period via a provider-side trial.
const upgradeTrialDays = 30

// WebhookService reconciles normalized provider events against local state.
// Every event is durably logged before processing; duplicate deliveries of a
// processed event bump the retry counter and are otherwise ignored.
type WebhookService interface {
	// ProcessEvent logs and dispatches a normalized event. An error comes
	// back only when the durable log write itself failed and the delivery
	// must not be acknowledged; a failure after logging is recorded on the
	// event row and the delivery is acknowledged for later replay.
	ProcessEvent(ctx context.Context, event domain.ProviderEvent, payload []byte) error

	// ListEvents pages through the webhook audit log, newest first.
	ListEvents(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error)

	// RetryEvent re-runs processing for a logged event that failed.
	RetryEvent(ctx context.Context, id uuid.UUID) error
}

type webhookService struct {
	webhookRepo      repository.WebhookEventRepository
	subscriptionRepo repository.SubscriptionRepository
	transactionRepo  repository.TransactionRepository
	packRepo         repository.PackRepository
	userRepo         repository.UserRepository
	subscriptions    SubscriptionService
	provider         stripe.Provider
	messenger        telegram.Messenger
	notifier         notify.Notifier
	producer         notify.EventProducer
	metrics          metrics.SubscriptionMetrics
	log              *logger.Logger
	now              func() time.Time
}

// NewWebhookService creates the webhook reconciler.
func NewWebhookService(
	webhookRepo repository.WebhookEventRepository,
	subscriptionRepo repository.SubscriptionRepository,
	transactionRepo repository.TransactionRepository,
	packRepo repository.PackRepository,
	userRepo repository.UserRepository,
	subscriptions SubscriptionService,
	provider stripe.Provider,
	messenger telegram.Messenger,
	notifier notify.Notifier,
	producer notify.EventProducer,
	m metrics.SubscriptionMetrics,
	log *logger.Logger,
) WebhookService {
	return &webhookService{
		webhookRepo:      webhookRepo,
		subscriptionRepo: subscriptionRepo,
		transactionRepo:  transactionRepo,
		packRepo:         packRepo,
		userRepo:         userRepo,
		subscriptions:    subscriptions,
		provider:         provider,
		messenger:        messenger,
		notifier:         notifier,
		producer:         producer,
		metrics:          m,
		log:              log,
		now:              time.Now,
	}
}

func (s *webhookService) ProcessEvent(ctx context.Context, event domain.ProviderEvent, payload []byte) error {
	logged, duplicate, err := s.webhookRepo.Upsert(ctx, domain.WebhookEvent{
		Provider:  event.Provider,
		EventID:   event.ID,
		EventType: event.RawType,
		Payload:   payload,
	})
	if err != nil {
		// Without the durable log row the event would be lost on ack; the
		// caller must answer with an error so the provider redelivers.
		return fmt.Errorf("persist webhook event %s: %w", event.ID, err)
	}
	if duplicate && logged.Processed {
		s.log.Infow("Duplicate delivery of processed event, skipping",
			"eventID", event.ID, "retryCount", logged.RetryCount)
		s.metrics.IncWebhookEvent(string(event.Type), "duplicate")
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		// The event is on the log; the failure stays on the row and the
		// delivery is acknowledged, replayable via RetryEvent.
		s.log.Errorw("Webhook processing failed",
			"eventID", event.ID, "eventType", event.RawType, "error", err)
		s.metrics.IncWebhookEvent(string(event.Type), "failed")
		if markErr := s.webhookRepo.MarkFailed(ctx, logged.ID, err.Error()); markErr != nil {
			s.log.Errorw("Failed to record processing error", "eventID", event.ID, "error", markErr)
		}
		return nil
	}

	s.metrics.IncWebhookEvent(string(event.Type), "processed")
	if err := s.webhookRepo.MarkProcessed(ctx, logged.ID); err != nil {
		s.log.Errorw("Failed to mark event processed", "eventID", event.ID, "error", err)
	}
	return nil
}

func (s *webhookService) ListEvents(ctx context.Context, limit, offset int) ([]domain.WebhookEvent, error) {
	return s.webhookRepo.List(ctx, limit, offset)
}

func (s *webhookService) RetryEvent(ctx context.Context, id uuid.UUID) error {
	logged, err := s.webhookRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if logged.Processed {
		return domain.NewConflictError("webhook event", "event already processed")
	}

	event, err := stripe.NormalizeRaw(logged.Payload)
	if err != nil {
		return err
	}
	if err := s.dispatch(ctx, event); err != nil {
		if markErr := s.webhookRepo.MarkFailed(ctx, logged.ID, err.Error()); markErr != nil {
			s.log.Errorw("Failed to record retry error", "eventID", logged.EventID, "error", markErr)
		}
		return err
	}
	return s.webhookRepo.MarkProcessed(ctx, logged.ID)
}

func (s *webhookService) dispatch(ctx context.Context, event domain.ProviderEvent) error {
	switch event.Type {
	case domain.ProviderEventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, event.Checkout)
	case domain.ProviderEventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, event.SubscriptionUpdated)
	case domain.ProviderEventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event.SubscriptionDeleted)
	case domain.ProviderEventInvoicePaid:
		return s.handleInvoicePaid(ctx, event.Invoice)
	case domain.ProviderEventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event.Invoice)
	case domain.ProviderEventChargeFailed:
		return s.handleChargeFailed(ctx, event.Charge)
	case domain.ProviderEventChargeDisputeCreated:
		return s.handleChargeDisputeCreated(ctx, event.Charge)
	case domain.ProviderEventChargeRefunded:
		return s.subscriptions.HandleRefund(ctx, event.Charge.PaymentIntentID, event.Charge.AmountRefunded, event.Charge.Currency)
	default:
		s.log.Infow("Ignoring unhandled event type", "eventType", event.RawType)
		return nil
	}
}

func (s *webhookService) handleCheckoutCompleted(ctx context.Context, e *domain.CheckoutCompletedEvent) error {
	userID, err := uuid.Parse(e.Metadata.UserID)
	if err != nil {
		return domain.NewValidationError("userId", "checkout metadata carries no valid user id")
	}
	packID, err := uuid.Parse(e.Metadata.PackID)
	if err != nil {
		return domain.NewValidationError("packId", "checkout metadata carries no valid pack id")
	}

	pack, err := s.packRepo.GetByID(ctx, packID)
	if err != nil {
		return err
	}

	externalSubID := e.SubscriptionID
	var upgrade *domain.UpgradeOrigin

	if e.Metadata.IsUpgrade {
		upgrade, err = s.prepareUpgrade(ctx, e)
		if err != nil {
			return err
		}
		if externalSubID == "" {
			// One-time difference payment: normalize it into a provider
			// subscription whose first full charge is deferred by the trial.
			trialEnd := s.now().AddDate(0, 0, upgradeTrialDays)
			externalSubID, err = s.provider.CreateTrialSubscription(ctx, e.CustomerID, pack.Name,
				pack.PriceMonthly, pack.Currency, trialEnd, checkoutMetadataMap(e.Metadata))
			if err != nil {
				return err
			}
		}
	}

	// No auto-renew by design: every renewal is a fresh manual purchase, so
	// the provider subscription is parked on cancel-at-period-end.
	if externalSubID != "" && externalSubID == e.SubscriptionID {
		if err := s.provider.CancelSubscription(ctx, externalSubID, true); err != nil {
			s.log.Errorw("Failed to disable provider auto-renew",
				"stripeSubscriptionID", externalSubID, "error", err)
		}
	}

	sub, err := s.subscriptions.ActivatePaidSubscription(ctx, userID, packID, externalSubID, upgrade)
	if err != nil {
		return err
	}

	description := fmt.Sprintf("Purchase of pack %s", pack.Name)
	if e.Metadata.IsUpgrade {
		description = fmt.Sprintf("Upgrade from %s to %s", e.Metadata.OldPackName, pack.Name)
	}
	if _, err := s.transactionRepo.Create(ctx, domain.Transaction{
		UserID:                userID,
		SubscriptionID:        sub.ID,
		Amount:                e.AmountTotal,
		Currency:              e.Currency,
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: e.PaymentIntentID,
		Description:           description,
	}); err != nil {
		return err
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to load user for purchase confirmation", "userID", userID, "error", err)
		return nil
	}
	if user.TelegramUserID != 0 {
		// Lift any earlier ban so the one-time invite links work.
		if err := s.messenger.UnbanUser(ctx, user.TelegramUserID, user.PreferredLanguage); err != nil {
			s.log.Errorw("Failed to unban user before invite", "userID", userID, "error", err)
		}
	}
	s.notifier.SendPaymentConfirmation(ctx, user, pack)
	return nil
}

// prepareUpgrade cancels the superseded provider subscription and builds the
// lineage recorded on the new row.
func (s *webhookService) prepareUpgrade(ctx context.Context, e *domain.CheckoutCompletedEvent) (*domain.UpgradeOrigin, error) {
	previousPackID, err := uuid.Parse(e.Metadata.PreviousPackID)
	if err != nil {
		return nil, domain.NewValidationError("previousPackId", "upgrade metadata carries no valid previous pack id")
	}
	previousSubID, err := uuid.Parse(e.Metadata.CurrentSubscriptionID)
	if err != nil {
		return nil, domain.NewValidationError("currentSubscriptionId", "upgrade metadata carries no valid subscription id")
	}

	previous, err := s.subscriptionRepo.GetByID(ctx, previousSubID)
	switch {
	case err == nil:
		if previous.StripeSubscriptionID != "" {
			if cancelErr := s.provider.CancelSubscription(ctx, previous.StripeSubscriptionID, false); cancelErr != nil {
				s.log.Errorw("Failed to cancel superseded provider subscription",
					"stripeSubscriptionID", previous.StripeSubscriptionID, "error", cancelErr)
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		s.log.Warnw("Upgrade metadata references unknown subscription", "subscriptionID", previousSubID)
	default:
		return nil, err
	}

	return &domain.UpgradeOrigin{
		PreviousPackID:         previousPackID,
		PreviousSubscriptionID: previousSubID,
	}, nil
}

func (s *webhookService) handleSubscriptionUpdated(ctx context.Context, e *domain.SubscriptionUpdatedEvent) error {
	sub, err := s.subscriptionRepo.GetByStripeID(ctx, e.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Infow("Update for unknown provider subscription, ignoring", "stripeSubscriptionID", e.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}
	if sub.Status != domain.SubscriptionStatusActive {
		// Out-of-order delivery must not resurrect a terminal row.
		s.log.Infow("Update for non-active subscription, ignoring",
			"subscriptionID", sub.ID, "status", sub.Status)
		return nil
	}
	if e.CurrentPeriodStart < minSaneEpoch || e.CurrentPeriodEnd < minSaneEpoch {
		s.log.Warnw("Rejecting subscription update with invalid period timestamps",
			"subscriptionID", sub.ID, "periodStart", e.CurrentPeriodStart, "periodEnd", e.CurrentPeriodEnd)
		return nil
	}

	sub.CurrentPeriodStart = time.Unix(e.CurrentPeriodStart, 0)
	sub.CurrentPeriodEnd = time.Unix(e.CurrentPeriodEnd, 0)
	sub.CancelAtPeriodEnd = e.CancelAtPeriodEnd
	return s.subscriptionRepo.Update(ctx, sub)
}

func (s *webhookService) handleSubscriptionDeleted(ctx context.Context, e *domain.SubscriptionDeletedEvent) error {
	sub, err := s.subscriptionRepo.GetByStripeID(ctx, e.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Infow("Deletion of unknown provider subscription, ignoring", "stripeSubscriptionID", e.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}
	if sub.Status != domain.SubscriptionStatusActive {
		return nil
	}

	now := s.now()
	sub.Status = domain.SubscriptionStatusCancelled
	sub.CancelledAt = &now
	if err := s.subscriptionRepo.Update(ctx, sub); err != nil {
		return err
	}

	pack, err := s.packRepo.GetByID(ctx, sub.PackID)
	if err != nil {
		s.log.Errorw("Failed to load pack after provider deletion", "packID", sub.PackID, "error", err)
		return nil
	}
	s.metrics.IncCancelled(pack.Name)
	if err := s.producer.PublishSubscriptionCancelled(ctx, sub); err != nil {
		s.log.Errorw("Failed to publish cancellation event", "subscriptionID", sub.ID, "error", err)
	}
	s.subscriptions.ApplyAccessRemoval(ctx, sub.UserID, pack)
	return nil
}

func (s *webhookService) handleInvoicePaid(ctx context.Context, e *domain.InvoiceEvent) error {
	if e.SubscriptionID == "" {
		s.log.Infow("Invoice without subscription, ignoring", "invoiceID", e.InvoiceID)
		return nil
	}

	sub, err := s.subscriptionRepo.GetByStripeID(ctx, e.SubscriptionID)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Infow("Invoice for unknown provider subscription, ignoring",
			"invoiceID", e.InvoiceID, "stripeSubscriptionID", e.SubscriptionID)
		return nil
	}
	if err != nil {
		return err
	}

	// First invoice of a checkout is recorded by the checkout handler.
	if e.PaymentIntentID != "" {
		if _, err := s.transactionRepo.GetByPaymentIntentID(ctx, e.PaymentIntentID); err == nil {
			return nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	_, err = s.transactionRepo.Create(ctx, domain.Transaction{
		UserID:                sub.UserID,
		SubscriptionID:        sub.ID,
		Amount:                e.Amount,
		Currency:              e.Currency,
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: e.PaymentIntentID,
		Description:           "Invoice " + e.InvoiceID,
	})
	return err
}

func (s *webhookService) handleInvoicePaymentFailed(ctx context.Context, e *domain.InvoiceEvent) error {
	detail := fmt.Sprintf("invoice %s, customer %s, amount %.2f %s", e.InvoiceID, e.CustomerID, e.Amount, e.Currency)

	if e.SubscriptionID != "" {
		if sub, err := s.subscriptionRepo.GetByStripeID(ctx, e.SubscriptionID); err == nil {
			if _, err := s.transactionRepo.Create(ctx, domain.Transaction{
				UserID:                sub.UserID,
				SubscriptionID:        sub.ID,
				Amount:                e.Amount,
				Currency:              e.Currency,
				Status:                domain.TransactionStatusFailed,
				StripePaymentIntentID: e.PaymentIntentID,
				Description:           "Failed invoice " + e.InvoiceID,
			}); err != nil {
				return err
			}
			detail = fmt.Sprintf("user %s, %s", sub.UserID, detail)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	s.notifier.SendAdminPaymentAlert(ctx, "Invoice payment failed", detail)
	if err := s.producer.PublishPaymentFailed(ctx, notify.PaymentFailedEvent{
		PaymentIntentID: e.PaymentIntentID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Reason:          "invoice payment failed",
	}); err != nil {
		s.log.Errorw("Failed to publish payment failure event", "invoiceID", e.InvoiceID, "error", err)
	}
	return nil
}

func (s *webhookService) handleChargeFailed(ctx context.Context, e *domain.ChargeEvent) error {
	detail := fmt.Sprintf("charge %s, customer %s, amount %.2f %s: %s",
		e.ChargeID, e.CustomerID, e.Amount, e.Currency, e.FailureMessage)
	s.notifier.SendAdminPaymentAlert(ctx, "Charge failed", detail)
	if err := s.producer.PublishPaymentFailed(ctx, notify.PaymentFailedEvent{
		PaymentIntentID: e.PaymentIntentID,
		Amount:          e.Amount,
		Currency:        e.Currency,
		Reason:          e.FailureMessage,
	}); err != nil {
		s.log.Errorw("Failed to publish payment failure event", "chargeID", e.ChargeID, "error", err)
	}
	return nil
}

// handleChargeDisputeCreated changes no local state; disputes are resolved
// by hand.
func (s *webhookService) handleChargeDisputeCreated(ctx context.Context, e *domain.ChargeEvent) error {
	detail := fmt.Sprintf("charge %s, payment intent %s, amount %.2f %s",
		e.ChargeID, e.PaymentIntentID, e.Amount, e.Currency)
	s.notifier.SendAdminPaymentAlert(ctx, "Charge dispute opened", detail)
	return nil
}
