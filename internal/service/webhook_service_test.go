package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/metrics"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/notify"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/repository"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// failingUpsertWebhookRepo simulates the event log store being down.
type failingUpsertWebhookRepo struct {
	repository.WebhookEventRepository
}

func (failingUpsertWebhookRepo) Upsert(context.Context, domain.WebhookEvent) (domain.WebhookEvent, bool, error) {
	return domain.WebhookEvent{}, false, errors.New("log store unreachable")
}

func checkoutEvent(userID, packID uuid.UUID, externalSubID string) domain.ProviderEvent {
	return domain.ProviderEvent{
		ID:       "evt_checkout_1",
		Provider: "stripe",
		Type:     domain.ProviderEventCheckoutCompleted,
		RawType:  "checkout.session.completed",
		Checkout: &domain.CheckoutCompletedEvent{
			SessionID:       "cs_1",
			CustomerID:      "cus_test",
			SubscriptionID:  externalSubID,
			PaymentIntentID: "pi_checkout_1",
			AmountTotal:     50,
			Currency:        "EUR",
			Metadata: domain.CheckoutMetadata{
				UserID: userID.String(),
				PackID: packID.String(),
			},
		},
	}
}

func TestProcessCheckoutCompletedActivates(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

	err := f.webhooks.ProcessEvent(context.Background(), checkoutEvent(user.ID, silver.ID, "sub_new"), []byte(`{}`))
	require.NoError(t, err)

	sub, err := f.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, silver.ID, sub.PackID)
	assert.Equal(t, "sub_new", sub.StripeSubscriptionID)

	txn, err := f.transactionRepo.GetByPaymentIntentID(context.Background(), "pi_checkout_1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "Purchase of pack Silver", txn.Description)

	// The product never auto-renews, so the fresh provider subscription is
	// parked on cancel-at-period-end right away.
	require.Len(t, f.provider.cancelCalls, 1)
	assert.Equal(t, "sub_new", f.provider.cancelCalls[0].subscriptionID)
	assert.True(t, f.provider.cancelCalls[0].atPeriodEnd)

	assert.Equal(t, []int64{777}, f.messenger.unbanned)
	assert.Equal(t, 1, f.notifier.paymentConfirmations)

	logged, err := f.webhookRepo.GetByEventID(context.Background(), "stripe", "evt_checkout_1")
	require.NoError(t, err)
	assert.True(t, logged.Processed)
}

func TestProcessCheckoutCompletedUpgrade(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(0)

	silverSub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_silver", nil)
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID:       "evt_upgrade_1",
		Provider: "stripe",
		Type:     domain.ProviderEventCheckoutCompleted,
		RawType:  "checkout.session.completed",
		Checkout: &domain.CheckoutCompletedEvent{
			SessionID:       "cs_2",
			CustomerID:      "cus_test",
			PaymentIntentID: "pi_upgrade_1",
			AmountTotal:     50,
			Currency:        "EUR",
			Metadata: domain.CheckoutMetadata{
				UserID:                user.ID.String(),
				PackID:                gold.ID.String(),
				IsUpgrade:             true,
				CurrentSubscriptionID: silverSub.ID.String(),
				PreviousPackID:        silver.ID.String(),
				OldPackName:           "Silver",
			},
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	// Old provider subscription cancelled immediately, new trial created.
	assert.Equal(t, 1, f.provider.trialCalls)
	require.NotEmpty(t, f.provider.cancelCalls)
	assert.Equal(t, "sub_silver", f.provider.cancelCalls[0].subscriptionID)
	assert.False(t, f.provider.cancelCalls[0].atPeriodEnd)

	active, err := f.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, gold.ID, active.PackID)
	assert.Equal(t, "sub_trial", active.StripeSubscriptionID)
	require.NotNil(t, active.Upgrade)
	assert.Equal(t, silver.ID, active.Upgrade.PreviousPackID)
	assert.Equal(t, silverSub.ID, active.Upgrade.PreviousSubscriptionID)

	old, err := f.subscriptionRepo.GetByID(context.Background(), silverSub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, old.Status)

	txn, err := f.transactionRepo.GetByPaymentIntentID(context.Background(), "pi_upgrade_1")
	require.NoError(t, err)
	assert.Equal(t, "Upgrade from Silver to Gold", txn.Description)
}

func TestProcessEventDuplicateDeliveryHasNoSecondEffect(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)
	event := checkoutEvent(user.ID, silver.ID, "sub_new")

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))
	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	subs, err := f.subscriptionRepo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	logged, err := f.webhookRepo.GetByEventID(context.Background(), "stripe", "evt_checkout_1")
	require.NoError(t, err)
	assert.True(t, logged.Processed)
	assert.Equal(t, 1, logged.RetryCount)
}

func TestProcessEventFailureRecordedOnLog(t *testing.T) {
	f := newFixture()
	event := domain.ProviderEvent{
		ID:       "evt_bad_1",
		Provider: "stripe",
		Type:     domain.ProviderEventCheckoutCompleted,
		RawType:  "checkout.session.completed",
		Checkout: &domain.CheckoutCompletedEvent{
			Metadata: domain.CheckoutMetadata{UserID: "not-a-uuid"},
		},
	}

	// The event is on the log, so the delivery is acknowledged; the failure
	// stays on the stored row for a later retry.
	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	logged, err := f.webhookRepo.GetByEventID(context.Background(), "stripe", "evt_bad_1")
	require.NoError(t, err)
	assert.False(t, logged.Processed)
	assert.NotEmpty(t, logged.Error)
}

func TestProcessEventLogPersistenceFailureSurfaces(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	webhooks := NewWebhookService(
		failingUpsertWebhookRepo{}, f.subscriptionRepo, f.transactionRepo, f.packRepo, f.userRepo,
		f.subscriptions, f.provider, f.messenger, f.notifier,
		notify.NoopEventProducer{}, metrics.NoopSubscriptionMetrics{}, logger.New("error"),
	)

	err := webhooks.ProcessEvent(context.Background(), checkoutEvent(user.ID, silver.ID, "sub_new"), []byte(`{}`))

	// Without a durable log entry the delivery must not be acknowledged,
	// and the event must not be dispatched.
	require.Error(t, err)
	subs, repoErr := f.subscriptionRepo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, repoErr)
	assert.Empty(t, subs)
}

func TestSubscriptionUpdatedRefreshesPeriod(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	start := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)
	event := domain.ProviderEvent{
		ID: "evt_upd_1", Provider: "stripe",
		Type:    domain.ProviderEventSubscriptionUpdated,
		RawType: "customer.subscription.updated",
		SubscriptionUpdated: &domain.SubscriptionUpdatedEvent{
			SubscriptionID:     "sub_1",
			CurrentPeriodStart: start.Unix(),
			CurrentPeriodEnd:   end.Unix(),
			CancelAtPeriodEnd:  true,
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	updated, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, updated.CurrentPeriodStart.Equal(start))
	assert.True(t, updated.CurrentPeriodEnd.Equal(end))
	assert.True(t, updated.CancelAtPeriodEnd)
}

func TestSubscriptionUpdatedRejectsGarbageEpochs(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_upd_2", Provider: "stripe",
		Type:    domain.ProviderEventSubscriptionUpdated,
		RawType: "customer.subscription.updated",
		SubscriptionUpdated: &domain.SubscriptionUpdatedEvent{
			SubscriptionID:     "sub_1",
			CurrentPeriodStart: 0,
			CurrentPeriodEnd:   0,
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	kept, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	// A 1970 period end would instantly revoke access; the update is dropped.
	assert.True(t, kept.CurrentPeriodEnd.Equal(sub.CurrentPeriodEnd))
}

func TestSubscriptionUpdatedDoesNotResurrectCancelled(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)
	_, err = f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, true)
	require.NoError(t, err)

	future := time.Now().AddDate(0, 2, 0)
	event := domain.ProviderEvent{
		ID: "evt_upd_3", Provider: "stripe",
		Type:    domain.ProviderEventSubscriptionUpdated,
		RawType: "customer.subscription.updated",
		SubscriptionUpdated: &domain.SubscriptionUpdatedEvent{
			SubscriptionID:     "sub_1",
			CurrentPeriodStart: time.Now().Unix(),
			CurrentPeriodEnd:   future.Unix(),
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	kept, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, kept.Status)
}

func TestSubscriptionDeletedCancelsLocally(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_del_1", Provider: "stripe",
		Type:                domain.ProviderEventSubscriptionDeleted,
		RawType:             "customer.subscription.deleted",
		SubscriptionDeleted: &domain.SubscriptionDeletedEvent{SubscriptionID: "sub_1"},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	cancelled, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	assert.Equal(t, []int64{777}, f.messenger.kicked)
}

func TestSubscriptionDeletedUnknownIgnored(t *testing.T) {
	f := newFixture()

	event := domain.ProviderEvent{
		ID: "evt_del_2", Provider: "stripe",
		Type:                domain.ProviderEventSubscriptionDeleted,
		RawType:             "customer.subscription.deleted",
		SubscriptionDeleted: &domain.SubscriptionDeletedEvent{SubscriptionID: "sub_ghost"},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))
	assert.Empty(t, f.messenger.kicked)
}

func TestInvoicePaidSkipsPaymentIntentAlreadyLedgered(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)
	_, err = f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		SubscriptionID:        sub.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: "pi_first",
	})
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_inv_1", Provider: "stripe",
		Type:    domain.ProviderEventInvoicePaid,
		RawType: "invoice.paid",
		Invoice: &domain.InvoiceEvent{
			InvoiceID:       "in_1",
			SubscriptionID:  "sub_1",
			PaymentIntentID: "pi_first",
			Amount:          50,
			Currency:        "EUR",
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	txns, err := f.transactionRepo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestInvoicePaidRecordsRenewalCharge(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_inv_2", Provider: "stripe",
		Type:    domain.ProviderEventInvoicePaid,
		RawType: "invoice.paid",
		Invoice: &domain.InvoiceEvent{
			InvoiceID:       "in_2",
			SubscriptionID:  "sub_1",
			PaymentIntentID: "pi_renewal",
			Amount:          50,
			Currency:        "EUR",
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	txn, err := f.transactionRepo.GetByPaymentIntentID(context.Background(), "pi_renewal")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "Invoice in_2", txn.Description)
}

func TestInvoicePaymentFailedAlertsAndLedgers(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_inv_3", Provider: "stripe",
		Type:    domain.ProviderEventInvoicePaymentFailed,
		RawType: "invoice.payment_failed",
		Invoice: &domain.InvoiceEvent{
			InvoiceID:       "in_3",
			SubscriptionID:  "sub_1",
			PaymentIntentID: "pi_failed",
			Amount:          50,
			Currency:        "EUR",
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	txn, err := f.transactionRepo.GetByPaymentIntentID(context.Background(), "pi_failed")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, txn.Status)
	assert.Equal(t, []string{"Invoice payment failed"}, f.notifier.adminAlerts)
}

func TestChargeRefundedRoutesToRefundFlow(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)
	txn, err := f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		SubscriptionID:        sub.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: "pi_1",
	})
	require.NoError(t, err)

	event := domain.ProviderEvent{
		ID: "evt_ref_1", Provider: "stripe",
		Type:    domain.ProviderEventChargeRefunded,
		RawType: "charge.refunded",
		Charge: &domain.ChargeEvent{
			ChargeID:        "ch_1",
			PaymentIntentID: "pi_1",
			AmountRefunded:  50,
			Currency:        "EUR",
		},
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	refunded, err := f.transactionRepo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, refunded.Status)
}

func TestUnknownEventTypeAcknowledged(t *testing.T) {
	f := newFixture()

	event := domain.ProviderEvent{
		ID: "evt_odd_1", Provider: "stripe",
		Type:    domain.ProviderEventUnknown,
		RawType: "payment_method.attached",
	}

	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{}`)))

	logged, err := f.webhookRepo.GetByEventID(context.Background(), "stripe", "evt_odd_1")
	require.NoError(t, err)
	assert.True(t, logged.Processed)
}

func TestRetryEventConflictsWhenProcessed(t *testing.T) {
	f := newFixture()

	event := domain.ProviderEvent{
		ID: "evt_odd_2", Provider: "stripe",
		Type:    domain.ProviderEventUnknown,
		RawType: "payment_method.attached",
	}
	require.NoError(t, f.webhooks.ProcessEvent(context.Background(), event, []byte(`{"id":"evt_odd_2"}`)))

	logged, err := f.webhookRepo.GetByEventID(context.Background(), "stripe", "evt_odd_2")
	require.NoError(t, err)

	err = f.webhooks.RetryEvent(context.Background(), logged.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestRetryEventReplaysStoredPayload(t *testing.T) {
	f := newFixture()

	stored, _, err := f.webhookRepo.Upsert(context.Background(), domain.WebhookEvent{
		Provider:  "stripe",
		EventID:   "evt_replay_1",
		EventType: "payment_method.attached",
		Payload:   []byte(`{"id":"evt_replay_1","type":"payment_method.attached"}`),
	})
	require.NoError(t, err)

	require.NoError(t, f.webhooks.RetryEvent(context.Background(), stored.ID))

	replayed, err := f.webhookRepo.GetByID(context.Background(), stored.ID)
	require.NoError(t, err)
	assert.True(t, replayed.Processed)
}
