package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
)

func TestCreateCheckoutRejectsFreePack(t *testing.T) {
	f := newFixture()
	free := f.seedPack("Free Tips", 0, true)
	user := f.seedUser(0)

	_, err := f.subscriptions.CreateCheckout(context.Background(), user.ID, free.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateCheckoutRejectsInactivePack(t *testing.T) {
	f := newFixture()
	pack, _ := f.packRepo.Create(context.Background(), domain.Pack{
		ID: uuid.New(), Name: "Retired", PriceMonthly: 30, Currency: "EUR",
	})
	user := f.seedUser(0)

	_, err := f.subscriptions.CreateCheckout(context.Background(), user.ID, pack.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestCreateCheckoutFirstPurchase(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	result, err := f.subscriptions.CreateCheckout(context.Background(), user.ID, silver.ID)

	require.NoError(t, err)
	assert.Equal(t, "cs_test", result.SessionID)
	assert.NotEmpty(t, result.URL)

	require.Len(t, f.provider.sessionCalls, 1)
	params := f.provider.sessionCalls[0]
	assert.Equal(t, 50.0, params.Amount)
	assert.False(t, params.OneTime)
	assert.Equal(t, user.ID.String(), params.Metadata["userId"])
	assert.Equal(t, silver.ID.String(), params.Metadata["packId"])
	assert.NotContains(t, params.Metadata, "isUpgrade")

	// Customer mapping is stored for webhook-side lookups.
	stored, err := f.userRepo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_test", stored.StripeCustomerID)
}

func TestCreateCheckoutRejectsSamePack(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	_, err = f.subscriptions.CreateCheckout(context.Background(), user.ID, silver.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Contains(t, err.Error(), "already subscribed")
	assert.Empty(t, f.provider.sessionCalls)
}

func TestCreateCheckoutRejectsDowngrade(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(0)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, gold.ID, "sub_1", nil)
	require.NoError(t, err)

	_, err = f.subscriptions.CreateCheckout(context.Background(), user.ID, silver.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	// The error names the blocking pack so the user knows what to do.
	assert.Contains(t, err.Error(), "Gold")
	assert.Contains(t, err.Error(), "100.00")
}

func TestCreateCheckoutUpgradeChargesDifference(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(0)

	current, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	_, err = f.subscriptions.CreateCheckout(context.Background(), user.ID, gold.ID)
	require.NoError(t, err)

	require.Len(t, f.provider.sessionCalls, 1)
	params := f.provider.sessionCalls[0]
	assert.Equal(t, 50.0, params.Amount)
	assert.True(t, params.OneTime)
	assert.Equal(t, "true", params.Metadata["isUpgrade"])
	assert.Equal(t, current.ID.String(), params.Metadata["currentSubscriptionId"])
	assert.Equal(t, silver.ID.String(), params.Metadata["previousPackId"])
	assert.Equal(t, "Silver", params.Metadata["oldPackName"])
}

func TestActivatePaidSubscriptionRejectsFreePack(t *testing.T) {
	f := newFixture()
	free := f.seedPack("Free Tips", 0, true)
	user := f.seedUser(0)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, free.ID, "", nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestActivatePaidSubscriptionSupersedesPrior(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(0)

	first, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)
	second, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, gold.ID, "sub_2", nil)
	require.NoError(t, err)

	old, err := f.subscriptionRepo.GetByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, old.Status)
	require.NotNil(t, old.CancelledAt)

	active, err := f.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, gold.ID, active.PackID)
}

func TestActivatePaidSubscriptionClampsMonthEnd(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	jan31 := time.Date(2025, time.January, 31, 12, 0, 0, 0, time.UTC)
	f.subscriptions.(*subscriptionService).now = func() time.Time { return jan31 }

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)

	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.February, 28, 12, 0, 0, 0, time.UTC), sub.CurrentPeriodEnd)
}

func TestCancelSubscriptionDefaultsToPeriodEnd(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	cancelled, err := f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, false)

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, cancelled.Status)
	assert.True(t, cancelled.CancelAtPeriodEnd)

	require.Len(t, f.provider.cancelCalls, 1)
	assert.True(t, f.provider.cancelCalls[0].atPeriodEnd)
	// Access stays until the period runs out.
	assert.Empty(t, f.messenger.kicked)
}

func TestCancelSubscriptionImmediateRemovesAccess(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	cancelled, err := f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, true)

	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	require.Len(t, f.provider.cancelCalls, 1)
	assert.False(t, f.provider.cancelCalls[0].atPeriodEnd)
	assert.Equal(t, []int64{777}, f.messenger.kicked)
	assert.Equal(t, 1, f.notifier.subscriptionEnded)
}

func TestCancelSubscriptionProviderFailureAborts(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	f.provider.cancelErr = domain.NewExternalServiceError("stripe", "cancel subscription", errors.New("boom"))

	_, err = f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, true)
	require.Error(t, err)

	// Local state untouched; the user keeps access.
	kept, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, kept.Status)
	assert.Empty(t, f.messenger.kicked)
}

func TestCancelSubscriptionOwnershipHidden(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	owner := f.seedUser(0)
	other := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), owner.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)

	_, err = f.subscriptions.CancelSubscription(context.Background(), other.ID, sub.ID, true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCancelSubscriptionNonActiveConflicts(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(0)

	sub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_1", nil)
	require.NoError(t, err)
	_, err = f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, true)
	require.NoError(t, err)

	_, err = f.subscriptions.CancelSubscription(context.Background(), user.ID, sub.ID, true)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestHandleRefundUnknownIntentIgnored(t *testing.T) {
	f := newFixture()

	err := f.subscriptions.HandleRefund(context.Background(), "pi_unknown", 50, "EUR")

	require.NoError(t, err)
	assert.Zero(t, f.notifier.refundConfirmations)
}

func TestHandleRefundAlreadyRefundedIsIdempotent(t *testing.T) {
	f := newFixture()
	user := f.seedUser(0)

	txn, err := f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusRefunded,
		StripePaymentIntentID: "pi_1",
	})
	require.NoError(t, err)

	require.NoError(t, f.subscriptions.HandleRefund(context.Background(), "pi_1", 50, "EUR"))

	kept, err := f.transactionRepo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, kept.Status)
	assert.Zero(t, f.notifier.refundConfirmations)
}

func TestHandleRefundWithoutUpgradeRemovesAccess(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	user := f.seedUser(777)

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

	require.NoError(t, f.subscriptions.HandleRefund(context.Background(), "pi_1", 50, "EUR"))

	refunded, err := f.transactionRepo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusRefunded, refunded.Status)

	cancelled, err := f.subscriptionRepo.GetByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, cancelled.Status)

	assert.Equal(t, []int64{777}, f.messenger.kicked)
	assert.Equal(t, 1, f.notifier.refundConfirmations)
}

func TestHandleRefundUnwindsOneUpgradeStep(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(777)

	silverSub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, silver.ID, "sub_silver", nil)
	require.NoError(t, err)
	goldSub, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, gold.ID, "sub_gold",
		&domain.UpgradeOrigin{PreviousPackID: silver.ID, PreviousSubscriptionID: silverSub.ID})
	require.NoError(t, err)

	_, err = f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		SubscriptionID:        goldSub.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: "pi_upgrade",
	})
	require.NoError(t, err)

	require.NoError(t, f.subscriptions.HandleRefund(context.Background(), "pi_upgrade", 50, "EUR"))

	old, err := f.subscriptionRepo.GetByID(context.Background(), goldSub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusCancelled, old.Status)

	restored, err := f.subscriptionRepo.GetActiveByUserID(context.Background(), user.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, silver.ID, restored.PackID)
	assert.NotEqual(t, silverSub.ID, restored.ID)
	// Silver was not itself an upgrade, so another refund would not restore
	// anything further.
	assert.Nil(t, restored.Upgrade)

	// Access survives via the restored pack.
	assert.Empty(t, f.messenger.kicked)
	assert.Equal(t, 1, f.notifier.refundConfirmations)

	// Provider cleanup targets the refunded subscription.
	require.Len(t, f.provider.cancelCalls, 1)
	assert.Equal(t, "sub_gold", f.provider.cancelCalls[0].subscriptionID)
	assert.False(t, f.provider.cancelCalls[0].atPeriodEnd)
}

func TestActivatePaidSubscriptionConcurrentCheckoutsKeepOneActive(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(0)

	var wg sync.WaitGroup
	for _, packID := range []uuid.UUID{silver.ID, gold.ID} {
		wg.Add(1)
		go func(packID uuid.UUID) {
			defer wg.Done()
			_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, packID, "sub_"+packID.String(), nil)
			assert.NoError(t, err)
		}(packID)
	}
	wg.Wait()

	subs, err := f.subscriptionRepo.GetByUserID(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	active := 0
	for _, sub := range subs {
		if sub.Status == domain.SubscriptionStatusActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestRequestRefundCallsProvider(t *testing.T) {
	f := newFixture()
	user := f.seedUser(0)

	txn, err := f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusCompleted,
		StripePaymentIntentID: "pi_1",
	})
	require.NoError(t, err)

	require.NoError(t, f.subscriptions.RequestRefund(context.Background(), txn.ID))

	assert.Equal(t, []string{"pi_1"}, f.provider.refundCalls)
	// The charge.refunded webhook drives the local unwind, not this call.
	kept, err := f.transactionRepo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, kept.Status)
}

func TestRequestRefundUnknownTransaction(t *testing.T) {
	f := newFixture()

	err := f.subscriptions.RequestRefund(context.Background(), uuid.New())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRequestRefundRejectsNonCompleted(t *testing.T) {
	f := newFixture()
	user := f.seedUser(0)

	txn, err := f.transactionRepo.Create(context.Background(), domain.Transaction{
		UserID:                user.ID,
		Amount:                50,
		Currency:              "EUR",
		Status:                domain.TransactionStatusRefunded,
		StripePaymentIntentID: "pi_1",
	})
	require.NoError(t, err)

	err = f.subscriptions.RequestRefund(context.Background(), txn.ID)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Empty(t, f.provider.refundCalls)
}

func TestApplyAccessRemovalSuppressedByOtherLiveSubscription(t *testing.T) {
	f := newFixture()
	silver := f.seedPack("Silver", 50, false)
	gold := f.seedPack("Gold", 100, false)
	user := f.seedUser(777)

	_, err := f.subscriptions.ActivatePaidSubscription(context.Background(), user.ID, gold.ID, "sub_1", nil)
	require.NoError(t, err)

	f.subscriptions.ApplyAccessRemoval(context.Background(), user.ID, silver)

	assert.Empty(t, f.messenger.kicked)
	assert.Zero(t, f.notifier.subscriptionEnded)
}
