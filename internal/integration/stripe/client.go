package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

const metadataUserIDKey = "userId"

// CheckoutSessionParams carries everything needed to open a provider
// checkout. OneTime switches the session to payment mode, used for the
// price difference charged on an upgrade.
type CheckoutSessionParams struct {
	CustomerID string
	PackName   string
	Amount     float64
	Currency   string
	OneTime    bool
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

// CheckoutSession is the provider session the caller redirects the user to.
type CheckoutSession struct {
	ID  string
	URL string
}

// Provider defines the payment provider operations the subscription engine
// needs. All calls run against the Stripe API and must happen outside any
// open database transaction.
type Provider interface {
	// GetOrCreateCustomer finds the customer mapped to userID or creates one.
	GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error)

	// CreateCheckoutSession opens a checkout for a pack purchase or upgrade.
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)

	// CreateTrialSubscription creates a subscription whose first charge is
	// deferred until trialEnd. Used to normalize a one-time upgrade payment
	// into a recurring subscription.
	CreateTrialSubscription(ctx context.Context, customerID, packName string, amount float64, currency string, trialEnd time.Time, metadata map[string]string) (string, error)

	// CancelSubscription cancels a provider subscription, either immediately
	// or at the end of the current period.
	CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error

	// CreateRefund refunds the full amount of a payment intent.
	CreateRefund(ctx context.Context, paymentIntentID string) error
}

type stripeProvider struct {
	client *client.API
	log    *logger.Logger
}

// NewProvider creates a Stripe-backed Provider.
func NewProvider(apiKey string, log *logger.Logger) Provider {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &stripeProvider{
		client: sc,
		log:    log,
	}
}

// GetOrCreateCustomer searches for a customer carrying userID in its
// metadata, creating one when the search comes up empty.
func (sp *stripeProvider) GetOrCreateCustomer(ctx context.Context, userID, email string) (string, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", metadataUserIDKey, userID),
			Limit:   stripe.Int64(1),
			Context: ctx,
		},
	}

	customers := sp.client.Customers.Search(searchParams)
	if customers.Next() {
		customer := customers.Customer()
		sp.log.Debugw("Found existing Stripe customer", "stripeCustomerID", customer.ID, "userID", userID)
		return customer.ID, nil
	}
	if err := customers.Err(); err != nil {
		logStripeError(sp.log, "SearchCustomers", err)
		return "", domain.NewExternalServiceError("stripe", "search customer", err)
	}

	params := &stripe.CustomerParams{
		Email: stripe.String(email),
		Metadata: map[string]string{
			metadataUserIDKey: userID,
		},
	}
	params.Context = ctx

	cus, err := sp.client.Customers.New(params)
	if err != nil {
		logStripeError(sp.log, "CreateCustomer", err)
		return "", domain.NewExternalServiceError("stripe", "create customer", err)
	}

	sp.log.Infow("Stripe customer created", "stripeCustomerID", cus.ID, "userID", userID)
	return cus.ID, nil
}

// CreateCheckoutSession opens a hosted checkout. Subscription mode prices the
// pack inline as a monthly recurring item; payment mode charges the amount
// once. Metadata is stamped on the session and on the object the session
// produces, so it survives into the webhook.
func (sp *stripeProvider) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(p.Currency),
		UnitAmount: stripe.Int64(toMinorUnits(p.Amount)),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(p.PackName),
		},
	}

	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(p.CustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	params.Context = ctx

	if p.OneTime {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: p.Metadata,
		}
	} else {
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		}
	}
	for key, value := range p.Metadata {
		params.AddMetadata(key, value)
	}

	session, err := sp.client.CheckoutSessions.New(params)
	if err != nil {
		logStripeError(sp.log, "CreateCheckoutSession", err)
		return nil, domain.NewExternalServiceError("stripe", "create checkout session", err)
	}

	sp.log.Infow("Stripe checkout session created", "sessionID", session.ID, "mode", string(session.Mode))
	return &CheckoutSession{ID: session.ID, URL: session.URL}, nil
}

// CreateTrialSubscription creates a subscription that charges nothing until
// trialEnd and is flagged to cancel at period end. The pack is priced inline
// against a throwaway product, mirroring how checkout prices packs.
func (sp *stripeProvider) CreateTrialSubscription(ctx context.Context, customerID, packName string, amount float64, currency string, trialEnd time.Time, metadata map[string]string) (string, error) {
	productParams := &stripe.ProductParams{
		Name: stripe.String(packName),
	}
	productParams.Context = ctx

	product, err := sp.client.Products.New(productParams)
	if err != nil {
		logStripeError(sp.log, "CreateProduct", err)
		return "", domain.NewExternalServiceError("stripe", "create product", err)
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				PriceData: &stripe.SubscriptionItemPriceDataParams{
					Currency:   stripe.String(currency),
					Product:    stripe.String(product.ID),
					UnitAmount: stripe.Int64(toMinorUnits(amount)),
					Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
				},
			},
		},
		TrialEnd:          stripe.Int64(trialEnd.Unix()),
		CancelAtPeriodEnd: stripe.Bool(true),
		Metadata:          metadata,
	}
	params.Context = ctx

	subscription, err := sp.client.Subscriptions.New(params)
	if err != nil {
		logStripeError(sp.log, "CreateTrialSubscription", err)
		return "", domain.NewExternalServiceError("stripe", "create trial subscription", err)
	}

	sp.log.Infow("Stripe trial subscription created", "stripeSubscriptionID", subscription.ID, "trialEnd", trialEnd)
	return subscription.ID, nil
}

// CancelSubscription cancels at period end via update, or immediately via
// cancel. A subscription already gone on the provider side is not an error.
func (sp *stripeProvider) CancelSubscription(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	var err error
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		_, err = sp.client.Subscriptions.Update(subscriptionID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		_, err = sp.client.Subscriptions.Cancel(subscriptionID, params)
	}
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			sp.log.Warnw("Stripe subscription already canceled or missing", "stripeSubscriptionID", subscriptionID)
			return nil
		}
		logStripeError(sp.log, "CancelSubscription", err)
		return domain.NewExternalServiceError("stripe", "cancel subscription", err)
	}

	sp.log.Infow("Stripe subscription canceled", "stripeSubscriptionID", subscriptionID, "atPeriodEnd", atPeriodEnd)
	return nil
}

// CreateRefund refunds a payment intent in full.
func (sp *stripeProvider) CreateRefund(ctx context.Context, paymentIntentID string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	refund, err := sp.client.Refunds.New(params)
	if err != nil {
		logStripeError(sp.log, "CreateRefund", err)
		return domain.NewExternalServiceError("stripe", "create refund", err)
	}

	sp.log.Infow("Stripe refund created", "refundID", refund.ID, "paymentIntentID", paymentIntentID)
	return nil
}

func toMinorUnits(amount float64) int64 {
	return int64(amount*100 + 0.5)
}

func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
