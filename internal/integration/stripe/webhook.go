package stripe

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// ProviderName tags webhook log rows and normalized events.
const ProviderName = "stripe"

// WebhookVerifier checks webhook signatures against the endpoint secret.
type WebhookVerifier struct {
	secret string
	log    *logger.Logger
}

// NewWebhookVerifier creates a verifier for the given endpoint secret.
func NewWebhookVerifier(secret string, log *logger.Logger) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, log: log}
}

// VerifySignature validates the Stripe-Signature header over the raw payload
// and returns the parsed event.
func (v *WebhookVerifier) VerifySignature(payload []byte, signatureHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signatureHeader, v.secret)
	if err != nil {
		v.log.Warnw("Webhook signature verification failed", "error", err)
		return stripe.Event{}, fmt.Errorf("%w: %v", domain.ErrSignatureVerification, err)
	}
	return event, nil
}

// NormalizeRaw parses a stored raw event payload and normalizes it. Used
// when replaying events out of the webhook log; the signature was already
// verified on first delivery.
func NormalizeRaw(payload []byte) (domain.ProviderEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return domain.ProviderEvent{}, fmt.Errorf("unmarshal stored event: %w", err)
	}
	return Normalize(event)
}

// Normalize maps a raw Stripe event onto the internal event union. Event
// types outside the union come back as ProviderEventUnknown with no payload;
// the reconciler acknowledges and ignores those.
func Normalize(event stripe.Event) (domain.ProviderEvent, error) {
	normalized := domain.ProviderEvent{
		ID:       event.ID,
		Provider: ProviderName,
		RawType:  string(event.Type),
	}

	switch string(event.Type) {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return domain.ProviderEvent{}, fmt.Errorf("unmarshal checkout session: %w", err)
		}
		normalized.Type = domain.ProviderEventCheckoutCompleted
		normalized.Checkout = normalizeCheckout(&session)

	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.ProviderEvent{}, fmt.Errorf("unmarshal subscription: %w", err)
		}
		normalized.Type = domain.ProviderEventSubscriptionUpdated
		normalized.SubscriptionUpdated = &domain.SubscriptionUpdatedEvent{
			SubscriptionID:     sub.ID,
			CustomerID:         customerID(sub.Customer),
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		}

	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return domain.ProviderEvent{}, fmt.Errorf("unmarshal subscription: %w", err)
		}
		normalized.Type = domain.ProviderEventSubscriptionDeleted
		normalized.SubscriptionDeleted = &domain.SubscriptionDeletedEvent{
			SubscriptionID: sub.ID,
			CustomerID:     customerID(sub.Customer),
		}

	case "invoice.paid", "invoice.payment_succeeded":
		invoice, err := unmarshalInvoice(event.Data.Raw, true)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		normalized.Type = domain.ProviderEventInvoicePaid
		normalized.Invoice = invoice

	case "invoice.payment_failed":
		invoice, err := unmarshalInvoice(event.Data.Raw, false)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		normalized.Type = domain.ProviderEventInvoicePaymentFailed
		normalized.Invoice = invoice

	case "charge.failed":
		charge, err := unmarshalCharge(event.Data.Raw)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		normalized.Type = domain.ProviderEventChargeFailed
		normalized.Charge = charge

	case "charge.refunded":
		charge, err := unmarshalCharge(event.Data.Raw)
		if err != nil {
			return domain.ProviderEvent{}, err
		}
		normalized.Type = domain.ProviderEventChargeRefunded
		normalized.Charge = charge

	case "charge.dispute.created":
		var dispute stripe.Dispute
		if err := json.Unmarshal(event.Data.Raw, &dispute); err != nil {
			return domain.ProviderEvent{}, fmt.Errorf("unmarshal dispute: %w", err)
		}
		charge := &domain.ChargeEvent{
			Amount:   fromMinorUnits(dispute.Amount),
			Currency: string(dispute.Currency),
		}
		if dispute.Charge != nil {
			charge.ChargeID = dispute.Charge.ID
		}
		if dispute.PaymentIntent != nil {
			charge.PaymentIntentID = dispute.PaymentIntent.ID
		}
		normalized.Type = domain.ProviderEventChargeDisputeCreated
		normalized.Charge = charge

	default:
		normalized.Type = domain.ProviderEventUnknown
	}

	return normalized, nil
}

func normalizeCheckout(session *stripe.CheckoutSession) *domain.CheckoutCompletedEvent {
	out := &domain.CheckoutCompletedEvent{
		SessionID:   session.ID,
		AmountTotal: fromMinorUnits(session.AmountTotal),
		Currency:    string(session.Currency),
		Metadata:    parseCheckoutMetadata(session.Metadata),
	}
	if session.Customer != nil {
		out.CustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		out.SubscriptionID = session.Subscription.ID
	}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out
}

func parseCheckoutMetadata(raw map[string]string) domain.CheckoutMetadata {
	return domain.CheckoutMetadata{
		UserID:                raw["userId"],
		PackID:                raw["packId"],
		IsUpgrade:             raw["isUpgrade"] == "true",
		CurrentSubscriptionID: raw["currentSubscriptionId"],
		PreviousPackID:        raw["previousPackId"],
		OldPackName:           raw["oldPackName"],
	}
}

func unmarshalInvoice(raw json.RawMessage, paid bool) (*domain.InvoiceEvent, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(raw, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}

	amount := invoice.AmountDue
	if paid {
		amount = invoice.AmountPaid
	}
	out := &domain.InvoiceEvent{
		InvoiceID: invoice.ID,
		Amount:    fromMinorUnits(amount),
		Currency:  string(invoice.Currency),
	}
	if invoice.Subscription != nil {
		out.SubscriptionID = invoice.Subscription.ID
	}
	if invoice.PaymentIntent != nil {
		out.PaymentIntentID = invoice.PaymentIntent.ID
	}
	if invoice.Customer != nil {
		out.CustomerID = invoice.Customer.ID
	}
	return out, nil
}

func unmarshalCharge(raw json.RawMessage) (*domain.ChargeEvent, error) {
	var charge stripe.Charge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return nil, fmt.Errorf("unmarshal charge: %w", err)
	}

	out := &domain.ChargeEvent{
		ChargeID:       charge.ID,
		Amount:         fromMinorUnits(charge.Amount),
		AmountRefunded: fromMinorUnits(charge.AmountRefunded),
		Currency:       string(charge.Currency),
		FailureMessage: charge.FailureMessage,
	}
	if charge.PaymentIntent != nil {
		out.PaymentIntentID = charge.PaymentIntent.ID
	}
	if charge.Customer != nil {
		out.CustomerID = charge.Customer.ID
	}
	return out, nil
}

func customerID(customer *stripe.Customer) string {
	if customer == nil {
		return ""
	}
	return customer.ID
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
