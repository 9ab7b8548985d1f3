package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent is the durable log of an inbound provider webhook. The
// unique (provider, event_id) pair makes at-least-once delivery idempotent
// at the logging layer: duplicates only bump RetryCount.
type WebhookEvent struct {
	ID          uuid.UUID  `json:"id"`
	Provider    string     `json:"provider"`
	EventID     string     `json:"event_id"`
	EventType   string     `json:"event_type"`
	Payload     []byte     `json:"payload"`
	Processed   bool       `json:"processed"`
	RetryCount  int        `json:"retry_count"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ProviderEventType is the closed internal union of provider events the
// reconciler understands. Raw provider payloads are normalized into one of
// these at the boundary; anything else maps to Unknown and is ignored.
type ProviderEventType string

const (
	ProviderEventCheckoutCompleted    ProviderEventType = "checkout.completed"
	ProviderEventSubscriptionUpdated  ProviderEventType = "subscription.updated"
	ProviderEventSubscriptionDeleted  ProviderEventType = "subscription.deleted"
	ProviderEventInvoicePaid          ProviderEventType = "invoice.paid"
	ProviderEventInvoicePaymentFailed ProviderEventType = "invoice.payment_failed"
	ProviderEventChargeFailed         ProviderEventType = "charge.failed"
	ProviderEventChargeDisputeCreated ProviderEventType = "charge.dispute_created"
	ProviderEventChargeRefunded       ProviderEventType = "charge.refunded"
	ProviderEventUnknown              ProviderEventType = "unknown"
)

// CheckoutMetadata is the metadata stamped onto every checkout session at
// creation time and read back on completion.
type CheckoutMetadata struct {
	UserID                string `json:"userId"`
	PackID                string `json:"packId"`
	IsUpgrade             bool   `json:"isUpgrade"`
	CurrentSubscriptionID string `json:"currentSubscriptionId,omitempty"`
	PreviousPackID        string `json:"previousPackId,omitempty"`
	OldPackName           string `json:"oldPackName,omitempty"`
}

// CheckoutCompletedEvent normalized checkout.session.completed payload.
// SubscriptionID is empty for one-time "upgrade difference" payments.
type CheckoutCompletedEvent struct {
	SessionID       string
	CustomerID      string
	SubscriptionID  string
	PaymentIntentID string
	AmountTotal     float64
	Currency        string
	Metadata        CheckoutMetadata
}

// SubscriptionUpdatedEvent normalized customer.subscription.updated payload.
// Period timestamps are raw provider epochs; sanity checks happen in the
// reconciler.
type SubscriptionUpdatedEvent struct {
	SubscriptionID     string
	CustomerID         string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
}

// SubscriptionDeletedEvent normalized customer.subscription.deleted payload.
type SubscriptionDeletedEvent struct {
	SubscriptionID string
	CustomerID     string
}

// InvoiceEvent normalized invoice.paid / invoice.payment_failed payload.
type InvoiceEvent struct {
	InvoiceID       string
	SubscriptionID  string
	PaymentIntentID string
	CustomerID      string
	Amount          float64
	Currency        string
}

// ChargeEvent normalized charge.failed / charge.refunded /
// charge.dispute.created payload.
type ChargeEvent struct {
	ChargeID        string
	PaymentIntentID string
	CustomerID      string
	Amount          float64
	AmountRefunded  float64
	Currency        string
	FailureMessage  string
}

// ProviderEvent is a normalized provider webhook event. Exactly one of the
// payload pointers matching Type is set.
type ProviderEvent struct {
	ID                  string
	Provider            string
	Type                ProviderEventType
	RawType             string
	Checkout            *CheckoutCompletedEvent
	SubscriptionUpdated *SubscriptionUpdatedEvent
	SubscriptionDeleted *SubscriptionDeletedEvent
	Invoice             *InvoiceEvent
	Charge              *ChargeEvent
}
