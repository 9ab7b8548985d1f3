package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus status of a payment ledger row. The ledger is
// append-only; the only status transition after the fact is
// COMPLETED -> REFUNDED.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

// Transaction is a payment ledger row. It links to a subscription by the
// internal id, never by the payment provider's subscription id.
type Transaction struct {
	ID                    uuid.UUID         `json:"id"`
	UserID                uuid.UUID         `json:"user_id"`
	SubscriptionID        uuid.UUID         `json:"subscription_id"`
	Amount                float64           `json:"amount"`
	Currency              string            `json:"currency"`
	Status                TransactionStatus `json:"status"`
	StripePaymentIntentID string            `json:"stripe_payment_intent_id,omitempty"`
	Description           string            `json:"description,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}
