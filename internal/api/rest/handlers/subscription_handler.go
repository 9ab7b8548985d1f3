package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/req"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/res"
)

// userIDHeader carries the authenticated user id, set by the gateway in
// front of this service.
const userIDHeader = "X-User-ID"

// SubscriptionHandler serves checkout, subscription state and billing
// history for the authenticated user.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	log           *logger.Logger
}

// NewSubscriptionHandler creates a new subscription handler.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions, log: log}
}

// CheckoutRequest names the pack the user wants to buy.
type CheckoutRequest struct {
	PackID string `json:"pack_id" validate:"required,uuid"`
}

// CancelRequest selects immediate cancellation instead of the default
// cancel at period end.
type CancelRequest struct {
	Immediate bool `json:"immediate"`
}

func userIDFromHeader(c *gin.Context) (uuid.UUID, error) {
	raw := c.GetHeader(userIDHeader)
	if raw == "" {
		return uuid.Nil, domain.NewValidationError(userIDHeader, "header is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(userIDHeader, "must be a valid UUID")
	}
	return id, nil
}

// CreateCheckout starts a Stripe checkout session for a pack.
func (h *SubscriptionHandler) CreateCheckout(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	body, err := req.HandleBody[CheckoutRequest](c, h.log)
	if err != nil {
		return
	}
	packID, err := uuid.Parse(body.PackID)
	if err != nil {
		res.Error(c, domain.NewValidationError("pack_id", "must be a valid UUID"), h.log)
		return
	}

	result, err := h.subscriptions.CreateCheckout(c.Request.Context(), userID, packID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusCreated, result)
}

// ListSubscriptions returns the caller's subscriptions, newest first.
func (h *SubscriptionHandler) ListSubscriptions(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}

	subs, err := h.subscriptions.GetByUserID(c.Request.Context(), userID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, subs)
}

// GetSubscription returns one of the caller's subscriptions by id.
func (h *SubscriptionHandler) GetSubscription(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}

	sub, err := h.subscriptions.GetByID(c.Request.Context(), id)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	// Ownership is reported as not found so ids are not guessable.
	if sub.UserID != userID {
		res.Error(c, domain.NewNotFoundError("subscription", id.String()), h.log)
		return
	}
	res.JSON(c, http.StatusOK, sub)
}

// CancelSubscription cancels one of the caller's subscriptions.
func (h *SubscriptionHandler) CancelSubscription(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}

	var immediate bool
	if c.Request.ContentLength > 0 {
		body, err := req.HandleBody[CancelRequest](c, h.log)
		if err != nil {
			return
		}
		immediate = body.Immediate
	}

	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), userID, id, immediate)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, sub)
}

// RequestRefund asks Stripe to refund a completed transaction. Local
// state is untouched here; the charge.refunded webhook drives the unwind.
func (h *SubscriptionHandler) RequestRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}

	if err := h.subscriptions.RequestRefund(c.Request.Context(), id); err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusAccepted, gin.H{"requested": true})
}

// ListTransactions returns the caller's billing history, newest first.
func (h *SubscriptionHandler) ListTransactions(c *gin.Context) {
	userID, err := userIDFromHeader(c)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}

	txns, err := h.subscriptions.GetTransactions(c.Request.Context(), userID)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, txns)
}
