package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/domain"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/integration/stripe"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/service"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/res"
)

// WebhookHandler receives Stripe webhooks and serves the event audit log.
type WebhookHandler struct {
	verifier *stripe.WebhookVerifier
	webhooks service.WebhookService
	log      *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(verifier *stripe.WebhookVerifier, webhooks service.WebhookService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{verifier: verifier, webhooks: webhooks, log: log}
}

// HandleStripeWebhook verifies, records and dispatches one Stripe event.
// A bad signature is 400 so Stripe retries with a valid one. The reply is
// 200 only once the event is durably logged; a logging failure surfaces as
// an error so Stripe redelivers. Once logged, processing failures stay on
// the stored row and can be replayed through the retry endpoint.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.log.Errorw("Failed to read webhook body", "error", err)
		res.JSON(c, http.StatusBadRequest, res.ErrorResponse{Error: "failed to read webhook body"})
		return
	}

	rawEvent, err := h.verifier.VerifySignature(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		res.Error(c, err, h.log)
		return
	}

	event, err := stripe.Normalize(rawEvent)
	if err != nil {
		h.log.Errorw("Failed to normalize webhook event", "eventID", rawEvent.ID, "error", err)
		res.JSON(c, http.StatusBadRequest, res.ErrorResponse{Error: "unparseable webhook payload"})
		return
	}

	if err := h.webhooks.ProcessEvent(c.Request.Context(), event, payload); err != nil {
		h.log.Errorw("Failed to persist webhook event, requesting redelivery",
			"eventID", event.ID, "eventType", event.Type, "error", err)
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"received": true})
}

// ListEvents pages through the webhook audit log, newest first.
func (h *WebhookHandler) ListEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.webhooks.ListEvents(c.Request.Context(), limit, offset)
	if err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, events)
}

// RetryEvent replays a stored unprocessed event through the reconciler.
func (h *WebhookHandler) RetryEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		res.Error(c, domain.NewValidationError("id", "must be a valid UUID"), h.log)
		return
	}

	if err := h.webhooks.RetryEvent(c.Request.Context(), id); err != nil {
		res.Error(c, err, h.log)
		return
	}
	res.JSON(c, http.StatusOK, gin.H{"retried": true})
}
