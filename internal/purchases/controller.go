package purchases

import (
	"errors"
	"io"
	"net/http"

	"ticketflow/internal/payments"
	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/clock"
	"ticketflow/internal/shared/middleware"
	"ticketflow/internal/shared/utils/response"
	"ticketflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	stripeProvider        = "stripe"
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 1 << 16
)

type Controller struct {
	orchestrator Orchestrator
}

func NewController(orchestrator Orchestrator) *Controller {
	return &Controller{orchestrator: orchestrator}
}

type initiatePurchaseBody struct {
	SeatIDs []uuid.UUID `json:"seat_ids" binding:"required,min=1"`
}

// InitiatePurchase returns a client payment handle for seats the caller holds
func (ctrl *Controller) InitiatePurchase(c *gin.Context) {
	attendeeID, err := middleware.AttendeeID(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}

	var body initiatePurchaseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.RespondError(c, apperror.BadRequest("invalid request body: "+err.Error()))
		return
	}

	result, err := ctrl.orchestrator.InitiatePurchase(c.Request.Context(), PurchaseRequest{
		AttendeeID:    attendeeID,
		AttendeeEmail: middleware.AttendeeEmail(c),
		SeatIDs:       body.SeatIDs,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}

	response.RespondJSON(c, "success", http.StatusCreated, "Payment authorization created", result, nil)
}

type WebhookController struct {
	gateway   payments.Gateway
	finalizer Finalizer
	payments  payments.Repository
	clock     clock.Clock
	log       *logger.Logger
}

func NewWebhookController(gateway payments.Gateway, finalizer Finalizer, paymentRepo payments.Repository,
	clk clock.Clock, log *logger.Logger) *WebhookController {
	return &WebhookController{
		gateway:   gateway,
		finalizer: finalizer,
		payments:  paymentRepo,
		clock:     clk,
		log:       log,
	}
}

// HandleStripe acknowledges with 2xx only when redelivery would not help.
// A 5xx asks the processor to retry; the finalizer makes that safe.
func (ctrl *WebhookController) HandleStripe(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		response.RespondError(c, apperror.BadRequest("unreadable webhook body"))
		return
	}

	event, err := ctrl.gateway.ParseEvent(payload, c.GetHeader(stripeSignatureHeader))
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			ctrl.log.WarnContext(ctx, "webhook signature rejected", "client_ip", c.ClientIP())
			response.RespondError(c, apperror.BadRequest("invalid webhook signature"))
			return
		}
		response.RespondError(c, apperror.BadRequest("malformed webhook event"))
		return
	}

	if err := ctrl.payments.RecordWebhook(ctx, &payments.WebhookEvent{
		Provider:        stripeProvider,
		ProviderEventID: event.ID,
		Type:            event.Type,
		PaymentRef:      event.PaymentReferenceID,
	}); err != nil {
		response.RespondError(c, err)
		return
	}

	switch event.Type {
	case payments.EventPaymentSucceeded:
		ctrl.finalize(c, event)
	case payments.EventPaymentFailed:
		// Holds run out on their own; the success notice may still arrive.
		ctrl.log.InfoContext(ctx, "payment failed, leaving holds to expire",
			"payment_intent_id", event.PaymentReferenceID)
		ctrl.markProcessed(c, event, nil)
		response.RespondJSON(c, "success", http.StatusOK, "Event acknowledged", gin.H{"handled": false}, nil)
	default:
		ctrl.markProcessed(c, event, nil)
		response.RespondJSON(c, "success", http.StatusOK, "Event ignored", gin.H{"handled": false}, nil)
	}
}

func (ctrl *WebhookController) finalize(c *gin.Context, event *payments.Event) {
	ctx := c.Request.Context()

	result, err := ctrl.finalizer.Finalize(ctx, *event)
	if err != nil {
		ctrl.markProcessed(c, event, err)
		if apperror.Is(err, apperror.KindBadRequest) {
			ctrl.log.ErrorContext(ctx, "unprocessable payment confirmation acknowledged",
				"event_id", event.ID, "payment_intent_id", event.PaymentReferenceID, "error", err.Error())
			response.RespondJSON(c, "success", http.StatusOK, "Event acknowledged", gin.H{"handled": false}, nil)
			return
		}
		response.RespondJSON(c, "error", http.StatusInternalServerError, "Finalization failed, retry later", nil, nil)
		return
	}

	ctrl.markProcessed(c, event, nil)
	response.RespondJSON(c, "success", http.StatusOK, "Payment finalized", gin.H{
		"handled":    true,
		"duplicate":  result.Duplicate,
		"payment_id": result.Payment.ID,
		"tickets":    len(result.Tickets),
		"anomalies":  len(result.Anomalies),
	}, nil)
}

func (ctrl *WebhookController) markProcessed(c *gin.Context, event *payments.Event, processErr error) {
	if err := ctrl.payments.MarkWebhookProcessed(c.Request.Context(), stripeProvider, event.ID, ctrl.clock.Now(), processErr); err != nil {
		ctrl.log.WarnContext(c.Request.Context(), "webhook delivery log not updated", "event_id", event.ID, "error", err.Error())
	}
}
