package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v78"
)

const (
	// Ограничение на размер тела запроса вебхука (Stripe рекомендует ~65kb)
	maxRequestBodySize = int64(65536)

	stripeSignatureHeader = "Stripe-Signature"
)

// WebhookProcessor проверяет подпись и обрабатывает событие. Реализация - services.WebhookService.
type WebhookProcessor interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
	Process(ctx context.Context, event stripe.Event) error
}

// WebhookHandler обрабатывает входящие вебхуки от Stripe.
type WebhookHandler struct {
	processor WebhookProcessor
	log       *logger.Logger
}

// NewWebhookHandler создает новый экземпляр WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		log:       log,
	}
}

// HandleStripeWebhook обрабатывает POST /api/v1/webhooks/stripe.
func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBodySize)
	payload, err := io.ReadAll(c.Request.Body)
	//goland:noinspection GoUnhandledErrorResult
	defer c.Request.Body.Close()
	if err != nil {
		h.log.Warnw("Failed to read webhook request body", "error", err)
		h.reject(c, "Cannot read request body")
		return
	}

	sigHeader := c.GetHeader(stripeSignatureHeader)
	if sigHeader == "" {
		h.log.Warnw("Missing Stripe-Signature header")
		h.reject(c, "Missing Stripe-Signature header")
		return
	}

	event, err := h.processor.ConstructEvent(payload, sigHeader)
	if err != nil {
		h.log.Warnw("Webhook signature verification failed", "error", err)
		h.reject(c, "Webhook signature verification failed")
		return
	}

	h.log.Infow("Received verified Stripe event", "eventID", event.ID, "eventType", event.Type)

	// Stripe получает 200 и при ошибке обработки: событие помечено failed в журнале
	if err := h.processor.Process(c.Request.Context(), event); err != nil {
		h.log.Errorw("Error processing webhook event", "error", err, "eventID", event.ID, "eventType", event.Type)
	}

	res.JsonResponse(c.Writer, gin.H{"received": true}, http.StatusOK)
}

func (h *WebhookHandler) reject(c *gin.Context, message string) {
	res.JsonResponse(c.Writer, res.ErrorResponse{Error: message, ErrorCode: http.StatusBadRequest}, http.StatusBadRequest)
	c.Abort()
}
