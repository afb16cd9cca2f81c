package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentUseCases - платежи пользователя. Реализация - services.PaymentService.
type PaymentUseCases interface {
	ListPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	CreatePaymentCheckout(ctx context.Context, userID uuid.UUID, in domain.PaymentCheckoutInput) (*domain.CheckoutSession, error)
	CapturePayment(ctx context.Context, actor domain.Actor, in domain.CapturePaymentInput) (*domain.Payment, error)
}

// PaymentHandler обрабатывает HTTP запросы, связанные с платежами.
type PaymentHandler struct {
	service PaymentUseCases
	log     *logger.Logger
}

// NewPaymentHandler создает новый экземпляр PaymentHandler.
func NewPaymentHandler(service PaymentUseCases, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		log:     log,
	}
}

// List обрабатывает GET /payments
func (h *PaymentHandler) List(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}

	payments, err := h.service.ListPayments(c.Request.Context(), a.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Debugw("Payments listed", "userID", a.UserID, "count", len(payments))
	res.JsonResponse(c.Writer, res.DataResponse{Data: payments}, http.StatusOK)
}

// CreateCheckout обрабатывает POST /payments/checkout
func (h *PaymentHandler) CreateCheckout(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.PaymentCheckoutInput](c, h.log)
	if !ok {
		return
	}

	session, err := h.service.CreatePaymentCheckout(c.Request.Context(), a.UserID, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, session, http.StatusCreated)
}

// Capture обрабатывает POST /payments/capture
func (h *PaymentHandler) Capture(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.CapturePaymentInput](c, h.log)
	if !ok {
		return
	}

	payment, err := h.service.CapturePayment(c.Request.Context(), a, *in)
	if err != nil {
		h.log.Warnw("Payment capture failed", "error", err, "userID", a.UserID, "paymentIntentID", in.PaymentIntentID)
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{Data: payment}, http.StatusOK)
}
