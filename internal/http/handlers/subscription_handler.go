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

// SubscriptionUseCases - операции жизненного цикла подписки. Реализация - services.SubscriptionService.
type SubscriptionUseCases interface {
	Subscribe(ctx context.Context, subscriberID uuid.UUID, in domain.SubscribeInput) (*domain.SubscriptionResult, error)
	Renew(ctx context.Context, subscriberID, subscriptionID uuid.UUID, in domain.RenewInput) (*domain.SubscriptionResult, error)
	CancelDeferred(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error)
	CancelImmediate(ctx context.Context, actor domain.Actor, subscriptionID uuid.UUID) (*domain.UserSubscription, error)
	CreateSetupCheckout(ctx context.Context, subscriberID uuid.UUID, in domain.CheckoutSetupInput) (*domain.CheckoutSession, error)
	GetMySubscriptionPlan(ctx context.Context, subscriberID uuid.UUID) (*domain.SubscriptionPlanView, error)
	ListSubscriptions(ctx context.Context, subscriberID uuid.UUID) ([]domain.UserSubscription, error)
	GetSubscription(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error)
}

// SubscriptionHandler обрабатывает HTTP запросы, связанные с подписками.
type SubscriptionHandler struct {
	service SubscriptionUseCases
	log     *logger.Logger
}

// NewSubscriptionHandler создает новый экземпляр SubscriptionHandler.
func NewSubscriptionHandler(service SubscriptionUseCases, log *logger.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
		log:     log,
	}
}

// Subscribe обрабатывает POST /subscriptions
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.SubscribeInput](c, h.log)
	if !ok {
		return
	}

	result, err := h.service.Subscribe(c.Request.Context(), a.UserID, *in)
	if err != nil {
		h.log.Warnw("Subscribe failed", "error", err, "userID", a.UserID, "offerID", in.OfferID)
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusCreated)
}

// CreateSetupCheckout обрабатывает POST /subscriptions/checkout
func (h *SubscriptionHandler) CreateSetupCheckout(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.CheckoutSetupInput](c, h.log)
	if !ok {
		return
	}

	session, err := h.service.CreateSetupCheckout(c.Request.Context(), a.UserID, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, session, http.StatusCreated)
}

// Renew обрабатывает PUT /subscriptions/:id/renew
func (h *SubscriptionHandler) Renew(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}
	in, ok := bindJSON[domain.RenewInput](c, h.log)
	if !ok {
		return
	}

	result, err := h.service.Renew(c.Request.Context(), a.UserID, id, *in)
	if err != nil {
		h.log.Warnw("Renew failed", "error", err, "userID", a.UserID, "subscriptionID", id)
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// CancelDeferred обрабатывает POST /subscriptions/:id/cancel
func (h *SubscriptionHandler) CancelDeferred(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	sub, err := h.service.CancelDeferred(c.Request.Context(), a.UserID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{
		Message: "subscription will be cancelled at the end of the billing period",
		Data:    sub,
	}, http.StatusOK)
}

// CancelImmediate обрабатывает DELETE /subscriptions/:id
func (h *SubscriptionHandler) CancelImmediate(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	sub, err := h.service.CancelImmediate(c.Request.Context(), a, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{
		Message: "subscription cancelled",
		Data:    sub,
	}, http.StatusOK)
}

// GetMyPlan обрабатывает GET /subscriptions/me/plan
func (h *SubscriptionHandler) GetMyPlan(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}

	plan, err := h.service.GetMySubscriptionPlan(c.Request.Context(), a.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, plan, http.StatusOK)
}

// List обрабатывает GET /subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}

	subs, err := h.service.ListSubscriptions(c.Request.Context(), a.UserID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{Data: subs}, http.StatusOK)
}

// Get обрабатывает GET /subscriptions/:id
func (h *SubscriptionHandler) Get(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	sub, err := h.service.GetSubscription(c.Request.Context(), a.UserID, id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, sub, http.StatusOK)
}
