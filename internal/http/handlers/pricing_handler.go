package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PricingUseCases - правила скидок. Реализация - services.PricingService.
type PricingUseCases interface {
	ListApplicableRules(ctx context.Context, trainerID, offerID uuid.UUID) ([]domain.ApplicableRule, error)
	ApplyRule(ctx context.Context, subscriberID, ruleID uuid.UUID, subscriptionID *uuid.UUID) (*domain.PricingRuleUsage, error)
	CreateRule(ctx context.Context, actor domain.Actor, in domain.CreateRuleInput) (*domain.RuleView, error)
	UpdateRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID, in domain.UpdateRuleInput) (*domain.RuleView, error)
	DeleteRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID) error
	GetRule(ctx context.Context, ruleID uuid.UUID) (*domain.RuleView, error)
	ListRules(ctx context.Context) ([]domain.RuleView, error)
}

// ApplyRuleRequest - тело POST /pricing-rules/:id/apply. Тело может отсутствовать.
type ApplyRuleRequest struct {
	SubscriptionID *uuid.UUID `json:"subscription_id"`
}

type PricingHandler struct {
	service PricingUseCases
	log     *logger.Logger
}

func NewPricingHandler(service PricingUseCases, log *logger.Logger) *PricingHandler {
	return &PricingHandler{service: service, log: log}
}

// ListApplicable обрабатывает GET /offers/:id/pricing-rules/applicable. Тренер - вызывающий пользователь.
func (h *PricingHandler) ListApplicable(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	offerID, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	rules, err := h.service.ListApplicableRules(c.Request.Context(), a.UserID, offerID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{Data: rules}, http.StatusOK)
}

// Apply обрабатывает POST /pricing-rules/:id/apply
func (h *PricingHandler) Apply(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	ruleID, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}
	var body ApplyRuleRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, h.log, domain.BadRequest("invalid request body"))
		return
	}

	usage, err := h.service.ApplyRule(c.Request.Context(), a.UserID, ruleID, body.SubscriptionID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, usage, http.StatusCreated)
}

// Create обрабатывает POST /pricing-rules
func (h *PricingHandler) Create(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.CreateRuleInput](c, h.log)
	if !ok {
		return
	}

	rule, err := h.service.CreateRule(c.Request.Context(), a, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, rule, http.StatusCreated)
}

// Update обрабатывает PUT /pricing-rules/:id
func (h *PricingHandler) Update(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	ruleID, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}
	in, ok := bindJSON[domain.UpdateRuleInput](c, h.log)
	if !ok {
		return
	}

	rule, err := h.service.UpdateRule(c.Request.Context(), a, ruleID, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, rule, http.StatusOK)
}

// Delete обрабатывает DELETE /pricing-rules/:id
func (h *PricingHandler) Delete(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	ruleID, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteRule(c.Request.Context(), a, ruleID); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Get обрабатывает GET /pricing-rules/:id
func (h *PricingHandler) Get(c *gin.Context) {
	ruleID, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	rule, err := h.service.GetRule(c.Request.Context(), ruleID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, rule, http.StatusOK)
}

// List обрабатывает GET /pricing-rules
func (h *PricingHandler) List(c *gin.Context) {
	rules, err := h.service.ListRules(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{Data: rules}, http.StatusOK)
}
