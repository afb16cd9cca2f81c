package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/services"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OfferUseCases - каталог предложений. Реализация - services.OfferService.
type OfferUseCases interface {
	CreateOffer(ctx context.Context, actor domain.Actor, in domain.CreateOfferInput) (*domain.SubscriptionOffer, error)
	UpdateOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID, in domain.UpdateOfferInput) (*domain.SubscriptionOffer, error)
	GetOffer(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error)
	ListOffers(ctx context.Context, filter domain.OfferFilter) (*services.OfferPage, error)
}

type OfferHandler struct {
	service OfferUseCases
	log     *logger.Logger
}

func NewOfferHandler(service OfferUseCases, log *logger.Logger) *OfferHandler {
	return &OfferHandler{service: service, log: log}
}

// Create обрабатывает POST /offers
func (h *OfferHandler) Create(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	in, ok := bindJSON[domain.CreateOfferInput](c, h.log)
	if !ok {
		return
	}

	offer, err := h.service.CreateOffer(c.Request.Context(), a, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.log.Infow("Subscription offer created", "offerID", offer.ID, "trainerID", a.UserID)
	res.JsonResponse(c.Writer, offer, http.StatusCreated)
}

// Update обрабатывает PUT /offers/:id
func (h *OfferHandler) Update(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}
	in, ok := bindJSON[domain.UpdateOfferInput](c, h.log)
	if !ok {
		return
	}

	offer, err := h.service.UpdateOffer(c.Request.Context(), a, id, *in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, offer, http.StatusOK)
}

// Get обрабатывает GET /offers/:id
func (h *OfferHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, h.log, "id")
	if !ok {
		return
	}

	offer, err := h.service.GetOffer(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, offer, http.StatusOK)
}

// List обрабатывает GET /offers?search=&price_min=&price_max=&duration=&is_active=&page=&limit=
func (h *OfferHandler) List(c *gin.Context) {
	var filter domain.OfferFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondError(c, h.log, domain.BadRequest("invalid query parameters"))
		return
	}

	page, err := h.service.ListOffers(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, res.DataResponse{
		Data: page.Items,
		Meta: res.NewMeta(page.Page, page.Limit, page.Total),
	}, http.StatusOK)
}
