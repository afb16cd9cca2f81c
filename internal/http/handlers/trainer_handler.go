package handlers

import (
	"context"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
)

// OnboardingStarter выдает ссылку онбординга connected-аккаунта.
type OnboardingStarter interface {
	StartOnboarding(ctx context.Context, actor domain.Actor) (*domain.OnboardingLink, error)
}

type TrainerHandler struct {
	service OnboardingStarter
	log     *logger.Logger
}

func NewTrainerHandler(service OnboardingStarter, log *logger.Logger) *TrainerHandler {
	return &TrainerHandler{service: service, log: log}
}

// StartOnboarding обрабатывает POST /trainers/onboarding
func (h *TrainerHandler) StartOnboarding(c *gin.Context) {
	a, ok := actor(c, h.log)
	if !ok {
		return
	}

	link, err := h.service.StartOnboarding(c.Request.Context(), a)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	res.JsonResponse(c.Writer, link, http.StatusOK)
}
