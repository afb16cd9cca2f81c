package handlers

import (
	"errors"
	"net/http"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/middleware"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
	"github.com/Dhoini/fitness-billing-service/pkg/req"
	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// respondError переводит доменную ошибку в HTTP-ответ.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	status := domain.HTTPStatus(err)
	body := res.ErrorResponse{
		Error:     domain.PublicMessage(err),
		ErrorCode: status,
	}
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		body.Details = verrs.Fields()
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	}
	res.JsonErrorResponse(c.Writer, body, status, log.Zap())
	c.Abort()
}

// bindJSON разбирает и валидирует тело запроса по тегам binding.
func bindJSON[T any](c *gin.Context, log *logger.Logger) (*T, bool) {
	var payload T
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.Debugw("Invalid request body", "path", c.FullPath(), "error", err)
		body := res.ErrorResponse{
			Error:     "invalid request body",
			ErrorCode: http.StatusBadRequest,
		}
		if details := req.ValidationDetails(err); details != nil {
			body.Error = "request validation failed"
			body.Details = details
		}
		res.JsonResponse(c.Writer, body, http.StatusBadRequest)
		c.Abort()
		return nil, false
	}
	return &payload, true
}

// uuidParam читает UUID из параметра пути.
func uuidParam(c *gin.Context, log *logger.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, log, domain.BadRequest("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

// actor возвращает пользователя, положенного в контекст JWT middleware.
func actor(c *gin.Context, log *logger.Logger) (domain.Actor, bool) {
	a, ok := middleware.ActorFrom(c)
	if !ok {
		log.Errorw("Actor not found in context after auth middleware", "path", c.FullPath())
		respondError(c, log, domain.ErrUnauthenticated)
		return domain.Actor{}, false
	}
	return a, true
}
