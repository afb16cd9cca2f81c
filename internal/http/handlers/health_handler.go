package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Dhoini/fitness-billing-service/pkg/res"

	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 2 * time.Second

// HealthCheck проверяет зависимость, например Ping пула Postgres.
type HealthCheck func(ctx context.Context) error

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Check обрабатывает GET /health. Любая упавшая проверка дает 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	res.JsonResponse(c.Writer, gin.H{
		"status":     overall,
		"time":       time.Now().Format(time.RFC3339),
		"components": components,
	}, status)
}
