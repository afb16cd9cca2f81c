package res

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// ErrorResponse представляет формат JSON-ответа для ошибок.
type ErrorResponse struct {
	Error     string `json:"error"`                // Сообщение для пользователя
	ErrorCode int    `json:"error_code,omitempty"` // HTTP-код ошибки
	Details   any    `json:"details,omitempty"`    // Ошибки валидации и т.п.
	DebugInfo string `json:"debug_info,omitempty"` // Только в development
}

// DataResponse - обертка успешного ответа.
type DataResponse struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
	Meta    *Meta  `json:"meta,omitempty"`
}

// Meta описывает пагинацию списка.
type Meta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"total_pages"`
	HasNextPage bool `json:"has_next_page"`
	HasPrevPage bool `json:"has_prev_page"`
}

// NewMeta считает производные поля пагинации.
func NewMeta(page, limit, total int) *Meta {
	if limit <= 0 {
		limit = 1
	}
	totalPages := (total + limit - 1) / limit
	return &Meta{
		Page:        page,
		Limit:       limit,
		Total:       total,
		TotalPages:  totalPages,
		HasNextPage: page < totalPages,
		HasPrevPage: page > 1,
	}
}

// JsonResponse отправляет JSON-ответ с заданным статусом.
func JsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// JsonErrorResponse отправляет JSON ответ ошибки и пишет его в лог.
func JsonErrorResponse(w http.ResponseWriter, errResponse ErrorResponse, status int, log *zap.Logger) {
	JsonResponse(w, errResponse, status)
	if status >= http.StatusInternalServerError {
		log.Error("Error response", zap.Int("status", status), zap.Any("error", errResponse))
		return
	}
	log.Debug("Client error response", zap.Int("status", status), zap.String("error", errResponse.Error))
}
