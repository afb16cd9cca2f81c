package req

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Dhoini/fitness-billing-service/pkg/res"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode декодирует JSON из io.ReadCloser в структуру типа T. Неизвестные поля запрещены.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T по тегам `validate`.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// ValidationDetails превращает ошибки валидатора в map поле -> правило.
func ValidationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule = fmt.Sprintf("%s=%s", rule, fe.Param())
		}
		out[strings.ToLower(fe.Field())] = rule
	}
	return out
}

// HandleBody декодирует и валидирует тело запроса. При ошибке ответ уже отправлен.
func HandleBody[T any](w http.ResponseWriter, r *http.Request, log *zap.Logger) (*T, error) {
	body, err := Decode[T](r.Body)
	if err != nil {
		log.Debug("Failed to decode request body", zap.Error(err))
		res.JsonResponse(w, res.ErrorResponse{Error: "invalid request body", ErrorCode: http.StatusBadRequest}, http.StatusBadRequest)
		return nil, err
	}

	if err = IsValid(body); err != nil {
		log.Debug("Request body validation failed", zap.Error(err))
		res.JsonResponse(w, res.ErrorResponse{
			Error:     "request validation failed",
			ErrorCode: http.StatusBadRequest,
			Details:   ValidationDetails(err),
		}, http.StatusBadRequest)
		return nil, err
	}
	return &body, nil
}
