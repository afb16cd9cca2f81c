package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Application errors
var (
	// ErrNotFound запись не найдена или не принадлежит вызывающему
	ErrNotFound = errors.New("not found")

	// ErrConflict нарушение уникальности / повторное использование
	ErrConflict = errors.New("conflict")

	// ErrForbidden роль или владелец не совпадают
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput неверные входные данные или нарушение бизнес-правила
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated нет идентичности вызывающего
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrExternalService вызов платежного шлюза не удался
	ErrExternalService = errors.New("external service failure")

	// ErrPaymentFailed платеж не прошел (статус подписки в Stripe неуспешный)
	ErrPaymentFailed = errors.New("payment failed")

	// ErrWebhookValidationFailed не удалось проверить подпись вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")
)

// Kind - категория ошибки из таксономии сервиса.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindForbidden
	KindBadRequest
	KindUpstream
)

func (k Kind) sentinel() error {
	switch k {
	case KindNotFound:
		return ErrNotFound
	case KindConflict:
		return ErrConflict
	case KindForbidden:
		return ErrForbidden
	case KindBadRequest:
		return ErrInvalidInput
	case KindUpstream:
		return ErrExternalService
	}
	return nil
}

// StatusCode возвращает HTTP-код категории.
func (k Kind) StatusCode() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// AppError - ошибка с категорией и сообщением для пользователя.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

// Error реализует интерфейс error
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap возвращает оригинальную ошибку
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с сентинелами: errors.Is(err, ErrConflict).
func (e *AppError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// StatusCode возвращает HTTP-код ошибки.
func (e *AppError) StatusCode() int {
	return e.Kind.StatusCode()
}

func NotFound(format string, args ...any) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *AppError {
	return &AppError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *AppError {
	return &AppError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func BadRequest(format string, args ...any) *AppError {
	return &AppError{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Upstream оборачивает ошибку платежного шлюза.
func Upstream(message string, err error) *AppError {
	return &AppError{Kind: KindUpstream, Message: message, Err: err}
}

// ExternalServiceError представляет ошибку внешнего сервиса
type ExternalServiceError struct {
	Service     string
	Code        string
	Message     string
	StatusCode  int
	Retryable   bool
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// Is: любая ошибка внешнего сервиса - это ErrExternalService.
func (e *ExternalServiceError) Is(target error) bool {
	return target == ErrExternalService
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service, code, message string, statusCode int, retryable bool, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		Retryable:   retryable,
		OriginalErr: err,
	}
}

// HTTPStatus сопоставляет любую ошибку с HTTP-кодом ответа.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrWebhookValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrPaymentFailed), errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// PublicMessage возвращает текст, который можно показать клиенту.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is: ошибки валидации - это BadRequest.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields возвращает map поле -> сообщение для ответа клиенту.
func (e ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(e))
	for _, err := range e {
		out[err.Field] = err.Message
	}
	return out
}
