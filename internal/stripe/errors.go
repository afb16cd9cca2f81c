package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/stripe/stripe-go/v78"
)

// Типы и коды ошибок Stripe, для которых в SDK нет констант.
const (
	ErrorTypeAPIConnection  stripe.ErrorType = "api_connection_error"
	ErrorTypeAuthentication stripe.ErrorType = "authentication_error"
	ErrorTypeRateLimit      stripe.ErrorType = "rate_limit_error"

	ErrorCodeAlreadyAttached stripe.ErrorCode = "resource_already_attached"
	ErrorCodeUnexpectedState stripe.ErrorCode = "payment_method_unexpected_state"
)

const serviceName = "stripe"

// isRetryable - временная ошибка, запрос можно повторить.
func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.Type == ErrorTypeRateLimit {
			return true
		}
		if stripeErr.Type == ErrorTypeAPIConnection || stripeErr.Type == stripe.ErrorTypeAPI {
			return true
		}
		// 501 не лечится повтором
		if stripeErr.HTTPStatusCode >= 500 && stripeErr.HTTPStatusCode != http.StatusNotImplemented {
			return true
		}
	}
	return false
}

// isAlreadyAttached - метод оплаты уже привязан к клиенту.
func isAlreadyAttached(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	if stripeErr.Code == ErrorCodeAlreadyAttached {
		return true
	}
	return stripeErr.Code == ErrorCodeUnexpectedState && strings.Contains(strings.ToLower(stripeErr.Msg), "already been attached")
}

// isResourceMissing - объект в Stripe не найден.
func isResourceMissing(err error) bool {
	var stripeErr *stripe.Error
	return errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// classify переводит ошибку SDK в ошибку домена. Ошибки карты и неверного запроса - это ErrPaymentFailed.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		extErr := domain.NewExternalServiceError(
			serviceName,
			string(stripeErr.Code),
			operation+": "+stripeErr.Msg,
			stripeErr.HTTPStatusCode,
			isRetryable(err),
			err,
		)
		if stripeErr.Type == stripe.ErrorTypeCard {
			return errors.Join(domain.ErrPaymentFailed, extErr)
		}
		return extErr
	}
	return domain.NewExternalServiceError(serviceName, "transport", operation+": "+err.Error(), 0, isRetryable(err), err)
}

// logStripeError - вспомогательная функция для логирования деталей ошибки Stripe.
func logStripeError(log *logger.Logger, operation string, err error) {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Errorw("Stripe API error",
			"operation", operation,
			"type", string(stripeErr.Type),
			"code", string(stripeErr.Code),
			"param", stripeErr.Param,
			"message", stripeErr.Msg,
			"request_id", stripeErr.RequestID,
			"status_code", stripeErr.HTTPStatusCode,
		)
	} else {
		log.Errorw("Non-Stripe error during Stripe operation",
			"operation", operation,
			"error", err,
		)
	}
}
