package metrics

import (
	"strings"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PaymentMetrics интерфейс для метрик платежей
type PaymentMetrics interface {
	IncPaymentRecorded(status domain.PaymentStatus, currency string)
	ObservePaymentAmount(amount float64, currency string, status domain.PaymentStatus)
}

type paymentMetrics struct {
	log            *logger.Logger
	paymentsStatus *prometheus.CounterVec
	paymentsAmount *prometheus.HistogramVec
}

// NewPaymentMetrics создает новые метрики платежей
func NewPaymentMetrics(registry prometheus.Registerer, log *logger.Logger) PaymentMetrics {
	paymentsStatus := promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_total",
			Help: "The total number of recorded payments by status",
		},
		[]string{"status", "currency"},
	)

	paymentsAmount := promauto.With(registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_payment_amount",
			Help:    "Payment amounts distribution",
			Buckets: prometheus.ExponentialBuckets(10, 10, 5), // 10, 100, 1000, 10000, 100000
		},
		[]string{"currency", "status"},
	)

	return &paymentMetrics{
		log:            log,
		paymentsStatus: paymentsStatus,
		paymentsAmount: paymentsAmount,
	}
}

// IncPaymentRecorded увеличивает счетчик платежей в статусе
func (m *paymentMetrics) IncPaymentRecorded(status domain.PaymentStatus, currency string) {
	m.paymentsStatus.WithLabelValues(strings.ToLower(string(status)), currency).Inc()
}

// ObservePaymentAmount записывает сумму платежа
func (m *paymentMetrics) ObservePaymentAmount(amount float64, currency string, status domain.PaymentStatus) {
	m.paymentsAmount.WithLabelValues(currency, strings.ToLower(string(status))).Observe(amount)
}
