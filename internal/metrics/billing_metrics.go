package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты операций для меток
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// BillingMetrics - метрики подписок, вебхуков, правил и вызовов Stripe.
type BillingMetrics interface {
	PaymentMetrics
	IncSubscriptionOperation(operation string, err error)
	IncWebhookEvent(eventType, result string)
	IncPricingRuleApplied(ruleType domain.RuleType)
	ObserveStripeCall(operation string, duration time.Duration, err error)
}

type billingMetrics struct {
	PaymentMetrics
	subscriptionOps *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	rulesApplied    *prometheus.CounterVec
	stripeCalls     *prometheus.HistogramVec
}

// NewBillingMetrics регистрирует метрики в registry.
func NewBillingMetrics(registry prometheus.Registerer, log *logger.Logger) BillingMetrics {
	factory := promauto.With(registry)
	return &billingMetrics{
		PaymentMetrics: NewPaymentMetrics(registry, log),
		subscriptionOps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_subscription_operations_total",
				Help: "Subscription lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		webhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Stripe webhook events by type and result",
			},
			[]string{"type", "result"},
		),
		rulesApplied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_pricing_rules_applied_total",
				Help: "Pricing rule applications by rule type",
			},
			[]string{"type"},
		),
		stripeCalls: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_stripe_call_duration_seconds",
				Help:    "Stripe API call latency including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
	}
}

func (m *billingMetrics) IncSubscriptionOperation(operation string, err error) {
	m.subscriptionOps.WithLabelValues(operation, outcomeLabel(err)).Inc()
}

func (m *billingMetrics) IncWebhookEvent(eventType, result string) {
	m.webhookEvents.WithLabelValues(eventType, result).Inc()
}

func (m *billingMetrics) IncPricingRuleApplied(ruleType domain.RuleType) {
	m.rulesApplied.WithLabelValues(string(ruleType)).Inc()
}

func (m *billingMetrics) ObserveStripeCall(operation string, duration time.Duration, err error) {
	m.stripeCalls.WithLabelValues(operation, outcomeLabel(err)).Observe(duration.Seconds())
}

// outcomeLabel отделяет бизнес-отказы от сбоев.
func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrPaymentFailed):
		return "payment_failed"
	default:
		return OutcomeError
	}
}

type nopMetrics struct{}

// NewNop возвращает метрики, которые ничего не записывают.
func NewNop() BillingMetrics { return nopMetrics{} }

func (nopMetrics) IncPaymentRecorded(domain.PaymentStatus, string) {}
func (nopMetrics) ObservePaymentAmount(float64, string, domain.PaymentStatus) {}
func (nopMetrics) IncSubscriptionOperation(string, error) {}
func (nopMetrics) IncWebhookEvent(string, string) {}
func (nopMetrics) IncPricingRuleApplied(domain.RuleType) {}
func (nopMetrics) ObserveStripeCall(string, time.Duration, error) {}

// HTTPMetrics - счётчик и гистограмма HTTP-запросов.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics регистрирует HTTP-метрики.
func NewHTTPMetrics(registry prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(registry)
	return &HTTPMetrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Middleware записывает метрики по шаблону маршрута, а не по сырому пути.
func (h *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		h.requests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		h.duration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
