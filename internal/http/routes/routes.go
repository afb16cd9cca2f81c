package routes

import (
	"github.com/Dhoini/fitness-billing-service/internal/app"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, a *app.App, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(a.LoggerMiddleware)
	router.Use(gin.Recovery())
	if a.HTTPMetrics != nil {
		router.Use(a.HTTPMetrics.Middleware())
	}

	if a.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	api := router.Group("/api/v1")
	{
		// Публичные маршруты (без аутентификации)
		api.POST("/webhooks/stripe", a.WebhookHandler.HandleStripeWebhook)
		api.GET("/health", a.HealthHandler.Check)
	}

	limited := api.Group("")
	if a.RateLimiter != nil {
		limited.Use(a.RateLimiter.Middleware())
	}

	// Защищенные маршруты (требуют аутентификации)
	auth := limited.Group("")
	auth.Use(a.AuthMiddleware.RequireAuth())

	subscriptions := auth.Group("/subscriptions")
	{
		subscriptions.POST("", a.SubscriptionHandler.Subscribe)
		subscriptions.POST("/checkout", a.SubscriptionHandler.CreateSetupCheckout)
		subscriptions.GET("", a.SubscriptionHandler.List)
		subscriptions.GET("/me/plan", a.SubscriptionHandler.GetMyPlan)
		subscriptions.GET("/:id", a.SubscriptionHandler.Get)
		subscriptions.PUT("/:id/renew", a.SubscriptionHandler.Renew)
		subscriptions.POST("/:id/cancel", a.SubscriptionHandler.CancelDeferred)
		subscriptions.DELETE("/:id", a.SubscriptionHandler.CancelImmediate)
	}

	offers := auth.Group("/offers")
	{
		offers.POST("", a.OfferHandler.Create)
		offers.GET("", a.OfferHandler.List)
		offers.GET("/:id", a.OfferHandler.Get)
		offers.PUT("/:id", a.OfferHandler.Update)
		offers.GET("/:id/pricing-rules/applicable", a.PricingHandler.ListApplicable)
	}

	auth.POST("/pricing-rules/:id/apply", a.PricingHandler.Apply)
	auth.POST("/trainers/onboarding", a.TrainerHandler.StartOnboarding)
	payments := auth.Group("/payments")
	{
		payments.GET("", a.PaymentHandler.List)
		payments.POST("/checkout", a.PaymentHandler.CreateCheckout)
		payments.POST("/capture", a.PaymentHandler.Capture)
	}

	// Управление правилами - только администраторы
	rules := limited.Group("/pricing-rules")
	rules.Use(a.AuthMiddleware.RequireAuth(domain.RoleAdmin, domain.RoleSuperAdmin))
	{
		rules.POST("", a.PricingHandler.Create)
		rules.GET("", a.PricingHandler.List)
		rules.GET("/:id", a.PricingHandler.Get)
		rules.PUT("/:id", a.PricingHandler.Update)
		rules.DELETE("/:id", a.PricingHandler.Delete)
	}

	log.Infow("API routes successfully configured")
}
