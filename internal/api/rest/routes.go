package rest

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/api/rest/handlers"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/api/rest/middleware"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

// RouterDeps bundles the handlers and shared state the router needs.
type RouterDeps struct {
	Packs         *handlers.PackHandler
	Subscriptions *handlers.SubscriptionHandler
	Entitlements  *handlers.EntitlementHandler
	Webhooks      *handlers.WebhookHandler
	Registry      *prometheus.Registry
	Log           *logger.Logger
}

// SetupRouter wires all routes and middleware into a Gin engine.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(gin.Recovery())

	r.GET("/health", handlers.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))

	v1 := r.Group("/api/v1")
	{
		packs := v1.Group("/packs")
		{
			packs.GET("", deps.Packs.ListPacks)
			packs.GET("/:id", deps.Packs.GetPack)
			packs.POST("", deps.Packs.CreatePack)
			packs.POST("/:id/inclusions", deps.Packs.AddInclusion)
			packs.DELETE("/:id/inclusions/:includesId", deps.Packs.RemoveInclusion)
			packs.POST("/:id/categories", deps.Packs.LinkCategory)
		}

		v1.POST("/checkout", deps.Subscriptions.CreateCheckout)

		subscriptions := v1.Group("/subscriptions")
		{
			subscriptions.GET("", deps.Subscriptions.ListSubscriptions)
			subscriptions.GET("/:id", deps.Subscriptions.GetSubscription)
			subscriptions.POST("/:id/cancel", deps.Subscriptions.CancelSubscription)
		}

		v1.GET("/transactions", deps.Subscriptions.ListTransactions)
		v1.POST("/transactions/:id/refund", deps.Subscriptions.RequestRefund)

		entitlements := v1.Group("/entitlements")
		{
			entitlements.GET("/categories", deps.Entitlements.ListAccessibleCategories)
			entitlements.GET("/packs", deps.Entitlements.ListAccessiblePacks)
			entitlements.GET("/categories/:categoryId/access", deps.Entitlements.CheckCategoryAccess)
		}

		events := v1.Group("/webhook-events")
		{
			events.GET("", deps.Webhooks.ListEvents)
			events.POST("/:id/retry", deps.Webhooks.RetryEvent)
		}
	}

	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/stripe", deps.Webhooks.HandleStripeWebhook)
	}

	return r
}
