package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"donation/internal/handler"
	"donation/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	PaymentHandler *handler.PaymentHandler
	// RedisClient backs idempotency keys; nil disables them.
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
	MetricsGatherer prometheus.Gatherer
	AllowedOrigins  []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware(deps.AllowedOrigins...))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	gatherer := deps.MetricsGatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Donation payment routes.
		donations := v1.Group("/donations")
		{
			donations.POST("/:id/pay", middleware.IdempotencyMiddleware(deps.RedisClient), deps.PaymentHandler.BeginPayment)
			donations.POST("/:id/status", deps.PaymentHandler.CheckStatus)
			donations.GET("/:id/last-transaction", deps.PaymentHandler.LastTransaction)
		}

		// Gateway return endpoint. Gateways redirect with GET or POST.
		payments := v1.Group("/payments")
		{
			payments.GET("/callback", deps.PaymentHandler.Callback)
			payments.POST("/callback", deps.PaymentHandler.Callback)
		}

		transactions := v1.Group("/transactions")
		{
			transactions.GET("/:id/session", deps.PaymentHandler.Session)
		}
	}

	return router
}
