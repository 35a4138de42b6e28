// Package routes wires handlers and middleware onto the gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terescrow/ledger-service/internal/api/handlers"
	"github.com/terescrow/ledger-service/internal/api/middleware"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/pkg/logger"
)

// Setup builds the HTTP router. Webhooks skip auth and rate limiting:
// providers sign their payloads and must never be throttled into retry
// storms.
func Setup(
	cfg *config.Config,
	transactionHandler *handlers.TransactionHandler,
	webhookHandler *handlers.WebhookHandler,
	userHandler *handlers.UserHandler,
	rateHandler *handlers.RateHandler,
	healthHandler *handlers.HealthHandler,
	log *logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Metrics(),
		middleware.CORS(cfg.Server.AllowedOrigins),
	)

	router.GET("/health", healthHandler.Live)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	webhooks := v1.Group("/webhooks")
	{
		webhooks.POST("/palmpay", webhookHandler.PalmPay)
		webhooks.POST("/reloadly", webhookHandler.Reloadly)
		webhooks.POST("/vtpass", webhookHandler.VTPass)
		webhooks.POST("/chain-deposit", webhookHandler.ChainDeposit)
	}

	authed := v1.Group("")
	authed.Use(
		middleware.RateLimit(cfg.Server.RateLimitPerMin),
		middleware.Auth(&cfg.JWT),
	)
	{
		authed.GET("/balances", transactionHandler.Balances)
		authed.GET("/balances/deposit-address", transactionHandler.DepositAddress)
		authed.PUT("/users/pin", userHandler.SetPin)

		rates := authed.Group("/rates")
		{
			rates.PUT("/prices", rateHandler.SetAssetPrice)
			rates.PUT("/fiat", rateHandler.SetFiatRate)
		}

		tx := authed.Group("/transactions")
		{
			tx.GET("", transactionHandler.List)
			tx.GET("/stats", transactionHandler.Stats)
			tx.POST("/:kind/quote", transactionHandler.Quote)
			tx.POST("/:kind/preview", transactionHandler.Preview)
			tx.POST("/:kind/execute", transactionHandler.Execute)
		}
	}

	return router
}
