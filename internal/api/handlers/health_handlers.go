package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/terescrow/ledger-service/internal/infrastructure/cache"
	"github.com/terescrow/ledger-service/internal/infrastructure/database"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	db    *sqlx.DB
	redis cache.RedisClient
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(db *sqlx.DB, redis cache.RedisClient) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Live handles GET /health: process is up.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// Ready handles GET /health/ready: dependencies answer.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	if err := database.HealthCheck(h.db); err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": checks})
}
