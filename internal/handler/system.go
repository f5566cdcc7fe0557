package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"zkbridge/pkg/logger"
)

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	db          *sqlx.DB
	redisClient *redis.Client
	logger      logger.Logger
	startTime   time.Time
}

// NewSystemHandler creates a SystemHandler. db and redisClient may be nil
// when the service runs without them.
func NewSystemHandler(db *sqlx.DB, redisClient *redis.Client, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		db:          db,
		redisClient: redisClient,
		logger:      log,
		startTime:   time.Now(),
	}
}

// Health reports liveness.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "bridge",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready reports whether backing services respond.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	if h.db != nil {
		checks["database"] = "ok"
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("Database not ready", map[string]interface{}{"error": err.Error()})
			checks["database"] = "unavailable"
			ready = false
		}
	}
	if h.redisClient != nil {
		checks["redis"] = "ok"
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			h.logger.Warn("Redis not ready", map[string]interface{}{"error": err.Error()})
			checks["redis"] = "unavailable"
			ready = false
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
