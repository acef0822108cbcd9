package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check probes one dependency; a nil error means healthy.
type Check func(ctx context.Context) error

type consumerState interface {
	Running() bool
}

// HealthHandler reports the state of the stores and of the usage consumer.
// Only store failures make the service unhealthy; a stopped consumer only
// delays /stats.
type HealthHandler struct {
	checks   map[string]Check
	consumer consumerState
	timeout  time.Duration
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Checks   map[string]string `json:"checks"`
	Consumer string            `json:"consumer"`
}

func NewHealthHandler(checks map[string]Check, consumer consumerState) *HealthHandler {
	return &HealthHandler{checks: checks, consumer: consumer, timeout: 2 * time.Second}
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks)), Consumer: "stopped"}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	if h.consumer != nil && h.consumer.Running() {
		resp.Consumer = "running"
	}
	c.JSON(code, resp)
}
