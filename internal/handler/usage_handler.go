package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sentencevault/sentence-service/shared/middleware"
	"github.com/sentencevault/sentence-service/shared/models"
)

type UsageQuerier interface {
	GetUsage(ctx context.Context) (*models.UsageView, error)
}

// UsageHandler exposes the aggregate usage projection.
type UsageHandler struct {
	queries UsageQuerier
}

func NewUsageHandler(queries UsageQuerier) *UsageHandler {
	return &UsageHandler{queries: queries}
}

func (h *UsageHandler) GetUsage(c *gin.Context) {
	view, err := h.queries.GetUsage(c.Request.Context())
	if err != nil {
		log.Printf("Failed to read usage: %v", err)
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Usage statistics unavailable")
		return
	}
	c.JSON(http.StatusOK, view)
}
