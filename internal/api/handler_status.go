package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wc-reservation-backend/internal/gateway"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

// GetStatus handles GET /api/wc/status. The body has the same shape as the
// websocket status event.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status, err := h.store.GetResourceStatus(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("get status")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve status"})
		return
	}
	history, err := h.store.RecentHistory(ctx, gateway.HistorySize)
	if err != nil {
		h.log.Error().Err(err).Msg("get status history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve history"})
		return
	}
	c.JSON(http.StatusOK, gateway.StatusPayload{Status: status, History: history})
}

// GetHistory handles GET /api/history?limit=N.
func (h *Handler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	history, err := h.store.RecentHistory(c.Request.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("get history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve history"})
		return
	}
	c.JSON(http.StatusOK, history)
}
