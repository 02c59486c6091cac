package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz reports Redis reachability.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.health.Check(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
