package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// health handles GET /health.
func (s *Server) health(c *gin.Context) {
	resp := gin.H{
		"status":       "ok",
		"queued_plans": s.queue.Size(),
	}
	if s.connManager != nil {
		resp["ws_connections"] = s.connManager.ActiveConnections()
	}
	c.JSON(http.StatusOK, resp)
}

// providerStatus handles GET /api/v1/providers/status.
func (s *Server) providerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"active":    s.providers.Active(),
		"providers": s.providers.Status(),
	})
}
