package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/models"
)

// searchMemory handles GET /api/v1/memory/search. Results are filtered by
// the requesting agent's read permissions.
func (s *Server) searchMemory(c *gin.Context) {
	agent := models.AgentID(c.Query("agent"))
	if agent == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent query parameter is required"})
		return
	}

	query := memory.SearchQuery{
		Text:     c.Query("q"),
		Category: c.Query("category"),
	}
	if raw := c.Query("k"); raw != "" {
		k, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "k must be an integer"})
			return
		}
		query.K = &k
	}

	records, err := s.memory.SearchSimilar(c.Request.Context(), query, agent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(records),
		"records": records,
	})
}

// getMemoryRecord handles GET /api/v1/memory/records/:id.
func (s *Server) getMemoryRecord(c *gin.Context) {
	agent := models.AgentID(c.Query("agent"))
	if agent == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "agent query parameter is required"})
		return
	}

	record, err := s.memory.Get(c.Request.Context(), c.Param("id"), agent)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
