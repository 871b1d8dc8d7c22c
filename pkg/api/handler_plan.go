package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maestro-ai/maestro/pkg/models"
)

// createPlan handles POST /api/v1/plans. The generated plan is persisted and
// enqueued for execution.
func (s *Server) createPlan(c *gin.Context) {
	var input models.PlannerInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, err := s.planner.CreatePlan(input)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, plan)
}

// listPlans handles GET /api/v1/plans. It reports the execution queue in
// FIFO order.
func (s *Server) listPlans(c *gin.Context) {
	plans := s.queue.List()
	c.JSON(http.StatusOK, gin.H{
		"queued": len(plans),
		"plans":  plans,
	})
}

// getPlan handles GET /api/v1/plans/:id. Plans already dequeued are served
// from the output directory.
func (s *Server) getPlan(c *gin.Context) {
	planID := c.Param("id")
	if plan, ok := s.queue.FindByPlanID(planID); ok {
		c.JSON(http.StatusOK, plan)
		return
	}

	plan, err := s.plans.Read(planID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, plan)
}

// removePlan handles DELETE /api/v1/plans/:id.
func (s *Server) removePlan(c *gin.Context) {
	if !s.queue.RemoveByPlanID(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "plan is not queued"})
		return
	}
	c.Status(http.StatusNoContent)
}
