package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maestro-ai/maestro/pkg/models"
)

// startWorkflowRequest is the body for POST /api/v1/workflows.
type startWorkflowRequest struct {
	PlanID string `json:"plan_id" binding:"required"`
}

// startWorkflow handles POST /api/v1/workflows. The plan is pulled from the
// queue when still queued so the dispatcher workers cannot pick it up a
// second time; otherwise it is re-read from the plan output directory.
func (s *Server) startWorkflow(c *gin.Context) {
	var req startWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	plan, ok := s.queue.FindByPlanID(req.PlanID)
	if ok {
		s.queue.RemoveByPlanID(req.PlanID)
	} else {
		var err error
		plan, err = s.plans.Read(req.PlanID)
		if err != nil {
			abortWithError(c, err)
			return
		}
	}

	workflowID := s.dispatcher.StartPlan(context.Background(), plan)
	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id": workflowID,
		"plan_id":     plan.PlanID,
	})
}

// listWorkflows handles GET /api/v1/workflows.
func (s *Server) listWorkflows(c *gin.Context) {
	c.JSON(http.StatusOK, s.dispatcher.List())
}

// getWorkflow handles GET /api/v1/workflows/:id.
func (s *Server) getWorkflow(c *gin.Context) {
	state, ok := s.dispatcher.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "workflow not found"})
		return
	}
	c.JSON(http.StatusOK, state)
}

// cancelWorkflow handles POST /api/v1/workflows/:id/cancel.
func (s *Server) cancelWorkflow(c *gin.Context) {
	workflowID := c.Param("id")
	if !s.dispatcher.Cancel(workflowID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running workflow with that id"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id": workflowID,
		"status":      "cancelling",
	})
}

// resumeWorkflow handles POST /api/v1/workflows/:id/resume. Execution
// restarts from the latest checkpoint in the background.
func (s *Server) resumeWorkflow(c *gin.Context) {
	workflowID := c.Param("id")
	cp, err := s.checkpoints.Latest(workflowID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	plan, err := s.plans.Read(cp.PlanID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if err := s.dispatcher.StartResume(context.Background(), plan, cp); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"workflow_id":   workflowID,
		"checkpoint_id": cp.CheckpointID,
		"status":        "resuming",
	})
}

// listCheckpoints handles GET /api/v1/workflows/:id/checkpoints.
func (s *Server) listCheckpoints(c *gin.Context) {
	workflowID := c.Param("id")
	ids, err := s.checkpoints.List(workflowID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	checkpoints := make([]models.WorkflowCheckpoint, 0, len(ids))
	for _, id := range ids {
		cp, err := s.checkpoints.Load(workflowID, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		checkpoints = append(checkpoints, cp)
	}
	c.JSON(http.StatusOK, checkpoints)
}
