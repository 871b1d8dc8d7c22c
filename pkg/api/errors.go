package api

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/planner"
	"github.com/maestro-ai/maestro/pkg/workflow"
)

// abortWithError maps a domain error to an HTTP error response.
func abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidInput), errors.Is(err, memory.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, memory.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, workflow.ErrCheckpointNotFound),
		errors.Is(err, os.ErrNotExist):
		c.JSON(http.StatusNotFound, gin.H{"error": "resource not found"})
	case errors.Is(err, memory.ErrDuplicateKey), errors.Is(err, workflow.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, planner.ErrInfeasible),
		errors.Is(err, workflow.ErrDependencyCycle),
		errors.Is(err, workflow.ErrUnknownDependency):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		slog.Error("Unexpected error in API handler", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
