// Package api exposes the planner, workflow, memory, and provider surfaces
// over HTTP plus a WebSocket event stream.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/maestro-ai/maestro/pkg/events"
	"github.com/maestro-ai/maestro/pkg/llm"
	"github.com/maestro-ai/maestro/pkg/memory"
	"github.com/maestro-ai/maestro/pkg/planner"
	"github.com/maestro-ai/maestro/pkg/workflow"
)

// Server bundles the HTTP handlers and their collaborators.
type Server struct {
	planner     *planner.Planner
	queue       *planner.ExecutionQueue
	plans       *planner.OutputWriter
	dispatcher  *workflow.Dispatcher
	checkpoints *workflow.CheckpointManager
	memory      *memory.Repository
	providers   *llm.Registry
	connManager *events.ConnectionManager
}

// Deps lists the collaborators the server needs. connManager may be nil to
// disable the WebSocket endpoint.
type Deps struct {
	Planner     *planner.Planner
	Queue       *planner.ExecutionQueue
	Plans       *planner.OutputWriter
	Dispatcher  *workflow.Dispatcher
	Checkpoints *workflow.CheckpointManager
	Memory      *memory.Repository
	Providers   *llm.Registry
	ConnManager *events.ConnectionManager
}

// NewServer creates an API server.
func NewServer(deps Deps) *Server {
	return &Server{
		planner:     deps.Planner,
		queue:       deps.Queue,
		plans:       deps.Plans,
		dispatcher:  deps.Dispatcher,
		checkpoints: deps.Checkpoints,
		memory:      deps.Memory,
		providers:   deps.Providers,
		connManager: deps.ConnManager,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.health)
	r.GET("/ws", s.handleWS)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/plans", s.createPlan)
		v1.GET("/plans", s.listPlans)
		v1.GET("/plans/:id", s.getPlan)
		v1.DELETE("/plans/:id", s.removePlan)

		v1.POST("/workflows", s.startWorkflow)
		v1.GET("/workflows", s.listWorkflows)
		v1.GET("/workflows/:id", s.getWorkflow)
		v1.POST("/workflows/:id/cancel", s.cancelWorkflow)
		v1.POST("/workflows/:id/resume", s.resumeWorkflow)
		v1.GET("/workflows/:id/checkpoints", s.listCheckpoints)

		v1.GET("/memory/search", s.searchMemory)
		v1.GET("/memory/records/:id", s.getMemoryRecord)

		v1.GET("/providers/status", s.providerStatus)
	}
	return r
}
