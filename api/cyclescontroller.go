package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hnenricher/orchestrator"
)

// RegisterCycleRoutes registers status and manual trigger endpoints.
func RegisterCycleRoutes(r *gin.Engine, s Scheduler, p Pipeline) {
	g := r.Group("/api")
	g.GET("/status", func(c *gin.Context) { handleStatus(c, s, p) })
	g.POST("/cycles/:name", func(c *gin.Context) { handleTriggerCycle(c, s) })
}

// StatusResponse is the JSON response for GET /api/status.
type StatusResponse struct {
	orchestrator.Status
	Pending      int    `json:"pending"`
	PendingError string `json:"pending_error,omitempty"`
}

func handleStatus(c *gin.Context, s Scheduler, p Pipeline) {
	resp := StatusResponse{Status: s.Status()}
	n, err := p.PendingCount(c.Request.Context())
	if err != nil {
		resp.PendingError = err.Error()
	}
	resp.Pending = n
	c.JSON(http.StatusOK, resp)
}

// handleTriggerCycle starts a cycle asynchronously and returns 202 Accepted.
func handleTriggerCycle(c *gin.Context, s Scheduler) {
	name := orchestrator.Cycle(c.Param("name"))
	if !s.Known(name) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown cycle " + string(name)})
		return
	}
	if err := s.Trigger(name); err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "cycle": name})
}
