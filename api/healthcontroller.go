package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterHealthRoutes registers the health endpoint.
func RegisterHealthRoutes(r *gin.Engine, checks map[string]Pinger) {
	r.GET("/api/health", func(c *gin.Context) {
		handleHealth(c, checks)
	})
}

// handleHealth pings every dependency with a short timeout. Any failure
// turns the response into 503.
func handleHealth(c *gin.Context, checks map[string]Pinger) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := gin.H{}
	for name, p := range checks {
		if err := p.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
