package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthResponse mirrors the teacher's /health shape, scoped to what this
// server actually tracks: event-log size and connected-session count
// instead of database/MCP/worker-pool health.
type HealthResponse struct {
	Status         string `json:"status"`
	EventLogSize   int    `json:"event_log_size"`
	ActiveSessions int    `json:"active_sessions"`
}

func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		EventLogSize:   s.serializer.LogSize(),
		ActiveSessions: s.serializer.ActiveSessions(),
	})
}
