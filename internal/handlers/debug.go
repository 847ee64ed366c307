package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"receipt-overseer/internal/telemetry"
	"receipt-overseer/internal/ws"
)

// SessionLister reports live websocket sessions.
type SessionLister interface {
	Sessions() []ws.SessionInfo
	Count() int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router gin.IRouter, emitter *telemetry.AuditEmitter, sessions SessionLister, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test", actorFromContext(c).UserID)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "request_id": requestIDFromContext(c)})
	})

	router.GET("/debug/sessions", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": sessions.Count(), "sessions": sessions.Sessions()})
	})
}
