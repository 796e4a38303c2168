package http

import (
	"github.com/gin-gonic/gin"

	"github.com/querypad/querypad-backend/internal/queries/session"
)

// Register mounts the query and edit-session routes on the API group.
func Register(rg *gin.RouterGroup, svc Service, sessions *session.Manager) {
	h := NewHandler(svc, sessions)

	q := rg.Group("/queries")
	q.POST("", h.create)
	q.GET("", h.list)
	q.GET("/:id", h.get)
	q.POST("/:id", h.update)
	q.DELETE("/:id", h.archive)
	q.POST("/:id/fork", h.fork)
	q.POST("/:id/schedule", h.updateSchedule)
	q.GET("/:id/changes", h.changes)
	q.GET("/:id/visualizations", h.listVisualizations)
	q.POST("/:id/visualizations", h.createVisualization)
	q.POST("/:id/sessions", h.openSession)

	rg.DELETE("/visualizations/:id", h.deleteVisualization)

	s := rg.Group("/sessions")
	s.POST("", h.openBlankSession)
	s.GET("/:sid", h.sessionState)
	s.PATCH("/:sid", h.editSession)
	s.POST("/:sid/save", h.saveSession)
	s.POST("/:sid/fork", h.forkSession)
	s.POST("/:sid/duplicate", h.duplicateSession)
	s.DELETE("/:sid", h.closeSession)
}
