package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/querypad/querypad-backend/internal/queries/domain"
	"github.com/querypad/querypad-backend/internal/queries/repository"
	"github.com/querypad/querypad-backend/internal/queries/session"
	"github.com/querypad/querypad-backend/internal/schedule"
)

// Service is the slice of the query service the handlers consume.
type Service interface {
	session.Saver
	session.Forker

	Create(ctx context.Context, in repository.CreateQuery) (*domain.Query, error)
	Get(ctx context.Context, id int64) (*domain.Query, error)
	Update(ctx context.Context, in repository.SaveQuery) (*domain.Query, error)
	Archive(ctx context.Context, id int64) error
	UpdateSchedule(ctx context.Context, id int64, spec string) error
	List(ctx context.Context, drafts bool) ([]domain.Query, error)
	Search(ctx context.Context, term string) ([]domain.Query, error)
	Recent(ctx context.Context, limit int) ([]domain.Query, error)
	Changes(ctx context.Context, queryID int64) ([]domain.Change, error)
	Visualizations(ctx context.Context, queryID int64) ([]domain.Visualization, error)
	CreateVisualization(ctx context.Context, queryID int64, visType, name, description string, options map[string]interface{}) (*domain.Visualization, error)
	DeleteVisualization(ctx context.Context, id int64) error
}

type Handler struct {
	svc      Service
	sessions *session.Manager
}

func NewHandler(svc Service, sessions *session.Manager) *Handler {
	return &Handler{svc: svc, sessions: sessions}
}

func (h *Handler) create(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	isDraft := true
	if req.IsDraft != nil {
		isDraft = *req.IsDraft
	}

	q, err := h.svc.Create(c.Request.Context(), repository.CreateQuery{
		Name:         req.Name,
		Description:  req.Description,
		Query:        req.Query,
		DataSourceID: req.DataSourceID,
		IsDraft:      isDraft,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "query": q, "location": q.CanonicalLocation()})
}

func (h *Handler) list(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		items []domain.Query
		err   error
	)
	switch {
	case c.Query("q") != "":
		items, err = h.svc.Search(ctx, c.Query("q"))
	case c.Query("recent") == "true":
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		items, err = h.svc.Recent(ctx, limit)
	default:
		items, err = h.svc.List(ctx, c.Query("drafts") == "true")
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "queries": items})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	q, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "query": q})
}

// update is the direct save path. A stale version comes back as 409 with
// the persistent conflict warning; the caller's draft is never touched.
func (h *Handler) update(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	saved, err := h.svc.Update(c.Request.Context(), repository.SaveQuery{
		ID:          id,
		Version:     req.Version,
		Name:        req.Name,
		Description: req.Description,
		Query:       req.Query,
		Options:     req.Options,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "query": saved})
}

func (h *Handler) archive(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.Archive(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) fork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	forked, err := h.svc.ForkQuery(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "query": forked, "location": forked.CanonicalLocation()})
}

func (h *Handler) updateSchedule(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req scheduleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if err := schedule.Validate(req.Schedule); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return
	}

	if err := h.svc.UpdateSchedule(c.Request.Context(), id, req.Schedule); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) changes(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	changes, err := h.svc.Changes(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "changes": changes})
}

func (h *Handler) listVisualizations(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	items, err := h.svc.Visualizations(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "visualizations": items})
}

func (h *Handler) createVisualization(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createVisualizationReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	v, err := h.svc.CreateVisualization(c.Request.Context(), id, req.Type, req.Name, req.Description, req.Options)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "visualization": v})
}

func (h *Handler) deleteVisualization(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteVisualization(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps domain errors onto status codes: conflicts are 409
// with the persistent warning, unknown ids are 404, the rest are 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{
			"ok":      false,
			"error":   "version conflict",
			"warning": ConflictWarning,
			// The client must keep this warning up until the user
			// dismisses it.
			"persistent": true,
		})
	case errors.Is(err, domain.ErrQueryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "query not found"})
	case errors.Is(err, domain.ErrVisualizationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "visualization not found"})
	case errors.Is(err, domain.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "edit session not found"})
	case errors.Is(err, domain.ErrSessionClosed):
		c.JSON(http.StatusGone, gin.H{"ok": false, "error": "edit session closed"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
	}
}
