package datasources

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo  *Repo
	pause *PauseState
}

func Register(rg *gin.RouterGroup, repo *Repo, pause *PauseState) {
	h := &Handler{repo: repo, pause: pause}

	rg.GET("", h.list)
	rg.GET("/:id", h.get)
	rg.POST("/:id/pause", h.pauseSource)
	rg.DELETE("/:id/pause", h.resumeSource)
}

func (h *Handler) list(c *gin.Context) {
	items, err := h.repo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data_sources": items})
}

func (h *Handler) get(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	ds, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "data source not found"})
		return
	}

	paused, reason, err := h.pause.Paused(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	resp := gin.H{"ok": true, "data_source": ds, "paused": paused}
	if paused {
		resp["pause_reason"] = reason
	}
	c.JSON(http.StatusOK, resp)
}

type pauseReq struct {
	Reason string `json:"reason"`
}

func (h *Handler) pauseSource(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req pauseReq
	_ = c.ShouldBindJSON(&req) // reason is optional

	if err := h.pause.Pause(c.Request.Context(), id, req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) resumeSource(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if err := h.pause.Resume(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid id"})
		return 0, false
	}
	return id, true
}
