package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/querypad/querypad-backend/internal/queries/session"
)

// Edit-session endpoints. A session mirrors the editor view: it holds
// the working text server-side so save/fork reconciliation and dirty
// tracking live in one place.

func (h *Handler) openSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	q, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	s := session.NewFromQuery(q, h.svc, h.svc)
	sid := h.sessions.Open(s)

	c.JSON(http.StatusCreated, gin.H{"ok": true, "session_id": sid, "state": s.State()})
}

func (h *Handler) openBlankSession(c *gin.Context) {
	s := session.NewBlank(h.svc, h.svc)
	sid := h.sessions.Open(s)

	c.JSON(http.StatusCreated, gin.H{"ok": true, "session_id": sid, "state": s.State()})
}

func (h *Handler) sessionState(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "state": s.State()})
}

func (h *Handler) editSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	var req editReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	s.Edit(req.Text)
	c.JSON(http.StatusOK, gin.H{"ok": true, "state": s.State()})
}

func (h *Handler) saveSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := s.Save(c.Request.Context(), session.SaveOptions{})
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		// Nothing to persist.
		c.JSON(http.StatusOK, gin.H{"ok": true, "saved": false, "state": s.State()})
		return
	}

	resp := gin.H{"ok": true, "saved": true, "state": s.State()}
	if out.Redirect {
		resp["location"] = out.Location
		resp["preserve_fragment"] = out.PreserveFragment
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) forkSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := s.Fork(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "state": s.State()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "query": out.Saved, "state": s.State()})
}

func (h *Handler) duplicateSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("sid"))
	if err != nil {
		respondError(c, err)
		return
	}

	out, err := s.Duplicate(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if out == nil {
		c.JSON(http.StatusOK, gin.H{"ok": true, "state": s.State()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":                true,
		"query":             out.Saved,
		"location":          out.Location,
		"preserve_fragment": out.PreserveFragment,
		"state":             s.State(),
	})
}

func (h *Handler) closeSession(c *gin.Context) {
	if err := h.sessions.Close(c.Param("sid")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
