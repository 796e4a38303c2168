package results

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	repo          *Repo
	exporter      *S3Exporter
	defaultMaxAge time.Duration
}

// NewHandler wires the result routes. exporter may be nil when S3 export
// is not configured; the export route then responds 501.
func NewHandler(repo *Repo, exporter *S3Exporter, defaultMaxAge time.Duration) *Handler {
	return &Handler{repo: repo, exporter: exporter, defaultMaxAge: defaultMaxAge}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/results", h.store)
	rg.GET("/results/latest", h.latest)
	rg.GET("/results/:id", h.get)
	rg.POST("/results/:id/export", h.export)
}

type storeReq struct {
	Query        string          `json:"query"`
	Data         json.RawMessage `json:"data"`
	Runtime      float64         `json:"runtime"`
	DataSourceID int64           `json:"data_source_id"`
}

func (h *Handler) store(c *gin.Context) {
	var req storeReq
	if err := c.ShouldBindJSON(&req); err != nil || req.Query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	stored, err := h.repo.Store(c.Request.Context(), QueryResult{
		Query:        req.Query,
		Data:         req.Data,
		Runtime:      req.Runtime,
		DataSourceID: req.DataSourceID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ok": true, "result": stored})
}

func (h *Handler) latest(c *gin.Context) {
	queryText := c.Query("query")
	if queryText == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "query parameter required"})
		return
	}
	dataSourceID, _ := strconv.ParseInt(c.DefaultQuery("data_source_id", "0"), 10, 64)

	maxAge := h.defaultMaxAge
	if raw := c.Query("max_age"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid max_age"})
			return
		}
		maxAge = time.Duration(secs) * time.Second
	}

	res, err := h.repo.GetLatest(c.Request.Context(), dataSourceID, queryText, maxAge)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}
	if res == nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "no fresh result"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (h *Handler) get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid id"})
		return
	}

	res, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "result not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (h *Handler) export(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"ok": false, "error": "export not configured"})
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid id"})
		return
	}

	res, err := h.repo.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "result not found"})
		return
	}

	key, err := h.exporter.Export(c.Request.Context(), res)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "key": key})
}
