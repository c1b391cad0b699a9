package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/internal/domain"
	"go.uber.org/zap"
)

// FetchHandler handles fetch-related HTTP requests
type FetchHandler struct {
	queueMgr *app.QueueManager
	fetchMgr *app.FetchManager
	logger   *zap.Logger
}

// NewFetchHandler creates a new fetch handler
func NewFetchHandler(queueMgr *app.QueueManager, fetchMgr *app.FetchManager, logger *zap.Logger) *FetchHandler {
	return &FetchHandler{
		queueMgr: queueMgr,
		fetchMgr: fetchMgr,
		logger:   logger,
	}
}

// AddFetchRequest represents a request to add a fetch
type AddFetchRequest struct {
	URL      string `json:"url" binding:"required"`
	Quality  string `json:"quality,omitempty"`
	Delivery string `json:"delivery,omitempty"`
}

// AddFetch handles POST /api/v1/fetches
func (h *FetchHandler) AddFetch(c *gin.Context) {
	var req AddFetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fetch, err := h.queueMgr.AddFetch(req.URL, req.Quality, domain.DeliveryMode(req.Delivery))
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			h.logger.Error("Failed to add fetch", zap.String("url", req.URL), zap.Error(err))
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, fetch)
}

// GetFetch handles GET /api/v1/fetches/:id
func (h *FetchHandler) GetFetch(c *gin.Context) {
	fetch, err := h.queueMgr.GetFetch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fetch)
}

// ListFetches handles GET /api/v1/fetches
func (h *FetchHandler) ListFetches(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		if !domain.ValidateStatus(domain.FetchStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + status})
			return
		}
		filters["status"] = status
	}
	if delivery := c.Query("delivery"); delivery != "" {
		filters["delivery"] = delivery
	}

	fetches, err := h.queueMgr.ListFetches(filters)
	if err != nil {
		h.logger.Error("Failed to list fetches", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fetches)
}

// GetStats handles GET /api/v1/fetches/stats
func (h *FetchHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelFetch handles POST /api/v1/fetches/:id/cancel
func (h *FetchHandler) CancelFetch(c *gin.Context) {
	id := c.Param("id")

	if err := h.fetchMgr.CancelFetch(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fetch cancelled"})
}

// RetryFetch handles POST /api/v1/fetches/:id/retry
func (h *FetchHandler) RetryFetch(c *gin.Context) {
	fetch, err := h.queueMgr.RetryFetch(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, fetch)
}

// DeleteFetch handles DELETE /api/v1/fetches/:id
func (h *FetchHandler) DeleteFetch(c *gin.Context) {
	id := c.Param("id")

	if err := h.fetchMgr.DeleteFetch(id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "fetch deleted"})
}

// DownloadFile handles GET /api/v1/fetches/:id/file
func (h *FetchHandler) DownloadFile(c *gin.Context) {
	artifact, err := h.fetchMgr.Artifact(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Description", "File Transfer")

	if artifact.Data != nil {
		c.Header("Content-Length", strconv.FormatInt(artifact.Size, 10))
		c.Header("Content-Disposition", `attachment; filename="`+artifact.DisplayName+`"`)
		c.Data(http.StatusOK, "application/octet-stream", artifact.Data)
		return
	}

	c.FileAttachment(artifact.Path, artifact.DisplayName)
}

// Probe handles GET /api/v1/probe?url=&quality=
func (h *FetchHandler) Probe(c *gin.Context) {
	sourceURL := c.Query("url")
	if sourceURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'url' is required"})
		return
	}

	quality, err := domain.ParseQuality(c.Query("quality"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.fetchMgr.Probe(c.Request.Context(), sourceURL, quality)
	if err != nil {
		h.logger.Warn("Probe failed", zap.String("url", sourceURL), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
