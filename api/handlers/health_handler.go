package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/clipfetch/internal/app"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	queueMgr *app.QueueManager
	fetchMgr *app.FetchManager
	started  time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(queueMgr *app.QueueManager, fetchMgr *app.FetchManager) *HealthHandler {
	return &HealthHandler{
		queueMgr: queueMgr,
		fetchMgr: fetchMgr,
		started:  time.Now(),
	}
}

// QueueHealth summarizes the dispatcher state
type QueueHealth struct {
	Running    bool  `json:"running"`
	Slots      int   `json:"slots"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Queue   QueueHealth `json:"queue"`
}

// Health handles GET /health. It answers 200 whenever the process serves
// HTTP; storage trouble only shows up as a degraded status.
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Queue: QueueHealth{
			Running: h.queueMgr.IsRunning(),
			Slots:   h.fetchMgr.Capacity(),
		},
	}

	if stats, err := h.queueMgr.GetStats(); err == nil {
		response.Queue.Queued = stats.Queued
		response.Queue.Processing = stats.Processing
	} else {
		response.Status = "degraded"
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready: 503 until the queue dispatcher runs
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.queueMgr.IsRunning() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status": "not ready",
		"reason": "queue manager not running",
	})
}
