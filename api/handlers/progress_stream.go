package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yourusername/clipfetch/internal/app"
	"github.com/yourusername/clipfetch/internal/domain"
	"go.uber.org/zap"
)

// ProgressStreamHandler streams progress events of one fetch over WebSocket
type ProgressStreamHandler struct {
	queueMgr *app.QueueManager
	hub      *app.ProgressHub
	logger   *zap.Logger
}

// NewProgressStreamHandler creates a new progress stream handler
func NewProgressStreamHandler(queueMgr *app.QueueManager, hub *app.ProgressHub, log *zap.Logger) *ProgressStreamHandler {
	return &ProgressStreamHandler{
		queueMgr: queueMgr,
		hub:      hub,
		logger:   log,
	}
}

// Stream handles GET /api/v1/fetches/:id/progress. It sends the current
// record, then live events, and closes after the terminal event.
func (h *ProgressStreamHandler) Stream(c *gin.Context) {
	id := c.Param("id")

	// Subscribe before reading the snapshot so nothing in between is lost
	events, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()

	fetch, err := h.queueMgr.GetFetch(id)
	if err != nil {
		respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	if err := writeJSON(conn, ProgressMessage{Type: MessageSnapshot, Fetch: fetch}); err != nil {
		return
	}
	if fetch.IsTerminal() {
		closeNormally(conn, string(fetch.Status))
		return
	}

	err = pump(conn, events, func(event domain.ProgressEvent) (interface{}, bool, string) {
		return ProgressMessage{Type: MessageProgress, Event: &event}, event.IsTerminal(), string(event.Phase)
	})
	if err != nil {
		h.logger.Debug("Progress client went away", zap.String("id", id), zap.Error(err))
	}
}
