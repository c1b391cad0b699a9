package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/clipfetch/pkg/logger"
	"go.uber.org/zap"
)

// backlogEntries is how much of today's file a new log watcher sees first
const backlogEntries = 50

// LogStreamHandler tails a log category over WebSocket
type LogStreamHandler struct {
	logReader *logger.LogReader
	logger    *zap.Logger
}

// NewLogStreamHandler creates a new log stream handler
func NewLogStreamHandler(logReader *logger.LogReader, log *zap.Logger) *LogStreamHandler {
	return &LogStreamHandler{
		logReader: logReader,
		logger:    log,
	}
}

// Stream handles GET /api/v1/logs/:category/stream
func (h *LogStreamHandler) Stream(c *gin.Context) {
	category := logger.LogCategory(c.Param("category"))
	if !logger.ValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	backlog, err := h.logReader.ReadLogs(category, time.Now(), backlogEntries)
	if err != nil {
		h.logger.Warn("Failed to read log backlog", zap.String("category", string(category)), zap.Error(err))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	for _, entry := range backlog {
		if err := writeJSON(conn, entry); err != nil {
			return
		}
	}

	entries := make(chan logger.LogEntry, 100)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		if err := h.logReader.TailLogs(category, entries, stop); err != nil {
			h.logger.Error("Log tailing error", zap.String("category", string(category)), zap.Error(err))
		}
	}()

	_ = pump[logger.LogEntry](conn, entries, func(entry logger.LogEntry) (interface{}, bool, string) {
		return entry, false, ""
	})
}
