package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yourusername/clipfetch/internal/domain"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // API is already open to any origin via CORS
	},
}

// Message types sent over the progress stream
const (
	MessageSnapshot = "snapshot"
	MessageProgress = "progress"
)

// ProgressMessage is one frame of GET /api/v1/fetches/:id/progress.
// A snapshot carries the job record, progress frames carry a live event.
type ProgressMessage struct {
	Type  string                `json:"type"`
	Fetch *domain.Fetch         `json:"fetch,omitempty"`
	Event *domain.ProgressEvent `json:"event,omitempty"`
}

// frame renders one channel value as a JSON message; last ends the stream
type frame[T any] func(v T) (msg interface{}, last bool, reason string)

// pump writes every value from items to conn, pinging while idle. It returns
// after a last frame, when items closes, when the peer goes away or on a
// write error. A normal close frame is sent in the first two cases.
func pump[T any](conn *websocket.Conn, items <-chan T, render frame[T]) error {
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case item, ok := <-items:
			if !ok {
				closeNormally(conn, "stream ended")
				return nil
			}
			msg, last, reason := render(item)
			if err := writeJSON(conn, msg); err != nil {
				return err
			}
			if last {
				closeNormally(conn, reason)
				return nil
			}

		case <-ticker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return err
			}

		case <-gone:
			return nil
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(v)
}

// closeNormally sends a close frame so the client sees a clean end of stream
func closeNormally(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
}
