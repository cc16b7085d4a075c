package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// Send pings to peer with this period.
	wsPingPeriod = 30 * time.Second

	// Per-connection event buffer; slow readers drop events.
	wsEventBuffer = 128
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API binds to localhost for a single developer; origins are not
	// restricted.
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamEvents upgrades the connection and forwards scheduler events as JSON
// frames until the client disconnects.
func (s *Server) StreamEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	events := s.sched.Subscribe(wsEventBuffer)
	defer s.sched.Unsubscribe(events)
	defer conn.Close()

	// Reader goroutine: we never expect client frames, but reading is
	// required to notice disconnects and process control frames.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
