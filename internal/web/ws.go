package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sweeney/fridge-controller/internal/status"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMsgSize      = 1 << 10
	defaultInterval = 5 * time.Second
	minInterval     = 500 * time.Millisecond
	maxInterval     = time.Minute
)

// wsEnvelope wraps every websocket message.
type wsEnvelope struct {
	Type string             `json:"type"`
	Data status.StatusInner `json:"data"`
}

var upgrader = websocket.Upgrader{
	// The status page is read-only; any origin may watch it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams a status snapshot immediately and then every interval.
// The interval is set with ?interval=10s or ?interval_ms=10000.
func (s *Server) handleWS(c *gin.Context) {
	interval := parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("ws_upgrade_failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.drain(conn, done)

	ticker := time.NewTicker(interval)
	ping := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer ping.Stop()

	if err := s.sendStatus(conn); err != nil {
		s.log.Infow("ws_write_failed", "err", err)
		return
	}

	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Infow("ws_ping_failed", "err", err)
				return
			}
		case <-ticker.C:
			if err := s.sendStatus(conn); err != nil {
				s.log.Infow("ws_write_failed", "err", err)
				return
			}
		}
	}
}

// parseInterval prefers ?interval over ?interval_ms; out-of-range values fall back to the default.
func parseInterval(c *gin.Context) time.Duration {
	if v := c.Query("interval"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	if v := c.Query("interval_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			d := time.Duration(ms) * time.Millisecond
			if d >= minInterval && d <= maxInterval {
				return d
			}
		}
	}
	return defaultInterval
}

// drain reads until the peer goes away so control frames are processed.
func (s *Server) drain(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendStatus(conn *websocket.Conn) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: status.Build(s.tracker.Snapshot())})
}
