// Package web provides the HTTP status server: health, status JSON, a live
// websocket stream of status snapshots, and Prometheus metrics.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/fridge-controller/internal/logger"
	"github.com/sweeney/fridge-controller/internal/status"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
)

// Server serves controller status over HTTP. It only reads snapshots.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	log        *logger.Logger
}

// New creates a Server that reads state from tracker. metrics may be nil.
func New(addr string, tracker *status.Tracker, metrics http.Handler, log *logger.Logger) *Server {
	s := &Server{tracker: tracker, log: log.Named("web")}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(metrics),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes(metrics http.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog)

	router.GET("/healthz", s.handleHealth)
	router.GET("/status.json", s.handleJSON)
	router.GET("/ws", s.handleWS)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
	return router
}

// Handler returns the router, for mounting under httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("http_request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		"duration", time.Since(start).String(),
	)
}

// handleHealth is 200 while device commands succeed and 503 once they keep failing.
func (s *Server) handleHealth(c *gin.Context) {
	inner := status.Build(s.tracker.Snapshot())
	code := http.StatusOK
	state := "ok"
	if !inner.Healthy {
		code = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(code, gin.H{
		"status":                       state,
		"mode":                         inner.Mode,
		"consecutive_command_failures": inner.CommandErrors,
	})
}

func (s *Server) handleJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}
