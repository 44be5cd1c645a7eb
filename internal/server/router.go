// Package server exposes the warden's local observability surface:
// health, the current session snapshot, and Prometheus metrics.
package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/personaplex/warden/internal/metrics"
	"github.com/personaplex/warden/internal/supervisor"
)

// SessionSource provides the snapshot of the session currently being
// supervised, or nil when the worker is idle.
type SessionSource func() *supervisor.Session

// Router provides the embeddable HTTP handlers.
// Endpoints:
//
//	GET /healthz  - liveness of the warden itself
//	GET /status   - snapshot of the active session, 404 when idle
//	GET /metrics  - Prometheus metrics
type Router struct {
	source SessionSource
}

// NewRouter constructs a Router reading sessions from source.
func NewRouter(source SessionSource) *Router {
	return &Router{source: source}
}

// Handler returns an http.Handler powered by gin.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", r.handleHealthz)
	g.GET("/status", r.handleStatus)
	g.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, source SessionSource) *http.Server {
	r := NewRouter(source)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (r *Router) handleStatus(c *gin.Context) {
	sess := r.source()
	if sess == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no active session"})
		return
	}
	c.JSON(http.StatusOK, sess.Status())
}
