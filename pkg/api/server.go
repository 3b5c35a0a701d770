// Package api wires the reference server's HTTP surface: a health endpoint,
// the WebSocket upgrade route for the transport adapter, and optional
// static asset serving. Grounded on cmd/tarsy/main.go's gin.SetMode /
// route-registration shape and pkg/api/server.go's health-handler and
// static-dashboard-serving design (translated from that file's echo/v5
// calls onto gin, the framework go.mod actually pins as a direct
// dependency — see SPEC_FULL.md DOMAIN STACK).
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/cloudmodel/relay/pkg/config"
	"github.com/cloudmodel/relay/pkg/server"
	"github.com/cloudmodel/relay/pkg/transport/ws"
)

// Server is the HTTP server hosting the websocket upgrade endpoint plus
// operational and (optionally) static-asset routes.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	cfg        *config.ServerConfig
	serializer *server.Serializer
	hub        *ws.Hub
}

// NewServer builds the HTTP server. serializer is the server serializer
// (spec.md §4.1) that hub's websocket connections will be registered
// against.
func NewServer(cfg *config.ServerConfig, serializer *server.Serializer) *Server {
	hub := ws.NewHub(serializer, cfg.WriteTimeout, cfg.AllowedWSOrigins)

	g := gin.New()
	g.Use(gin.Recovery())

	s := &Server{
		engine:     g,
		cfg:        cfg,
		serializer: serializer,
		hub:        hub,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.healthHandler)
	s.engine.GET("/ws", s.wsHandler)

	if s.cfg.StaticDir != "" {
		s.setupStaticRoutes()
	}
}

// wsHandler upgrades the request to a websocket connection and hands it to
// the Hub, which blocks for the connection's lifetime.
func (s *Server) wsHandler(c *gin.Context) {
	s.hub.ServeHTTP(c.Writer, c.Request)
}

// setupStaticRoutes serves a bundled frontend from cfg.StaticDir, the way
// pkg/api/server.go's setupDashboardRoutes serves the TARSy dashboard:
// hashed assets under /assets with immutable caching, everything else
// falling back to index.html for client-side routing, as long as
// index.html actually exists in the directory.
func (s *Server) setupStaticRoutes() {
	indexPath := filepath.Join(s.cfg.StaticDir, "index.html")
	if _, err := os.Stat(indexPath); err != nil {
		return
	}

	assetsDir := filepath.Join(s.cfg.StaticDir, "assets")
	if _, err := os.Stat(assetsDir); err == nil {
		s.engine.Static("/assets", assetsDir)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.File(indexPath)
	})
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.engine,
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
