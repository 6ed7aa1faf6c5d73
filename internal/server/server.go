package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthCheckTimeout = 2 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Server wraps the gin engine serving the dashboard API and health checks.
// Dashboard services register their routes on Engine before Run is called.
type Server struct {
	Engine *gin.Engine
	Addr   string
	db     *sql.DB
}

// New creates the HTTP server. db may be nil, in which case the health
// endpoint skips the database check.
func New(addr string, db *sql.DB, mode string) *Server {
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		Engine: gin.Default(),
		Addr:   addr,
		db:     db,
	}

	s.Engine.GET("/health", s.healthHandler)

	return s
}

// healthHandler reports liveness and store connectivity. A reachable
// process with an unreachable database is unhealthy: every dashboard
// endpoint depends on the store.
func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			slog.Error("[Server] Health check failed: store unreachable", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "store unreachable",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Run serves until ctx is cancelled, then shuts down gracefully, draining
// in-flight dashboard requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("[Server] Listening", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("[Server] Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("[Server] Forced shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
