// Package server implements the trading backend the dashboard talks to:
// option chains, order placement, positions and exits over HTTP, with
// fills from a paper or Kite broker and trades kept in SQLite.
package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"options-dashboard/internal/broker"
	"options-dashboard/internal/config"
	"options-dashboard/internal/errors"
	"options-dashboard/internal/logging"
	"options-dashboard/internal/store"
)

// Server serves the backend API.
type Server struct {
	addr   string
	router *gin.Engine
	desk   *Desk
	logger zerolog.Logger
}

// NewServer builds the HTTP server.
func NewServer(cfg *config.Config, b broker.Broker, st store.TradeStore, logger zerolog.Logger) (*Server, error) {
	if b == nil || st == nil {
		return nil, errors.NewValidationError("server", nil, "broker and store are required")
	}
	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8000"
	}
	logger = logging.WithComponent(logger, "server")

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger), cors(cfg.Server.AllowOrigins))

	s := &Server{
		addr:   addr,
		router: router,
		desk:   NewDesk(b, st, cfg.Server.StrikeWindow, cfg.LotSize, logger),
		logger: logger,
	}

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Options Trading API Backend", "broker": b.Name()})
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.register(router)

	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Desk returns the request executor behind the routes.
func (s *Server) Desk() *Desk {
	return s.desk
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.Info().Str("addr", s.addr).Msg("Backend listening")

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Str("ip", c.ClientIP()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	}
}

// cors admits browser calls from the dashboard origins. "*" allows any.
func cors(origins []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
