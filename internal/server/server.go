// Package server exposes the build and preview operations over a JSON API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openstats-labs/statcube/internal/cube"
	"github.com/openstats-labs/statcube/internal/i18n"
	"github.com/openstats-labs/statcube/internal/preview"
)

// Config holds the server dependencies.
type Config struct {
	Addr    string
	Builder *cube.Builder
	Preview *preview.Service
	Catalog *i18n.Catalog
	Logger  *slog.Logger
}

// Server serves the cube build and preview API.
type Server struct {
	addr    string
	builder *cube.Builder
	preview *preview.Service
	catalog *i18n.Catalog
	logger  *slog.Logger
}

// New creates a Server. If logger is nil, a discard logger is used.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:    cfg.Addr,
		builder: cfg.Builder,
		preview: cfg.Preview,
		catalog: cfg.Catalog,
		logger:  logger,
	}
}

// Serve starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.addr)

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Router(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}
