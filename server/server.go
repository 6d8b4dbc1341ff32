// Package server exposes the chat engine over gRPC (hawat.HawatChat) and
// over a websocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/dslachut/hawat/engine"
)

// Chatter runs one chat turn. *engine.Engine implements it.
type Chatter interface {
	Run(ctx context.Context, input *engine.Input) (*engine.Output, error)
}

// Config configures a Server.
type Config struct {
	Engine Chatter

	// GRPCAddr is the gRPC listen address. Empty disables gRPC.
	GRPCAddr string

	// HTTPAddr is the websocket/health listen address. Empty disables HTTP.
	HTTPAddr string

	// Health adds fields to the /health response.
	Health func() map[string]any
}

// Server runs the gRPC and HTTP listeners.
type Server struct {
	config Config
	grpc   *grpc.Server
	http   *http.Server
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("Engine is required")
	}
	if cfg.GRPCAddr == "" && cfg.HTTPAddr == "" {
		return nil, fmt.Errorf("at least one of GRPCAddr or HTTPAddr is required")
	}
	s := &Server{config: cfg}
	if cfg.GRPCAddr != "" {
		s.grpc = NewGRPCServer(cfg.Engine)
	}
	if cfg.HTTPAddr != "" {
		s.http = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           NewHTTPHandler(cfg.Engine, cfg.Health),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s, nil
}

// Run serves until ctx is cancelled or a listener fails, then shuts both
// listeners down.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.grpc != nil {
		lis, err := net.Listen("tcp", s.config.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", s.config.GRPCAddr, err)
		}
		log.Printf("[SERVER] gRPC listening on %s", lis.Addr())
		g.Go(func() error {
			return s.grpc.Serve(lis)
		})
	}

	if s.http != nil {
		log.Printf("[SERVER] HTTP listening on %s (/ws, /health)", s.http.Addr)
		g.Go(func() error {
			if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Printf("[SERVER] Shutting down")
		if s.grpc != nil {
			s.grpc.GracefulStop()
		}
		if s.http != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = s.http.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
