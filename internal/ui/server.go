package ui

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/thep200/repo-harvester/pkg/log"
)

// Server exposes metrics, the live run report and the stored repositories over HTTP.
type Server struct {
	Logger log.Logger
	server *http.Server
	port   int
}

func NewServer(logger log.Logger, handler *Handler, port int) (*Server, error) {
	if port <= 0 {
		return nil, fmt.Errorf("invalid status server port %d", port)
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &Server{
		Logger: logger,
		port:   port,
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}, nil
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	s.Logger.Info(context.Background(), "Starting status server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.Logger.Info(ctx, "Shutting down status server")
	return s.server.Shutdown(ctx)
}
