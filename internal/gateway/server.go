package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	port            string
	shutdownTimeout time.Duration
}

// NewServer creates a server. Read and write timeouts are generous because
// uploads and direct downloads stream whole files.
func NewServer(port string, handler http.Handler, shutdownTimeout time.Duration) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 20 * time.Second
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       5 * time.Minute,
			WriteTimeout:      5 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		port:            port,
		shutdownTimeout: shutdownTimeout,
	}
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	serverErrors := make(chan error, 1)

	go func() {
		log.Printf("Server starting on port %s", s.port)
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		log.Printf("Server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.httpServer.Close()
			return fmt.Errorf("could not gracefully shutdown server: %w", err)
		}

		log.Println("Server stopped gracefully")
	}

	return nil
}
