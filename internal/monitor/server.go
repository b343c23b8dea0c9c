// Package monitor serves live progress of a running benchmark over HTTP.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/pingsantohq/cidbench/internal/metrics"
)

const shutdownTimeout = 3 * time.Second

type Config struct {
	Addr string
}

// Dependencies provide the progress source and logging.
type Dependencies struct {
	Progress *metrics.Progress
	Logger   *log.Logger
}

type Server struct {
	*http.Server
	logger *log.Logger
}

// New builds the router: /metrics, /healthz and /progress.
func New(cfg Config, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.Progress == nil {
		deps.Progress = metrics.NewProgress()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", deps.Progress.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.HandleFunc("/progress", progressHandler(deps.Progress)).Methods(http.MethodGet)

	s := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{Server: s, logger: deps.Logger}
}

func progressHandler(p *metrics.Progress) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(p.Snapshot())
	}
}

// Serve listens on the configured address until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("monitor listening on http://%s", ln.Addr())
		errCh <- s.Server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
