package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"dubber/internal/config"
	"dubber/internal/logging"
	"dubber/internal/services/storage"
)

// apiServer exposes the daemon's HTTP API for job submission and inspection.
type apiServer struct {
	daemon    *Daemon
	presigner *storage.Presigner
	logger    *slog.Logger
	server    *http.Server
	listener  net.Listener
	bind      string
}

func newAPIServer(cfg *config.Config, d *Daemon, presigner *storage.Presigner, logger *slog.Logger) (*apiServer, error) {
	bind := cfg.Paths.APIBind
	if bind == "" {
		return nil, errors.New("api bind address is not configured")
	}

	s := &apiServer{
		daemon:    d,
		presigner: presigner,
		logger:    logger.With(logging.String(logging.FieldComponent, "api")),
		bind:      bind,
	}
	s.server = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *apiServer) routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/jobs", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/logs", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{id}/resubmit", s.handleResubmit).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{id}/download", s.handleDownload).Methods(http.MethodGet)
	api.HandleFunc("/upload/presign", s.handlePresign).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("addr", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("api server shutdown", logging.Error(err))
	}
	s.listener = nil
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
