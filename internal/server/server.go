// =============================================================================
// Branch P&L Dashboard - HTTP Server
// =============================================================================
//
// This package exposes the store, the upload pipeline, the dashboard view and
// the exporters over a JSON API.
//
// ROUTES:
//   GET    /api/health
//   GET    /api/quarters
//   POST   /api/quarters                          (multipart: file, year, quarter)
//   GET    /api/quarters/{id}
//   DELETE /api/quarters/{id}
//   GET    /api/quarters/{id}/branches            (?company=&branch=&q=&show=&archived=&sort=&dir=)
//   PUT    /api/quarters/{id}/branches/{name}/state
//   GET    /api/quarters/{id}/export              (?format=csv|xlsx&columns=a,b)
//   GET    /api/directory, PUT /api/directory
//   GET    /api/columns,   PUT /api/columns
//
// ERROR MAPPING:
//   - Unknown quarter                    -> 404
//   - Unsupported upload extension       -> 415
//   - Bad year / quarter / JSON body     -> 400
//   - Parse or validation failure        -> 422 (parser message verbatim)
//   - Store failure                      -> 500
//
// =============================================================================

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/branchpnl/pnl-dashboard/internal/converter"
	"github.com/branchpnl/pnl-dashboard/internal/store"
)

// DefaultMaxUploadBytes bounds multipart uploads when Options leaves it zero.
const DefaultMaxUploadBytes = 20 << 20

// Options configures a Server.
type Options struct {
	Store     store.Store
	Converter *converter.Converter

	// MaxUploadBytes bounds the multipart body of an upload.
	MaxUploadBytes int64

	// Inbox, when set, is started and stopped with the HTTP listener.
	Inbox *InboxScheduler

	Logger *slog.Logger
}

// Server serves the dashboard API.
type Server struct {
	store     store.Store
	converter *converter.Converter
	maxUpload int64
	inbox     *InboxScheduler
	logger    *slog.Logger
	router    *mux.Router
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	s := &Server{
		store:     opts.Store,
		converter: opts.Converter,
		maxUpload: opts.MaxUploadBytes,
		inbox:     opts.Inbox,
		logger:    opts.Logger,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUploadBytes
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(s.logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/quarters", s.handleListQuarters).Methods(http.MethodGet)
	api.HandleFunc("/quarters", s.handleUpload).Methods(http.MethodPost)
	api.HandleFunc("/quarters/{id}", s.handleGetQuarter).Methods(http.MethodGet)
	api.HandleFunc("/quarters/{id}", s.handleDeleteQuarter).Methods(http.MethodDelete)
	api.HandleFunc("/quarters/{id}/branches", s.handleBranches).Methods(http.MethodGet)
	api.HandleFunc("/quarters/{id}/branches/{name}/state", s.handleSaveState).Methods(http.MethodPut)
	api.HandleFunc("/quarters/{id}/export", s.handleExport).Methods(http.MethodGet)

	api.HandleFunc("/directory", s.handleGetDirectory).Methods(http.MethodGet)
	api.HandleFunc("/directory", s.handlePutDirectory).Methods(http.MethodPut)
	api.HandleFunc("/columns", s.handleGetColumns).Methods(http.MethodGet)
	api.HandleFunc("/columns", s.handlePutColumns).Methods(http.MethodPut)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully. The inbox scheduler, if any, runs for the same lifetime.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.inbox != nil {
		s.inbox.Start(ctx)
		defer s.inbox.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}
