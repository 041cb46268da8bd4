package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"kitpack/boxes"
	"kitpack/infrastructure/audit"
	"kitpack/infrastructure/metrics"
	"kitpack/infrastructure/sqlite"
)

var ShutdownTimeout = 2 * time.Second

// Server bundles dependencies and route wiring.
type Server struct {
	Addr   string
	ln     net.Listener
	server *http.Server
	router *chi.Mux

	DB          *sqlite.DB
	Audit       *audit.Service
	Metrics     *metrics.Metrics
	Coordinator *boxes.Coordinator
}

// NewServer creates the API server with all routes registered.
func NewServer(addr string, db *sqlite.DB, auditSvc *audit.Service, m *metrics.Metrics, coordinator *boxes.Coordinator) *Server {
	s := &Server{
		Addr:        addr,
		router:      chi.NewRouter(),
		DB:          db,
		Audit:       auditSvc,
		Metrics:     m,
		Coordinator: coordinator,
		server: &http.Server{
			MaxHeaderBytes: 1 << 20,
		},
	}

	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Compress(5))

	s.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Handle("/metrics", m.Handler())

	s.RegisterAPIRoutes()

	s.server.Handler = s.router
	return s
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler { return s.router }

// Start begins listening without blocking.
func (s *Server) Start() error {
	var err error
	if s.ln, err = net.Listen("tcp", s.Addr); err != nil {
		return err
	}
	go s.server.Serve(s.ln)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.ln == nil {
		return fmt.Errorf("HTTP server has not been started or is already stopped")
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	s.ln = nil
	return nil
}
