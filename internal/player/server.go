// Package player serves a browser player for captures and composites.
package player

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/verte-zerg/lifelapse/internal/capture"
)

//go:embed static/index.html
var staticFS embed.FS

// Config holds player server settings.
type Config struct {
	ListenAddr string
	CacheSize  int
}

// Server is the frame player HTTP server.
type Server struct {
	config   Config
	layout   capture.Layout
	router   *mux.Router
	frames   *lru.Cache[string, []capture.Frame]
	registry *prometheus.Registry
	metrics  *Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

// NewServer creates a player for the captures described by layout.
func NewServer(cfg Config, layout capture.Layout, logger zerolog.Logger) (*Server, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	cache, err := lru.New[string, []capture.Frame](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame cache: %w", err)
	}
	registry := prometheus.NewRegistry()
	s := &Server{
		config:   cfg,
		layout:   layout,
		router:   mux.NewRouter(),
		frames:   cache,
		registry: registry,
		metrics:  NewMetrics(registry),
		logger:   logger.With().Str("component", "player").Logger(),
		now:      time.Now,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dates", s.handleDates).Methods(http.MethodGet)
	s.router.HandleFunc("/api/frames", s.handleFrames).Methods(http.MethodGet)
	s.router.HandleFunc("/api/composites", s.handleComposites).Methods(http.MethodGet)
	s.router.HandleFunc("/img/{root:camera|screen|composite}/{path:.+}", s.handleImage).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve listens on the configured address until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.ListenAddr).Msg("frame player listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("player shutdown: %w", err)
	}
	s.logger.Info().Msg("frame player stopped")
	return nil
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		s.metrics.Requests.WithLabelValues(route, fmt.Sprintf("%d", wrapped.status)).Inc()
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("duration", time.Since(start)).
			Msg("player request")
	})
}
