// Package server exposes the upload pipeline over HTTP.
//
// Routes:
//
//	GET    /health               liveness
//	POST   /api/uploads          validate a multipart "file"; ?save=true persists it
//	GET    /api/uploads/current  the current upload's preview
//	DELETE /api/uploads/current  clear the current upload
//	POST   /api/sanitize         strip markup from {"text": ..., "rich": bool}
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"audience/internal/storage"
	"audience/internal/upload"
)

// Config controls the server.
type Config struct {
	Addr           string
	AllowedOrigins []string
	// MaxConcurrent bounds uploads validated at the same time.
	MaxConcurrent int
	// Upload is the base validation config; requests may lower MaxRows.
	Upload upload.Options
	// SaveBatchSize is the storage batch size for ?save=true.
	SaveBatchSize int
}

// Server serves the upload API.
type Server struct {
	cfg     Config
	log     *zap.Logger
	repo    storage.Repository // nil when persistence is disabled
	sem     *semaphore.Weighted
	session upload.Session
	router  chi.Router
}

// New builds a Server. repo may be nil.
func New(cfg Config, repo storage.Repository, log *zap.Logger) *Server {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Upload.Logger == nil {
		cfg.Upload.Logger = log
	}
	s := &Server{
		cfg:  cfg,
		log:  log,
		repo: repo,
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	if len(s.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/uploads", s.handleUpload)
		r.Get("/uploads/current", s.handleCurrent)
		r.Delete("/uploads/current", s.handleClear)
		r.Post("/sanitize", s.handleSanitize)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// requestLogger logs one line per request with zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
