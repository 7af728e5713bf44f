// Package httpapi exposes the file sharing services over HTTP with a chi
// router. Responses are JSON envelopes {"success": bool, "error": string, ...}
// except for downloads, which stream the file content.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/dmitrijs2005/fileshare/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Users is the identity provider used by the auth endpoints and middleware.
type Users interface {
	Register(ctx context.Context, username, password, email string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	ValidateBearerToken(ctx context.Context, token string) (int64, error)
}

// Files covers upload, download and management of stored files.
type Files interface {
	Upload(ctx context.Context, ownerID int64, originalName, contentType string, body io.Reader) (*models.File, error)
	Download(ctx context.Context, fileID int64, requester models.Requester) (*models.File, io.ReadCloser, error)
	DownloadShared(ctx context.Context, token string, requester models.Requester) (*models.File, io.ReadCloser, error)
	Info(ctx context.Context, fileID int64, requester models.Requester) (*models.File, error)
	ListOwn(ctx context.Context, ownerID int64) ([]*models.File, error)
	ListSharedWithMe(ctx context.Context, userID int64) ([]*models.SharedFile, error)
	SetPublic(ctx context.Context, fileID, ownerID int64, public bool) error
	Delete(ctx context.Context, fileID, ownerID int64) error
}

// Shares issues share tokens.
type Shares interface {
	Create(ctx context.Context, fileID, ownerID int64, recipientID *int64, ttl time.Duration) (*models.Share, error)
}

// Options tune the HTTP surface.
type Options struct {
	Addr           string
	CORSOrigin     string
	PublicBaseURL  string
	MaxUploadBytes int64
	// Health reports whether backing storage is reachable; nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	opts   Options
	users  Users
	files  Files
	shares Shares
	logger logging.Logger
	router chi.Router
}

func New(opts Options, users Users, files Files, shares Shares, logger logging.Logger) *Server {
	s := &Server{
		opts:   opts,
		users:  users,
		files:  files,
		shares: shares,
		logger: logger.With("module", "http_server"),
	}
	s.router = s.routes()
	return s
}

// handlerFunc is an http handler that reports failures by returning them.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) handle(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.fail(w, r, err)
		}
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.CleanPath)
	r.Use(metricsMiddleware)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors(s.opts.CORSOrigin))
	r.Use(s.identify)

	r.Get("/healthz", s.handle(s.handleHealth))
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/register", s.handle(s.handleRegister))
	r.Post("/login", s.handle(s.handleLogin))
	r.Post("/refresh", s.handle(s.handleRefresh))

	r.Get("/download/{id}", s.handle(s.handleDownload))
	r.Get("/files/{id}", s.handle(s.handleInfo))
	r.Get("/shared/{token}", s.handle(s.handleDownloadShared))

	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/upload", s.handle(s.handleUpload))
		r.Get("/files", s.handle(s.handleListFiles))
		r.Put("/files/{id}/public", s.handle(s.handleSetPublic))
		r.Delete("/files/{id}", s.handle(s.handleDelete))
		r.Post("/share", s.handle(s.handleShare))
		r.Get("/shared-with-me", s.handle(s.handleSharedWithMe))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	if s.opts.Health != nil {
		if err := s.opts.Health(r.Context()); err != nil {
			s.logger.Warn(r.Context(), "health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "unavailable")
			return nil
		}
	}
	writeJSON(w, http.StatusOK, envelope{"status": "ok"})
	return nil
}

// Run serves on opts.Addr until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	listen, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen, shutdownTimeout)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
		errCh <- srv.Serve(listen)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
