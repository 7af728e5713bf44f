package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/fileshare/internal/common"
	"github.com/dmitrijs2005/fileshare/internal/logging"
	"github.com/dmitrijs2005/fileshare/internal/server/models"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const requesterKey ctxKey = "requester"

// requesterFrom returns the requester attached by the auth middleware, or
// an anonymous one.
func requesterFrom(ctx context.Context) models.Requester {
	if r, ok := ctx.Value(requesterKey).(models.Requester); ok {
		return r
	}
	return models.Anonymous()
}

// currentUserID is the authenticated user; only valid behind requireUser.
func currentUserID(r *http.Request) int64 {
	id, _ := requesterFrom(r.Context()).UserID()
	return id
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	n := len(common.BearerPrefix)
	if len(h) > n && strings.EqualFold(h[:n], common.BearerPrefix) {
		return strings.TrimSpace(h[n:])
	}
	return ""
}

// identify resolves the bearer token, if any, into a requester. Every
// request passes through it; a bad token leaves the request anonymous.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requester := models.Anonymous()
		if token := bearerToken(r); token != "" {
			id, err := s.users.ValidateBearerToken(r.Context(), token)
			if err != nil {
				s.logger.Debug(r.Context(), "bearer token rejected", "error", err)
			} else {
				requester = models.AuthenticatedUser(id)
			}
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requesterKey, requester)))
	})
}

// requireUser rejects anonymous requests with 401.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requesterFrom(r.Context()).IsAnonymous() {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Filename")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Max-Age", "86400")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// statusWriter records the status code and body size for logging and metrics.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// requestLogger logs one line per request; 4xx at warn, 5xx at error.
func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start),
				"bytes", sw.written,
				"request_id", middleware.GetReqID(r.Context()),
			}
			switch {
			case sw.status >= 500:
				logger.Error(r.Context(), "http request", args...)
			case sw.status >= 400:
				logger.Warn(r.Context(), "http request", args...)
			default:
				logger.Info(r.Context(), "http request", args...)
			}
		})
	}
}
