// internal/api/middleware.go
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"admitbridge/internal/common/auth"
	"admitbridge/internal/common/logger"
	"admitbridge/internal/common/metrics"
	"admitbridge/internal/models"

	"github.com/go-chi/chi/v5"
)

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom returns the identity the auth middleware attached to the
// request context.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}

// Authenticate resolves the bearer token into an Identity and stores it in
// the request context. Requests without a valid token are rejected.
func Authenticate(resolver auth.Resolver, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}
			token := strings.TrimPrefix(header, "Bearer ")

			id, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				log.Warn("token resolution failed", map[string]interface{}{
					"path":  r.URL.Path,
					"error": err.Error(),
				})
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Metrics records request counts and latency per chi route pattern. The
// pattern keeps label cardinality bounded regardless of path parameters.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

// RequestLogger logs one line per request the way the job handlers log job
// completions.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.Info("request completed", map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"durationMs": time.Since(start).Milliseconds(),
			})
		})
	}
}
