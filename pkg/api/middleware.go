package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/psantana5/ytconvert/pkg/auth"
	"github.com/psantana5/ytconvert/pkg/logging"
	"github.com/psantana5/ytconvert/pkg/metrics"
	"github.com/psantana5/ytconvert/pkg/ratelimit"
	"github.com/psantana5/ytconvert/pkg/tracing"
)

// RequestIDMiddleware tags every request with a fresh X-Request-ID. The
// same id names the conversion session and its history record.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// AccessLogMiddleware logs one line per request once the handler returns
// or aborts
func AccessLogMiddleware(logger *logging.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			defer func() {
				logger.Info("request", logging.Fields{
					"request_id":  RequestIDFromContext(r.Context()),
					"method":      r.Method,
					"path":        r.URL.Path,
					"status":      rw.statusCode,
					"bytes":       rw.bytes,
					"duration_ms": time.Since(start).Milliseconds(),
					"remote":      ratelimit.IPKeyFunc(r),
				})
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func (rw *loggingResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

func (rw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RouterOptions selects the optional layers of the router
type RouterOptions struct {
	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Tracing *tracing.Provider
	Auth    *auth.KeyAuthenticator
	Limiter *ratelimit.Limiter

	// TrustProxy keys the limiter on X-Forwarded-For
	TrustProxy bool

	// ServeMetrics mounts /metrics on this router
	ServeMetrics bool
}

// NewRouter builds the API router with its middleware chain
func NewRouter(h *Handler, opts RouterOptions) *mux.Router {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	r := mux.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(AccessLogMiddleware(logger.WithField("component", "http")))
	if opts.Tracing != nil {
		r.Use(tracing.HTTPMiddleware(opts.Tracing))
	}
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	if opts.Auth != nil {
		r.Use(opts.Auth.Middleware)
	}

	var limit func(http.Handler) http.Handler
	if opts.Limiter != nil {
		key := ratelimit.KeyFunc(ratelimit.IPKeyFunc)
		if opts.TrustProxy {
			key = ratelimit.ForwardedIPKeyFunc
		}
		// only an authenticated token is a client identity
		if opts.Auth != nil {
			key = ratelimit.APIKeyFunc(key)
		}
		limit = opts.Limiter.Middleware(key)
	}
	h.RegisterRoutes(r, limit)

	if opts.ServeMetrics && opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics.Handler()).Methods("GET")
	}
	return r
}
