package router

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/shekshuev/athena-backend/internal/account"
	"github.com/shekshuev/athena-backend/internal/auth"
	"github.com/shekshuev/athena-backend/internal/profile"
	"github.com/shekshuev/athena-backend/pkg/metrics"
	"github.com/shekshuev/athena-backend/pkg/utilities"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request at debug level, tags it with an
// X-Request-ID and records its latency.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = utilities.NewSnowflakeID()
			}
			w.Header().Set("X-Request-ID", reqID)

			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			metrics.APILatency.WithLabelValues(r.Method, path, strconv.Itoa(status)).Observe(dur.Seconds())
			logger.Debugw("http request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Cache-Control", "no-store")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			}
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator validates bearer access tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*auth.Claims, error)
}

// BearerMiddleware rejects requests without a valid access token and stores
// the claims for auth.ClaimsFromContext.
func BearerMiddleware(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
				unauthorized(w)
				return
			}
			claims, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="athena"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

// Deps carries the handlers and services mounted by RegisterRoutes.
type Deps struct {
	Logger   *zap.SugaredLogger
	Auth     *auth.Handler
	Accounts *account.Handler
	Profiles *profile.Handler
	Authn    Authenticator
	// Ready reports datastore health; nil means always ready.
	Ready func(ctx context.Context) error
}

// RegisterRoutes mounts HTTP handlers on the standard library's http.ServeMux.
func RegisterRoutes(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				d.Logger.Warnw("health check failed", "err", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/auth/login", d.Auth.Login)
	mux.HandleFunc("POST /api/auth/refresh", d.Auth.Refresh)

	mux.HandleFunc("POST /api/accounts", d.Accounts.Register)
	bearer := BearerMiddleware(d.Authn)
	mux.Handle("GET /api/accounts", bearer(http.HandlerFunc(d.Accounts.List)))
	mux.Handle("GET /api/accounts/{id}", bearer(http.HandlerFunc(d.Accounts.Get)))
	mux.Handle("PATCH /api/accounts/{id}", bearer(http.HandlerFunc(d.Accounts.Update)))
	mux.Handle("DELETE /api/accounts/{id}", bearer(http.HandlerFunc(d.Accounts.Delete)))

	if d.Profiles != nil {
		mux.Handle("GET /api/accounts/{id}/profile", bearer(http.HandlerFunc(d.Profiles.List)))
		mux.Handle("POST /api/accounts/{id}/profile", bearer(http.HandlerFunc(d.Profiles.Create)))
		mux.Handle("GET /api/accounts/{id}/profile/{recordID}", bearer(http.HandlerFunc(d.Profiles.Get)))
		mux.Handle("PATCH /api/accounts/{id}/profile/{recordID}", bearer(http.HandlerFunc(d.Profiles.Update)))
		mux.Handle("DELETE /api/accounts/{id}/profile/{recordID}", bearer(http.HandlerFunc(d.Profiles.Delete)))
	}

	return LoggingMiddleware(d.Logger)(SecurityHeadersMiddleware()(mux))
}
