package ingest

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fleet-sentinel/internal/config"
)

// WithMiddleware wraps handler with recovery, authentication, rate
// limiting, security headers and request logging. limiter may be nil.
func WithMiddleware(handler http.Handler, cfg *config.Config, limiter *RateLimiter, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	// Last applied runs first.
	h := handler

	if cfg.Auth.Enabled {
		h = authMiddleware(h, cfg.Auth)
	}

	if limiter != nil {
		h = rateLimitMiddleware(h, limiter, logger)
	}

	if cfg.Server.SecurityHeaders {
		h = securityHeadersMiddleware(h, cfg.Server.HSTSMaxAge)
	}

	h = loggingMiddleware(h, logger)

	// Outermost, so panics in every other layer are answered with JSON.
	return recoveryMiddleware(h, logger)
}

// securityHeadersMiddleware sets the headers relevant to a JSON API that is
// never rendered by a browser.
func securityHeadersMiddleware(next http.Handler, hstsMaxAge int) http.Handler {
	var hsts string
	if hstsMaxAge > 0 {
		hsts = fmt.Sprintf("max-age=%d; includeSubDomains", hstsMaxAge)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func authMiddleware(next http.Handler, authCfg config.AuthConfig) http.Handler {
	keys := make([][]byte, len(authCfg.APIKeys))
	for i, k := range authCfg.APIKeys {
		keys[i] = []byte(k)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get(authCfg.APIKeyHeader)
		if apiKey == "" {
			respondError(w, http.StatusUnauthorized, "missing API key", "")
			return
		}

		for _, k := range keys {
			if subtle.ConstantTimeCompare([]byte(apiKey), k) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}
		respondError(w, http.StatusUnauthorized, "invalid API key", "")
	})
}

func recoveryMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				respondError(w, http.StatusInternalServerError, "internal server error", "")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriter captures the status code written by the wrapped handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
