// Package api exposes the trademark service over HTTP, Server-Sent Events and WebSocket.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dontdude/markcheck/internal/domain"
	"github.com/dontdude/markcheck/internal/platform/web"
	"github.com/dontdude/markcheck/internal/trademark"
)

// Config tunes the HTTP surface.
type Config struct {
	AllowedOrigin  string
	MaxUploadBytes int64
	SSEKeepAlive   time.Duration
}

// Health reports dependency status for /healthz.
type Health struct {
	BrokerState func() domain.BrokerState
	// StorePing is optional; nil means the store needs no check.
	StorePing func(ctx context.Context) error
}

// Server holds the handler dependencies.
type Server struct {
	svc      *trademark.Service
	verifier domain.TokenVerifier
	limiter  *web.RateLimiter
	health   Health
	cfg      Config
}

// NewServer creates a Server. A nil limiter disables rate limiting.
func NewServer(svc *trademark.Service, verifier domain.TokenVerifier, limiter *web.RateLimiter, health Health, cfg Config) *Server {
	if cfg.AllowedOrigin == "" {
		cfg.AllowedOrigin = "*"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	if cfg.SSEKeepAlive <= 0 {
		cfg.SSEKeepAlive = 15 * time.Second
	}
	return &Server{svc: svc, verifier: verifier, limiter: limiter, health: health, cfg: cfg}
}

// Handler returns the routed handler wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	submit := s.handleSubmit()
	if s.limiter != nil {
		submit = s.limiter.Middleware(submit)
	}
	mux.HandleFunc("POST /api/trademarks", s.authenticate(false, submit))
	mux.HandleFunc("GET /api/trademarks", s.authenticate(false, s.handleHistory()))
	mux.HandleFunc("GET /api/trademarks/results", s.authenticate(true, s.handleSSE()))
	mux.HandleFunc("GET /api/trademarks/ws", s.authenticate(true, s.handleWS()))

	mux.HandleFunc("POST /api/users/signup", s.authenticate(false, s.handleSignup()))
	mux.HandleFunc("GET /api/users/me", s.authenticate(false, s.handleMe()))

	mux.HandleFunc("GET /healthz", s.handleHealth())

	return enableCORS(s.cfg.AllowedOrigin, mux)
}

// RateLimitKey limits authenticated callers by owner key and everyone else by IP.
func RateLimitKey(r *http.Request) string {
	if id, ok := IdentityFrom(r.Context()); ok {
		return "owner:" + id.OwnerKey
	}
	return "ip:" + web.ClientIP(r)
}

// enableCORS adds headers to allow requests from the frontend.
func enableCORS(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		body := map[string]string{"broker": "unknown", "store": "ok"}

		if s.health.BrokerState != nil {
			state := s.health.BrokerState()
			body["broker"] = state.String()
			if state != domain.BrokerConnected {
				status = http.StatusServiceUnavailable
			}
		}
		if s.health.StorePing != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := s.health.StorePing(ctx); err != nil {
				slog.Warn("Store health check failed", "error", err)
				body["store"] = "unavailable"
				status = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
