package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/vbonduro/shopscan/internal/auth"
	"github.com/vbonduro/shopscan/internal/service"
	"github.com/vbonduro/shopscan/internal/session"
)

const defaultRequestTimeout = 15 * time.Second

type Server struct {
	shops          *service.ShopService
	auth           *auth.Provider
	sessions       *session.Manager
	mux            *http.ServeMux
	requestTimeout time.Duration
	logger         *slog.Logger
}

// NewServer builds the JSON API. requestTimeout bounds catalog and account
// calls made on behalf of a request; zero selects 15s.
func NewServer(shops *service.ShopService, authProvider *auth.Provider, sessions *session.Manager, requestTimeout time.Duration, logger *slog.Logger) *Server {
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}
	s := &Server{
		shops:          shops,
		auth:           authProvider,
		sessions:       sessions,
		mux:            http.NewServeMux(),
		requestTimeout: requestTimeout,
		logger:         logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /api/auth/signup", s.handleSignUp)
	s.mux.HandleFunc("POST /api/auth/signin", s.handleSignIn)
	s.mux.Handle("POST /api/auth/signout", s.requireAuth(s.handleSignOut))

	s.mux.Handle("GET /api/shop", s.requireAuth(s.handleGetShop))
	s.mux.Handle("GET /api/items", s.requireAuth(s.handleListItems))
	s.mux.Handle("POST /api/items", s.requireAuth(s.handleCreateItem))
	s.mux.Handle("PUT /api/items/{id}", s.requireAuth(s.handleUpdateItem))
	s.mux.Handle("DELETE /api/items/{id}", s.requireAuth(s.handleDeleteItem))
	s.mux.HandleFunc("GET /api/items/lookup", s.handleLookupItem)

	s.mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", s.handleStopSession)
	s.mux.HandleFunc("POST /api/sessions/{id}/frames", s.handlePushFrame)
	s.mux.HandleFunc("POST /api/sessions/{id}/codes", s.handleSubmitCode)
	s.mux.HandleFunc("GET /api/sessions/{id}/events", s.handleSessionEvents)
	s.mux.HandleFunc("POST /api/sessions/{id}/prompts/{promptID}", s.handleDecidePrompt)
	s.mux.HandleFunc("GET /api/sessions/{id}/snapshot", s.handleGetSnapshot)

	s.mux.HandleFunc("GET /api/sessions/{id}/cart", s.handleGetCart)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/cart", s.handleClearCart)
	s.mux.HandleFunc("DELETE /api/sessions/{id}/cart/{index}", s.handleRemoveCartEntry)
}

// securityHeaders sets browser hardening headers on every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.mux)).ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("shutting down server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.logger, http.StatusOK, map[string]any{"status": "ok", "sessions": s.sessions.Len()})
}
