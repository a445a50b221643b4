// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package httpapi exposes the account and session flows as a JSON API under
// /api/users. Request bodies are checked against published JSON Schemas
// before they reach the auth package, which remains the authority on every
// business rule.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/samber/oops"

	"github.com/recipebox/recipebox/internal/auth"
	"github.com/recipebox/recipebox/pkg/errutil"
)

// AuthService is the slice of auth.Orchestrator the API needs.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (*auth.IssuedSession, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.IssuedSession, error)
	Logout(ctx context.Context, token string) error
	LogoutAll(ctx context.Context, token string) (int64, error)
	Me(ctx context.Context, token string) (*auth.Account, error)
	RequestReset(ctx context.Context, email string) error
	VerifyReset(ctx context.Context, email, code string) (bool, error)
	CompleteReset(ctx context.Context, in auth.CompleteResetInput) (*auth.IssuedSession, error)
}

var _ AuthService = (*auth.Orchestrator)(nil)

// Options configure the router. Recorder and Logger are optional.
type Options struct {
	Auth           AuthService
	Recorder       HTTPRecorder
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

type handler struct {
	auth AuthService
}

// NewRouter builds the API handler.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = nopHTTPRecorder{}
	}
	h := &handler{auth: opts.Auth}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(logger, recorder))
	r.Use(recoverer(logger))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Status: "error", Code: "NOT_FOUND", Message: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Status: "error", Code: "METHOD_NOT_ALLOWED", Message: "method not allowed"})
	})

	r.Get("/api/schemas/{name}", h.schema)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/", h.register)
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/password-reset/request", h.requestReset)
		r.Post("/password-reset/verify", h.verifyReset)
		r.Post("/password-reset/complete", h.completeReset)

		r.Group(func(r chi.Router) {
			r.Use(requireBearer)
			r.Post("/logout", h.logout)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/me", h.me)
		})
	})

	return r
}

// Server runs the API on its own listener.
type Server struct {
	addr       string
	handler    http.Handler
	cfg        ServerConfig
	listener   net.Listener
	httpServer *http.Server
	logger     *slog.Logger
	running    atomic.Bool
}

// ServerConfig holds the listener timeouts.
type ServerConfig struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewServer creates a Server for handler on addr.
func NewServer(addr string, handler http.Handler, cfg ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, handler: handler, cfg: cfg, logger: logger}
}

// Start begins serving. The returned channel receives a serve error, if
// any, and is closed when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("HTTP_ALREADY_RUNNING").Errorf("api server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("HTTP_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	httpSrv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errutil.LogError(s.logger, "api server error", serveErr)
			errCh <- serveErr
		}
	}()

	s.logger.Info("api server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop drains in-flight requests. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err)
	}
	s.logger.Info("api server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}
