// Package http exposes the budget aggregation engine and the write-side
// services as a JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"budgetsmart/internal/aggregate"
	"budgetsmart/internal/log"
	"budgetsmart/internal/middleware/ratelimit"
	"budgetsmart/internal/middleware/security"
	"budgetsmart/internal/middleware/trace"
	"budgetsmart/internal/sequence"
	"budgetsmart/internal/services"
)

// UserIDHeader carries the caller identity. Authentication happens upstream.
const UserIDHeader = "X-User-ID"

// Deps are the collaborators served by the API.
type Deps struct {
	Engine       *aggregate.Engine
	Budgets      *services.BudgetService
	Categories   *services.CategoryService
	Transactions *services.TransactionService
	Users        *services.UserService
	Guard        *sequence.Guard
	// Ready reports backend readiness for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *log.Logger
}

type Options struct {
	RequestTimeout     time.Duration
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	deps     Deps
	opts     Options
	logger   *log.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// userHandler serves a request on behalf of an identified user.
type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	if deps.Logger == nil {
		deps.Logger = log.Discard()
	}
	if deps.Guard == nil {
		deps.Guard = sequence.NewGuard(sequence.NewMemory(), deps.Logger)
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}

	detector := security.NewDetector()
	s := &Server{
		deps:     deps,
		opts:     opts,
		logger:   deps.Logger.WithComponent(log.ComponentHTTP),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("GET /api/budgets/status", s.api(s.handleBudgetStatus))
	mux.Handle("PUT /api/budgets", s.api(s.handleSaveBudget))
	mux.Handle("DELETE /api/budgets/{id}", s.api(s.handleDeleteBudget))

	mux.Handle("GET /api/summary", s.api(s.handleSummary))

	mux.Handle("GET /api/reports", s.api(s.handleReport))
	mux.Handle("GET /api/reports/export", s.api(s.handleReportExport))

	mux.Handle("GET /api/transactions", s.api(s.handleListTransactions))
	mux.Handle("POST /api/transactions", s.api(s.handleCreateTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.api(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.api(s.handleDeleteTransaction))

	mux.Handle("GET /api/categories", s.api(s.handleListCategories))
	mux.Handle("POST /api/categories", s.api(s.handleCreateCategory))
	mux.Handle("PUT /api/categories/{id}", s.api(s.handleUpdateCategory))
	mux.Handle("DELETE /api/categories/{id}", s.api(s.handleDeleteCategory))

	mux.Handle("GET /api/users/me", s.api(s.handleGetUser))
	mux.Handle("PUT /api/users/me", s.api(s.handleUpdateUser))

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(deps.Logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// api wraps an authenticated JSON endpoint with the per-user rate limit and
// the request timeout.
func (s *Server) api(next userHandler) http.Handler {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := userIDFrom(r)
		if userID == "" {
			writeErrorBody(w, http.StatusUnauthorized, "missing "+UserIDHeader+" header", nil)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
		defer cancel()
		next(w, r.WithContext(ctx), userID)
	})
	return s.limiter.Middleware(s.rateKey, s.onRateLimit)(h)
}

// rateKey buckets identified callers by user and anonymous ones by address.
func (s *Server) rateKey(r *http.Request) string {
	if id := userIDFrom(r); id != "" {
		return "user:" + id
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldPath, r.URL.Path,
		"retry_after", retryAfter.String())
	writeErrorBody(w, http.StatusTooManyRequests, "rate limit exceeded", nil)
}

func userIDFrom(r *http.Request) string {
	id := sanitizeInput(r.Header.Get(UserIDHeader))
	if len(id) > 128 || strings.ContainsAny(id, "/:") {
		return ""
	}
	return id
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("HTTP server listening", "addr", s.Addr)
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
