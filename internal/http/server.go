package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "budgetbee/internal/log"
	"budgetbee/internal/middleware/ratelimit"
	"budgetbee/internal/middleware/security"
	"budgetbee/internal/middleware/trace"
	"budgetbee/internal/services"
)

// Services are the use cases the ledger server exposes.
type Services struct {
	Transactions *services.TransactionService
	Budgets      *services.BudgetService
	Categories   *services.CategoryService
	Accounts     *services.AccountService
}

// Options tune the server. Zero values pick defaults.
type Options struct {
	RequestsPerMinute int
	TrustedProxies    []string
	Logger            *applog.Logger
	// Ready reports whether dependencies are reachable; nil means always ready.
	Ready func(ctx context.Context) error
}

// Server is the ledger HTTP server.
type Server struct {
	http.Server
	transactions *services.TransactionService
	budgets      *services.BudgetService
	categories   *services.CategoryService
	accounts     *services.AccountService
	ready        func(ctx context.Context) error

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	logger   *applog.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, svc Services, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector(logger.Slog())
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		transactions: svc.Transactions,
		budgets:      svc.Budgets,
		categories:   svc.Categories,
		accounts:     svc.Accounts,
		ready:        opts.Ready,
		limiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector:     detector,
		tracer:       trace.NewMiddleware(detector.ExtractClientIP, logger.Slog()),
		logger:       logger,
		now:          time.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /budget/spent", s.handleBudgetSpent)
	mux.HandleFunc("POST /budget/save", s.handleBudgetSave)
	mux.HandleFunc("GET /budget/snapshot", s.handleBudgetSnapshot)

	mux.HandleFunc("POST /transaction/add", s.handleTransactionAdd)
	mux.HandleFunc("POST /transaction/edit/{id}", s.handleTransactionEdit)
	mux.HandleFunc("POST /transaction/delete/{id}", s.handleTransactionDelete)
	mux.HandleFunc("GET /transactions", s.handleTransactionList)

	mux.HandleFunc("GET /categories", s.handleCategoryList)
	mux.HandleFunc("POST /category/add", s.handleCategoryAdd)
	mux.HandleFunc("POST /category/edit/{id}", s.handleCategoryEdit)
	mux.HandleFunc("POST /category/delete/{id}", s.handleCategoryDelete)

	mux.HandleFunc("GET /accounts", s.handleAccountList)
	mux.HandleFunc("POST /account/add", s.handleAccountAdd)
	mux.HandleFunc("POST /account/edit/{id}", s.handleAccountEdit)
	mux.HandleFunc("POST /account/delete/{id}", s.handleAccountDelete)

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		TooManyRequestsError("Rate limit exceeded. Please try again later.").Write(w)
	}

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, onLimit, logger.Slog())(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)
	h = applog.Middleware(logger)(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics exposes request counters for the status log line.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
