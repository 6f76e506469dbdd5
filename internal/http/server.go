// Package http is the JSON API surface: thin handlers over the storage
// gateway, bearer-token auth on everything under /api except /api/auth,
// and an LRU cache in front of the weekly summary computation.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"truckpay/internal/auth"
	"truckpay/internal/cache"
	"truckpay/internal/log"
	"truckpay/internal/middleware/ratelimit"
	"truckpay/internal/middleware/security"
	"truckpay/internal/middleware/trace"
	"truckpay/internal/storage"
)

// nowFunc is swapped in tests to pin the current week.
var nowFunc = time.Now

// Publisher sends load-change events to the sync pipeline. Nil disables
// the fast path; the sync queue scan still mirrors every change.
type Publisher interface {
	PublishLoadSync(ctx context.Context, userID string, loadID int64, operation string) error
}

type Server struct {
	http.Server

	store     *storage.Repository
	auth      *auth.Service
	publisher Publisher
	logger    *log.Logger

	limiter  *ratelimit.Limiter
	detector *security.Detector

	summaryCache *cache.LRUCache[SummaryResponse]
	cacheManager *cache.Manager

	shutdownOnce sync.Once
}

// Options tunes the non-essential server behavior. The zero value is valid.
type Options struct {
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
	AuthRateLimit    ratelimit.Config
}

func (o *Options) fill() {
	if o.SummaryCacheSize <= 0 {
		o.SummaryCacheSize = 256
	}
	if o.SummaryCacheTTL <= 0 {
		o.SummaryCacheTTL = 5 * time.Minute
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, store *storage.Repository, authSvc *auth.Service, publisher Publisher, logger *log.Logger, opts Options) *Server {
	opts.fill()

	s := &Server{
		store:        store,
		auth:         authSvc,
		publisher:    publisher,
		logger:       logger.WithComponent(log.ComponentHTTP),
		limiter:      ratelimit.NewLimiter(opts.AuthRateLimit),
		detector:     security.NewDetector(),
		summaryCache: cache.NewLRUCache[SummaryResponse](opts.SummaryCacheSize, opts.SummaryCacheTTL),
		cacheManager: cache.NewManager(),
	}
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	// Auth endpoints are public but rate limited per client IP.
	mux.Handle("POST /api/auth/signup", s.limiter.Middleware(http.HandlerFunc(s.handleSignup)))
	mux.Handle("POST /api/auth/login", s.limiter.Middleware(http.HandlerFunc(s.handleLogin)))

	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, authSvc.Middleware(h))
	}

	protected("GET /api/loads", s.handleListLoads)
	protected("POST /api/loads", s.handleCreateLoad)
	protected("PUT /api/loads/{id}", s.handleUpdateLoad)
	protected("DELETE /api/loads/{id}", s.handleDeleteLoad)

	protected("GET /api/deductions", s.handleListDeductions)
	protected("POST /api/deductions", s.handleCreateDeduction)
	protected("DELETE /api/deductions/{id}", s.handleDeleteDeduction)
	protected("PUT /api/deductions/{id}/fixed", s.handleSetDeductionFixed)
	protected("PUT /api/deductions/fixed/{type}", s.handleChangeFixedAmount)
	protected("GET /api/deductions/types", s.handleDeductionTypes)

	protected("GET /api/deductions/weekly", s.handleListWeeklyDeductions)
	protected("PUT /api/deductions/weekly", s.handleSaveWeeklyDeduction)

	protected("GET /api/deductions/extra", s.handleListExtraDeductions)
	protected("POST /api/deductions/extra", s.handleAddExtraDeduction)
	protected("PUT /api/deductions/extra/{id}", s.handleUpdateExtraDeduction)
	protected("DELETE /api/deductions/extra/{id}", s.handleDeleteExtraDeduction)

	protected("GET /api/mileage", s.handleGetMileage)
	protected("PUT /api/mileage", s.handleSaveMileage)

	protected("GET /api/expense-types", s.handleListExpenseTypes)
	protected("POST /api/expense-types", s.handleCreateExpenseType)
	protected("DELETE /api/expense-types/{id}", s.handleDeleteExpenseType)

	protected("GET /api/expenses", s.handleListExpenses)
	protected("POST /api/expenses", s.handleCreateExpense)
	protected("PUT /api/expenses/{id}", s.handleUpdateExpense)
	protected("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	protected("GET /api/profile", s.handleGetProfile)
	protected("PUT /api/profile", s.handleUpdateProfile)

	protected("GET /api/summary/week", s.handleWeekSummary)
	protected("GET /api/summary/range", s.handleRangeSummary)

	protected("GET /api/export", s.handleExport)
	protected("POST /api/import", s.handleImport)

	handler := trace.Middleware(
		log.Middleware(logger)(
			log.AccessLog(logger)(
				security.Headers(security.DefaultHeadersConfig())(
					s.detector.Middleware(mux)))))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops the HTTP server and the background cleanup goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		s.cacheManager.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidateSummaries drops every cached summary for the user. Called from
// each mutating handler so reads never serve stale totals.
func (s *Server) invalidateSummaries(userID string) {
	s.summaryCache.DeletePrefix("summary:" + userID + ":")
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
