// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/khanyab/applyflow/internal/auth"
	"github.com/khanyab/applyflow/internal/config"
	"github.com/khanyab/applyflow/internal/entitlement"
	"github.com/khanyab/applyflow/internal/idgen"
	"github.com/khanyab/applyflow/internal/logging"
	"github.com/khanyab/applyflow/internal/metrics"
	"github.com/khanyab/applyflow/internal/plans"
	"github.com/khanyab/applyflow/internal/quota"
	"github.com/khanyab/applyflow/internal/ratelimit"
	"github.com/khanyab/applyflow/internal/retry"
	"github.com/khanyab/applyflow/internal/security"
	"github.com/khanyab/applyflow/internal/subscription"
	"github.com/khanyab/applyflow/internal/traces"
	"github.com/khanyab/applyflow/internal/validation"
	"github.com/khanyab/applyflow/internal/webhook"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	catalog        *plans.Catalog
	quotaLedger    *quota.Ledger
	machine        *subscription.Machine
	entitlements   *entitlement.Service
	reconciler     *webhook.Reconciler
	sweeper        *webhook.Sweeper
	rateLimiter    *ratelimit.Limiter
	db             *sql.DB // nil if using in-memory
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	tracesShutdown func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, cfg.LogFmt),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.catalog = plans.New(map[plans.ID]int{
		plans.Free:      cfg.FreeMonthlyQuota,
		plans.Pro:       cfg.ProMonthlyQuota,
		plans.Executive: cfg.ExecutiveMonthlyQuota,
	})

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		quotaStore   quota.Store
		subStore     subscription.Store
		webhookStore webhook.Store
	)
	if cfg.DatabaseURL != "" {
		ctx := context.Background()

		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// The database may still be coming up when the service boots
		if err := retry.Do(ctx, 5, time.Second, db.Ping); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		qs := quota.NewPostgresStore(db)
		if err := qs.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate quota store", "error", err)
		}
		quotaStore = qs

		ss := subscription.NewPostgresStore(db)
		if err := ss.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate subscription store", "error", err)
		}
		subStore = ss

		ws := webhook.NewPostgresStore(db)
		if err := ws.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate webhook store", "error", err)
		}
		webhookStore = ws
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		quotaStore = quota.NewMemoryStore()
		subStore = subscription.NewMemoryStore()
		webhookStore = webhook.NewMemoryStore()
	}

	s.quotaLedger = quota.New(quotaStore)
	s.machine = subscription.NewMachine(subStore, s.catalog, s.quotaLedger)
	s.entitlements = entitlement.NewService(s.catalog, s.machine, s.quotaLedger)

	// Webhook adapters for whichever providers are configured
	var adapters []webhook.Adapter
	if cfg.YocoWebhookSecret != "" {
		yoco, err := webhook.NewYocoAdapter(cfg.YocoWebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid yoco webhook secret: %w", err)
		}
		adapters = append(adapters, yoco)
		s.logger.Info("yoco webhooks enabled")
	}
	if cfg.PaystackSecretKey != "" {
		adapters = append(adapters, webhook.NewPaystackAdapter(cfg.PaystackSecretKey))
		s.logger.Info("paystack webhooks enabled")
	}
	if cfg.StripeWebhookSecret != "" {
		adapters = append(adapters, webhook.NewStripeAdapter(cfg.StripeWebhookSecret))
		s.logger.Info("stripe webhooks enabled")
	}
	if len(adapters) == 0 {
		s.logger.Warn("no webhook provider secrets configured, billing events disabled")
	}

	s.reconciler = webhook.NewReconciler(webhookStore, s.machine, cfg.SweepMaxAttempts, adapters...)
	s.sweeper = webhook.NewSweeper(s.reconciler, cfg.SweepInterval, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS
	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(security.CORSMiddleware(origins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/api", s.infoHandler)

	entitlementHandler := entitlement.NewHandler(s.entitlements, s.catalog)
	webhookHandler := webhook.NewHandler(s.reconciler)

	// Provider webhooks authenticate by signature, not platform identity
	root := s.router.Group("")
	webhookHandler.RegisterRoutes(root)

	// V1 API group
	v1 := s.router.Group("/v1")

	// PUBLIC ROUTES (no identity required)
	entitlementHandler.RegisterPublicRoutes(v1)

	// PROTECTED ROUTES (require the gateway-verified X-User-ID header)
	protected := v1.Group("")
	protected.Use(auth.Middleware())
	entitlementHandler.RegisterProtectedRoutes(protected)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "in-memory"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v == "unhealthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "ApplyFlow Entitlements",
		"description": "Plan, quota, and subscription gating for the ApplyFlow platform",
		"version":     "0.1.0",
	})
}

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Cancellable context for background goroutines so Shutdown() can stop them
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Distributed tracing (no-op when endpoint unset)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start webhook sweeper
	go s.sweeper.Start(runCtx)

	// Sample DB pool stats into Prometheus
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.sweeper.Stop()
	s.logger.Info("webhook sweeper stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
