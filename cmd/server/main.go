package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fitreserve/mailroom/internal/api"
	"github.com/fitreserve/mailroom/internal/breaker"
	"github.com/fitreserve/mailroom/internal/config"
	"github.com/fitreserve/mailroom/internal/db"
	"github.com/fitreserve/mailroom/internal/gate"
	"github.com/fitreserve/mailroom/internal/metrics"
	"github.com/fitreserve/mailroom/internal/observ"
	"github.com/fitreserve/mailroom/internal/queue"
	"github.com/fitreserve/mailroom/internal/redis"
	"github.com/fitreserve/mailroom/internal/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting mailroom server",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("mail_provider", cfg.MailProvider),
	)

	// Initialize database connection
	ctx := context.Background()
	dbConfig := db.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		Database: cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}

	database, err := db.New(ctx, dbConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	logger.Info("database connection established",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName),
	)

	// Initialize repository
	repo := db.NewRepository(database, logger)

	// Initialize Redis for idempotency and rate limiting
	redisConfig := redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	redisClient, err := redis.New(ctx, redisConfig, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var idempotencyService *redis.IdempotencyService
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		idempotencyService = redis.NewIdempotencyService(redisClient, logger)
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimitPerMinute,
			Window: 1 * time.Minute,
		})
		defer redisClient.Close()
	}

	// Build the configured mail transport
	mailTransport, err := buildTransport(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create mail transport: %w", err)
	}

	// Wrap with circuit breaker so a dead provider fails fast
	cb := breaker.New(breaker.DefaultConfig(mailTransport.Name()), logger)
	protected := breaker.NewProtectedTransport(mailTransport, cb, logger)

	logger.Info("mail transport initialized",
		zap.String("provider", mailTransport.Name()),
	)

	// Queue processor and background worker
	processor := queue.NewProcessor(repo, protected, queue.ProcessorConfig{
		BatchSize:   cfg.BatchSize,
		BaseDelay:   time.Duration(cfg.BaseRetryMinutes) * time.Minute,
		SendTimeout: time.Duration(cfg.SendTimeoutSeconds) * time.Second,
		SendRate:    rate.Limit(cfg.SendRatePerSecond),
	}, logger)

	worker := queue.NewWorker(processor, time.Duration(cfg.PollIntervalSeconds)*time.Second, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	go worker.Start(workerCtx)

	logger.Info("background worker started",
		zap.Int("poll_interval_seconds", cfg.PollIntervalSeconds),
		zap.Int("batch_size", cfg.BatchSize),
	)

	// High priority enqueues nudge the worker; a separate deployment can
	// point PROCESS_URL at another instance's process endpoint instead.
	var trigger queue.Trigger
	if cfg.ProcessURL != "" {
		trigger = queue.NewHTTPTrigger(cfg.ProcessURL, logger)
	} else {
		trigger = queue.NewWorkerTrigger(worker)
	}

	// Enqueue service with the preference gate in front
	checker := gate.New(repo, logger)
	enqueueService := queue.NewService(repo, checker, trigger, mailTransport.Name(), logger)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	// Custom logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration_ms", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	})

	// API routes
	var handler *api.Handler
	if idempotencyService != nil {
		handler = api.NewHandlerWithIdempotency(logger, repo, enqueueService, trigger, idempotencyService)
	} else {
		handler = api.NewHandler(logger, repo, enqueueService, trigger)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Use(api.RateLimitMiddleware(rateLimiter, logger, api.IPKeyFunc))

		r.Post("/emails", handler.CreateEmail)
		r.Get("/emails", handler.ListEmails)
		r.Get("/emails/{id}", handler.GetEmail)
		r.Post("/emails/{id}/cancel", handler.CancelEmail)

		r.Post("/queue/process", handler.ProcessQueue)
		r.Get("/queue/stats", handler.QueueStats)
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := database.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("DB DOWN"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint
	r.Handle("/metrics", metrics.Handler())

	// Setup HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	// Listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		// Stop the worker first so in-flight sends finish before the pool closes
		workerCancel()

		// Give outstanding requests 10 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}

		logger.Info("server stopped gracefully")
	}

	return nil
}

// buildTransport selects the mail provider from config.
func buildTransport(ctx context.Context, cfg *config.Config, logger *zap.Logger) (transport.Transport, error) {
	switch cfg.MailProvider {
	case "ses":
		return transport.NewSESTransport(ctx, transport.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
	case "resend":
		return transport.NewResendTransport(transport.ResendConfig{
			APIKey:    cfg.ResendAPIKey,
			FromEmail: cfg.ResendFromEmail,
			FromName:  cfg.ResendFromName,
		}, logger), nil
	case "smtp":
		return transport.NewSMTPTransport(transport.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger), nil
	case "log":
		return transport.NewLogTransport(logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider: %s", cfg.MailProvider)
	}
}
