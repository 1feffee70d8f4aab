package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whatprice-backend/config"
	"whatprice-backend/internal/delivery/http/middleware"
	v1 "whatprice-backend/internal/delivery/http/v1"
	"whatprice-backend/internal/infrastructure/cache"
	"whatprice-backend/internal/repository/pgrepo"
	"whatprice-backend/internal/usecase"
	"whatprice-backend/pkg/logger"
	"whatprice-backend/pkg/storage"
	"whatprice-backend/pkg/utils"

	"github.com/NYTimes/gziphandler"
	"golang.org/x/time/rate"
)

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	// Initialize Logger
	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	// Initialize Database
	pgxPool, err := pgrepo.NewPgxPool(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	log.Info().Msg("Successfully connected to PostgreSQL via pgx")

	// Initialize Repositories
	vendorRepo := pgrepo.NewVendorRepository(pgxPool)
	viewRepo := pgrepo.NewViewRepository(pgxPool)
	transactionRepo := pgrepo.NewTransactionRepository(pgxPool)
	metricsRepo := pgrepo.NewMetricsRepository(pgxPool)
	productRepo := pgrepo.NewProductRepository(pgxPool)
	txManager := pgrepo.NewTransactionManager(pgxPool)

	// Initialize Cache (In-Memory)
	// Default expiration 5m, cleanup every 15m
	memCache := cache.NewMemoryCache(cfg.CacheVendorTTL, 15*time.Minute)

	// --- Statement Storage (R2) ---
	// Optional: without credentials the portal simply has no export.
	var uploader usecase.StatementUploader
	if cfg.R2AccountID != "" {
		r2Storage, err := storage.NewR2Storage(
			context.Background(),
			cfg.R2AccountID,
			cfg.R2AccessKeyID,
			cfg.R2AccessKeySecret,
			cfg.R2BucketName,
			cfg.R2PublicURL,
			cfg.R2UploadTimeout,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize R2 Storage")
		}
		uploader = r2Storage
	} else {
		log.Warn().Msg("R2 not configured, statement export disabled")
	}

	// Set up Router
	mux := http.NewServeMux()

	// --- Modules Initialization ---

	// Billing Module (CPV charging)
	billingUC := usecase.NewBillingUsecase(vendorRepo, viewRepo, transactionRepo, txManager, memCache, uploader)

	// Tracking Module (view qualification engine); charges on qualify
	trackingUC := usecase.NewTrackingUsecase(viewRepo, productRepo, memCache, billingUC)
	trackingHandler := v1.NewTrackingHandler(trackingUC)

	// Metrics Module (daily rollups + retention purge)
	metricsUC := usecase.NewMetricsUsecase(metricsRepo, viewRepo, memCache, cfg.ViewRetention, cfg.CacheMetricsTTL)

	vendorBillingHandler := v1.NewVendorBillingHandler(billingUC, metricsUC)
	adminBillingHandler := v1.NewAdminBillingHandler(billingUC, metricsUC, vendorRepo)

	// Tracking (Public)
	mux.HandleFunc("POST /api/v1/track/view", trackingHandler.RecordView)
	mux.HandleFunc("POST /api/v1/track/qualify", trackingHandler.QualifyView)
	mux.HandleFunc("POST /api/v1/track/click", trackingHandler.RecordContactClick)

	// Vendor Portal (Protected)
	vendorMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.VendorMiddleware(h))
	}

	mux.Handle("GET /api/v1/vendor/billing/balance", vendorMiddleware(vendorBillingHandler.GetBalance))
	mux.Handle("GET /api/v1/vendor/billing/transactions", vendorMiddleware(vendorBillingHandler.ListTransactions))
	mux.Handle("PUT /api/v1/vendor/billing/settings", vendorMiddleware(vendorBillingHandler.UpdateSettings))
	mux.Handle("POST /api/v1/vendor/billing/purchase", vendorMiddleware(vendorBillingHandler.PurchaseCredits))
	mux.Handle("POST /api/v1/vendor/billing/statement", vendorMiddleware(vendorBillingHandler.ExportStatement))
	mux.Handle("GET /api/v1/vendor/metrics/daily", vendorMiddleware(vendorBillingHandler.GetDailyMetrics))

	// Admin (Protected)
	adminMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(h))
	}

	mux.Handle("GET /api/v1/admin/billing/vendors", adminMiddleware(adminBillingHandler.ListVendors))
	mux.Handle("POST /api/v1/admin/billing/vendors/{id}/bonus", adminMiddleware(adminBillingHandler.GrantBonus))
	mux.Handle("POST /api/v1/admin/billing/vendors/{id}/adjustment", adminMiddleware(adminBillingHandler.Adjust))
	mux.Handle("GET /api/v1/admin/billing/vendors/{id}/transactions", adminMiddleware(adminBillingHandler.ListVendorTransactions))
	mux.Handle("POST /api/v1/admin/billing/transactions/{id}/refund", adminMiddleware(adminBillingHandler.RefundTransaction))
	mux.Handle("GET /api/v1/admin/billing/stats", adminMiddleware(adminBillingHandler.GetPlatformStats))

	// Health Check
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok", "db": "connected"}`))
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // Support root health check for Load Balancers

	addr := fmt.Sprintf(":%s", cfg.Port)

	// Initialize Rate Limiter with lifecycle management
	rateLimiter := middleware.NewRateLimiter(
		context.Background(),
		rate.Limit(cfg.RateLimitPerSecond),
		cfg.RateLimitBurst,
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	// Apply CORS (with config injection), Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(handler)
	handler = rateLimiter.Middleware()(handler)
	handler = gziphandler.GzipHandler(handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Background aggregator: hourly rollups, daily retention purge
	aggCtx, aggCancel := context.WithCancel(context.Background())
	go metricsUC.Run(aggCtx, cfg.RollupInterval, cfg.PurgeInterval)

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	log.Info().Msgf("Server starting on %s", addr)

	// Wait for interrupt signal via channel
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	// Stop background goroutines before closing the listener
	aggCancel()
	rateLimiter.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	pgxPool.Close()
	log.Info().Msg("Server exited properly")
}
