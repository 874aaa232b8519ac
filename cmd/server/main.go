package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subscription-sync/internal/api"
	"subscription-sync/internal/config"
	"subscription-sync/internal/database"
	"subscription-sync/internal/services"
	"subscription-sync/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	if err := config.InitConfig(); err != nil {
		log.Fatal("Failed to initialize config:", err)
	}
	cfg := config.AppConfig

	// Initialize logging
	logging.InitLogging()
	if cfg.Mode == gin.DebugMode {
		logging.EnableDebug()
	}

	// Initialize database
	if err := database.InitDatabase(); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.CloseDatabase()

	h, cleanup, err := buildHandler(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to initialize services:", err)
	}
	defer cleanup()

	if cfg.APIKey == "" {
		logging.Warnf("API_KEY is not set, /api routes are unauthenticated")
	}

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()

	// Setup routes
	api.SetupRoutes(r, h, cfg.APIKey)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	logging.Infof("Starting server on port %s", cfg.Port)

	if err := run(ctx, srv, 15*time.Second); err != nil {
		logging.Errorf("Server stopped: %v", err)
	}
	// deferred: cleanup waits for pending remote notifications, then connections close
}

// run serves until ctx is done, then shuts srv down gracefully.
func run(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Infof("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		runErr = <-errCh
	case runErr = <-errCh:
	}

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) {
		return runErr
	}
	return nil
}

func buildHandler(ctx context.Context, cfg *config.Config) (*api.Handler, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	redisClient := database.GetRedis()

	var store services.StateStore
	switch cfg.StateBackend {
	case "redis":
		store = database.NewRedisStateStore(redisClient)
	default:
		store = database.NewSQLStateStore(database.GetDB())
	}
	logging.Infof("Subscription state backend: %s", cfg.StateBackend)

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}

	var (
		priceCache services.PriceCache
		dedup      services.TransactionDeduper
	)
	dedupTTL := time.Duration(cfg.TransactionDedupHours) * time.Hour
	if redisClient != nil {
		rs := services.NewRedisService(redisClient, dedupTTL)
		priceCache, dedup = rs, rs
	} else {
		guard := services.NewTransactionGuard(dedupTTL)
		cleanups = append(cleanups, guard.Stop)
		dedup = guard
	}

	products := services.NewProductService(
		cfg.WeeklyProductID,
		cfg.MonthlyProductID,
		services.StaticCatalog{cfg.WeeklyProductID: cfg.WeeklyPrice, cfg.MonthlyProductID: cfg.MonthlyPrice},
		priceCache,
		time.Duration(cfg.ProductCacheMinutes)*time.Minute,
	)

	opts := []services.ReconcilerOption{services.WithPlanNamer(products)}
	if cfg.BrevoAPIKey != "" && cfg.BrevoFromEmail != "" {
		opts = append(opts, services.WithStatusMailer(services.NewBrevoMailer(cfg.BrevoAPIKey, cfg.BrevoFromEmail, cfg.BrevoFromName)))
		logging.Infof("Status emails enabled via Brevo")
	}
	reconciler := services.NewReconciler(store, notifier, opts...)
	cleanups = append(cleanups, reconciler.Wait)

	verifier := services.NewAppStoreVerifier(cfg.AppStoreSharedSecret, cfg.AppStoreSandbox)
	purchases := services.NewPurchaseService(verifier, services.NewReceiptInterpreter(), reconciler, dedup, cfg.VerifyTimeout)

	return &api.Handler{
		Purchases:  purchases,
		Reconciler: reconciler,
		Products:   products,
	}, cleanup, nil
}

func buildNotifier(ctx context.Context, cfg *config.Config) (services.RemoteNotifier, error) {
	var next services.RemoteNotifier

	switch cfg.Notifier {
	case "firebase":
		fn, err := services.NewFirebaseNotifier(ctx, cfg.FirebaseDatabaseURL, cfg.FirebaseCredentials, cfg.FirebaseUsersPath)
		if err != nil {
			return nil, err
		}
		next = fn
	case "webhook":
		next = services.NewWebhookNotifier(cfg.WebhookCallbackURL, cfg.WebhookSecret)
	default:
		logging.Infof("Remote profile sync disabled")
		return nil, nil
	}

	logging.Infof("Remote profile sync via %s, max retries: %d", cfg.Notifier, cfg.NotifyMaxRetries)
	return services.NewRetryingNotifier(next, cfg.NotifyMaxRetries, cfg.NotifyInitialInterval), nil
}
