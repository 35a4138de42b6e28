package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/terescrow/ledger-service/internal/api/handlers"
	"github.com/terescrow/ledger-service/internal/api/routes"
	"github.com/terescrow/ledger-service/internal/domain/entities"
	"github.com/terescrow/ledger-service/internal/domain/services/history"
	"github.com/terescrow/ledger-service/internal/domain/services/ledger"
	"github.com/terescrow/ledger-service/internal/domain/services/orchestrator"
	"github.com/terescrow/ledger-service/internal/domain/services/rates"
	"github.com/terescrow/ledger-service/internal/domain/services/reconciler"
	"github.com/terescrow/ledger-service/internal/infrastructure/cache"
	"github.com/terescrow/ledger-service/internal/infrastructure/config"
	"github.com/terescrow/ledger-service/internal/infrastructure/database"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/chaingw"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/palmpay"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/reloadly"
	"github.com/terescrow/ledger-service/internal/infrastructure/providers/vtpass"
	"github.com/terescrow/ledger-service/internal/infrastructure/repositories"
	"github.com/terescrow/ledger-service/internal/workers/reconciliation"
	"github.com/terescrow/ledger-service/internal/workers/webhook_processor"
	"github.com/terescrow/ledger-service/pkg/logger"
	"github.com/terescrow/ledger-service/pkg/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("service exited with error", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	log.Info("database migrations applied")

	redisClient, err := cache.NewRedisClient(&cfg.Redis, log.Zap())
	if err != nil {
		// The rate cache is an optimization; the service degrades to DB
		// reads without it.
		log.Warn("redis unavailable, running without rate cache", "error", err)
		redisClient = nil
	}

	accountRepo := repositories.NewAccountRepository(db)
	transactionRepo := repositories.NewTransactionRepository(db)
	priceRepo := repositories.NewAssetPriceRepository(db)
	eventRepo := repositories.NewProviderEventRepository(db)
	giftcardRepo := repositories.NewGiftCardRepository(db)
	billpaymentRepo := repositories.NewBillPaymentRepository(db)
	userRepo := repositories.NewUserRepository(db)

	chainClient := chaingw.NewClient(cfg.ChainGateway, log)
	palmpayClient := palmpay.NewClient(cfg.PalmPay, log)
	reloadlyClient := reloadly.NewClient(cfg.Reloadly, log)
	vtpassClient := vtpass.NewClient(cfg.VTPass, log)

	rateService := rates.NewService(priceRepo, redisClient, &cfg.Ledger, log)
	ledgerService := ledger.NewService(accountRepo, log)
	orchestratorService := orchestrator.NewService(
		db, rateService, ledgerService, transactionRepo, accountRepo, userRepo,
		chainClient, &cfg.Ledger, log,
	)
	historyService := history.NewService(transactionRepo, giftcardRepo, billpaymentRepo, log)
	reconcilerService := reconciler.NewService(
		db, eventRepo, transactionRepo, giftcardRepo, billpaymentRepo,
		ledgerService, orchestratorService,
		map[string]string{
			entities.ProviderPalmPay:  cfg.PalmPay.WebhookSecret,
			entities.ProviderReloadly: cfg.Reloadly.WebhookSecret,
			entities.ProviderVTPass:   cfg.VTPass.WebhookSecret,
			entities.ProviderChain:    cfg.ChainGateway.WebhookSecret,
		},
		map[string]reconciler.StatusChecker{
			entities.ProviderPalmPay:  palmpayClient,
			entities.ProviderReloadly: reloadlyClient,
			entities.ProviderVTPass:   vtpassClient,
			entities.ProviderChain:    chainClient,
		},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reportPoolStats(ctx, db)

	processor := webhook_processor.NewProcessor(eventRepo, reconcilerService, &cfg.Workers, log)
	processor.Start(ctx)

	var scheduler *reconciliation.Scheduler
	if cfg.Reconciliation.Enabled {
		scheduler = reconciliation.NewScheduler(reconcilerService, &cfg.Reconciliation, log)
		if err := scheduler.Start(ctx); err != nil {
			return fmt.Errorf("reconciliation scheduler failed to start: %w", err)
		}
	}

	router := routes.Setup(
		cfg,
		handlers.NewTransactionHandler(orchestratorService, ledgerService, historyService, log),
		handlers.NewWebhookHandler(reconcilerService, log),
		handlers.NewUserHandler(userRepo, log),
		handlers.NewRateHandler(priceRepo, log),
		handlers.NewHealthHandler(db, redisClient),
		log,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", server.Addr, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", "error", err)
	}

	cancel()
	processor.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Info("shutdown complete")
	return nil
}

func reportPoolStats(ctx context.Context, db *sqlx.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
			metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
			metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		}
	}
}
