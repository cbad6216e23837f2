package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clearroute/payment-core/internal/application/services"
	"github.com/clearroute/payment-core/internal/config"
	"github.com/clearroute/payment-core/internal/infrastructure/bank"
	"github.com/clearroute/payment-core/internal/infrastructure/persistence/postgres"
	"github.com/clearroute/payment-core/internal/infrastructure/vault"
	"github.com/clearroute/payment-core/internal/interfaces/rest"
	"github.com/clearroute/payment-core/internal/interfaces/rest/middleware"
	"github.com/clearroute/payment-core/internal/webhook"
	"github.com/clearroute/payment-core/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting payment core",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	encryptor, fingerprinter, err := buildVault(cfg.Vault)
	if err != nil {
		logger.Error("failed to initialize vault", "error", err)
		os.Exit(1)
	}

	tokenRepo := postgres.NewTokenRepository(db)
	authRepo := postgres.NewAuthorizationRepository(db)
	refundRepo := postgres.NewRefundRepository(db)
	idempotencyRepo := postgres.NewIdempotencyRepository(db)
	webhookRepo := postgres.NewWebhookRepository(db)

	bankClient := bank.NewBankClient(cfg.Bank)

	tokenService := services.NewTokenService(tokenRepo, encryptor, fingerprinter, logger)
	runner := services.NewIdempotencyRunner(idempotencyRepo, logger)
	emitter := services.NewEventEmitter(webhookRepo, logger)
	chargeService := services.NewChargeService(
		authRepo,
		refundRepo,
		tokenService,
		bankClient,
		encryptor,
		runner,
		emitter,
		services.NewFraudDetector(),
		logger,
	)
	endpointService := services.NewEndpointService(webhookRepo, logger)

	mux := http.NewServeMux()
	rest.NewHandlers(tokenService, chargeService, endpointService, logger).Routes(mux)

	handler := middleware.Chain(mux,
		middleware.Timeout(cfg.Server.ReadTimeout),
		middleware.Logging(logger),
		middleware.Recovery(logger),
	)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	dispatcher := webhook.NewDispatcher(webhookRepo, webhook.NewSigner(), logger, webhook.DispatcherConfig{
		Workers:         cfg.Webhook.Workers,
		PollInterval:    cfg.Webhook.PollInterval,
		DeliveryTimeout: cfg.Webhook.DeliveryTimeout,
		BatchSize:       cfg.Webhook.BatchSize,
	})
	expirationWorker := worker.NewExpirationWorker(authRepo, emitter, logger, cfg.Worker.Interval)
	tokenSweeper := worker.NewTokenSweeper(tokenRepo, logger, cfg.Worker.Interval)
	idempotencyPurger := worker.NewIdempotencyPurger(idempotencyRepo, logger, cfg.Worker.Interval)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go dispatcher.Run(workerCtx)
	go expirationWorker.Run(workerCtx)
	go tokenSweeper.Run(workerCtx)
	go idempotencyPurger.Run(workerCtx)

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}

func buildVault(cfg config.VaultConfig) (*vault.Encryptor, *vault.Fingerprinter, error) {
	key, err := hex.DecodeString(cfg.MasterKeyHex)
	if err != nil {
		return nil, nil, fmt.Errorf("decode master key: %w", err)
	}
	master, err := vault.NewLocalMasterKey(key)
	if err != nil {
		return nil, nil, err
	}
	return vault.NewEncryptor(master), vault.NewFingerprinter(cfg.FingerprintSalt), nil
}
