package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/cors"

	"github.com/RezaTaheri01/telegram-store-bot/internal/config"
	"github.com/RezaTaheri01/telegram-store-bot/internal/database"
	"github.com/RezaTaheri01/telegram-store-bot/internal/dedup"
	"github.com/RezaTaheri01/telegram-store-bot/internal/feed"
	"github.com/RezaTaheri01/telegram-store-bot/internal/handlers"
	"github.com/RezaTaheri01/telegram-store-bot/internal/ledger"
	"github.com/RezaTaheri01/telegram-store-bot/internal/middleware"
	"github.com/RezaTaheri01/telegram-store-bot/internal/models"
	"github.com/RezaTaheri01/telegram-store-bot/internal/notify"
	"github.com/RezaTaheri01/telegram-store-bot/internal/payments"
	"github.com/RezaTaheri01/telegram-store-bot/internal/price"
	"github.com/RezaTaheri01/telegram-store-bot/internal/repository"
	"github.com/RezaTaheri01/telegram-store-bot/internal/router"
	"github.com/RezaTaheri01/telegram-store-bot/internal/scheduler"
	"github.com/RezaTaheri01/telegram-store-bot/internal/services"
	"github.com/RezaTaheri01/telegram-store-bot/internal/settings"
	"github.com/RezaTaheri01/telegram-store-bot/internal/vault"
)

func main() {
	cfg := config.MustLoad()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Cannot reach PostgreSQL", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	slog.Info("Connected to PostgreSQL database successfully!")

	if err := database.Migrate(ctx, pool, logger); err != nil {
		slog.Error("Migrations failed", "error", err)
		os.Exit(1)
	}

	// Repositories
	accountRepo := repository.NewAccountRepo(pool)
	txRepo := repository.NewTransactionRepo(pool)
	cursorRepo := repository.NewCursorRepo(pool)
	productRepo := repository.NewProductRepo(pool)
	inventoryRepo := repository.NewInventoryRepo(pool)
	paymentRepo := repository.NewPaymentRepo(pool)
	settingsRepo := repository.NewSettingsRepo(pool)
	apiKeyRepo := repository.NewAPIKeyRepo(pool)

	if cfg.Security.SeedAPIKey != "" {
		if err := apiKeyRepo.UpsertSeed(ctx, "seed", middleware.HashKey(cfg.Security.SeedAPIKey)); err != nil {
			slog.Error("Failed to register seed API key", "error", err)
			os.Exit(1)
		}
	}

	sealer, err := vault.NewFromBase64(cfg.Security.VaultKey)
	if err != nil {
		slog.Error("Invalid VAULT_KEY", "error", err)
		os.Exit(1)
	}

	settingsProvider := settings.NewProvider(settingsRepo, defaultSettings(cfg.Defaults), cfg.Cache.SettingsTTL, logger)
	current, err := settingsProvider.Get(ctx)
	if err != nil {
		slog.Error("Failed to load settings", "error", err)
		os.Exit(1)
	}

	oracle := price.NewOracle(settingsProvider, []price.Provider{
		price.NewTonAPI(cfg.Price.TonAPIURL, cfg.Price.ProviderTimeout),
		price.NewCoinGecko(cfg.Price.CoinGeckoURL, cfg.Price.ProviderTimeout),
		price.NewCoinMarketCap(cfg.Price.CMCURL, cfg.Price.ProviderTimeout),
	}, cfg.Price.CacheTTL, cfg.Price.ProviderTimeout, logger)

	recent, closeRecent, err := newRecencySet(ctx, cfg.Cache)
	if err != nil {
		slog.Error("Failed to build recency set", "error", err)
		os.Exit(1)
	}
	defer closeRecent()

	ledgerSvc := ledger.NewService(ledger.Deps{
		DB:          pool,
		Accounts:    accountRepo,
		Records:     txRepo,
		Inventory:   inventoryRepo,
		Payments:    paymentRepo,
		Prices:      oracle,
		MaxPriceAge: cfg.Price.CacheTTL,
		Logger:      logger,
	})

	// Notifications
	var sender notify.Sender = notify.LogSender{Logger: logger}
	if cfg.Telegram.BotToken != "" {
		sender = notify.NewTelegramClient(cfg.Telegram.APIURL, cfg.Telegram.BotToken)
	} else {
		slog.Warn("TELEGRAM_BOT_TOKEN not set, notifications are logged only")
	}
	workers := river.NewWorkers()
	river.AddWorker(workers, notify.NewMessageWorker(sender, sealer, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.Jobs.NotifyWorkers},
		},
		Workers: workers,
		Logger:  logger,
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}
	queue := notify.NewQueue(riverClient, accountRepo, logger)

	// Background jobs
	sup, err := scheduler.New(logger, cfg.Jobs.StartImmediately)
	if err != nil {
		slog.Error("Failed to create scheduler", "error", err)
		os.Exit(1)
	}
	requestPrice := func() {
		if err := sup.RunNow(jobPriceRefresh); err != nil {
			slog.Warn("Out-of-band price refresh not started", "error", err)
		}
	}

	reconciler := services.NewReconciler(services.ReconcilerDeps{
		Feed:           feed.NewClient(cfg.Feed.BaseURL, cfg.Feed.Timeout),
		Settings:       settingsProvider,
		Prices:         oracle,
		Cursor:         cursorRepo,
		CursorKey:      cfg.Feed.CursorKey,
		Ledger:         ledgerSvc,
		Records:        txRepo,
		Accounts:       accountRepo,
		Recent:         recent,
		Notifier:       queue,
		OnPriceMissing: requestPrice,
		Logger:         logger,
	})
	retrier := services.NewRetrier(services.RetrierDeps{
		Records:        txRepo,
		Ledger:         ledgerSvc,
		Settings:       settingsProvider,
		Prices:         oracle,
		Notifier:       queue,
		MaxAge:         cfg.Jobs.FailedMaxAge,
		OnPriceMissing: requestPrice,
		Logger:         logger,
	})
	if err := registerJobs(sup, current, jobSet{
		priceRefresh: oracle.RunCycle,
		reconcile:    reconciler.RunCycle,
		retryFailed:  retrier.RunCycle,
	}); err != nil {
		slog.Error("Failed to register jobs", "error", err)
		os.Exit(1)
	}

	// HTTP API
	validator, err := services.NewValidator()
	if err != nil {
		slog.Error("Schema validator init failed", "error", err)
		os.Exit(1)
	}
	purchaseFlow := services.NewPurchaseFlow(productRepo, ledgerSvc, queue, logger)
	paymentSvc := payments.NewService(paymentRepo, ledgerSvc, cfg.Security.PaymentSecret, cfg.Security.PaymentTTL, cfg.Security.PaymentBaseURL)

	mux := router.New(router.Handlers{
		Accounts: &handlers.AccountHandler{
			Accounts: accountRepo,
			History:  txRepo,
			Bought:   inventoryRepo,
			Opener:   sealer,
			Settings: settingsProvider,
			Logger:   logger,
		},
		Purchases: &handlers.PurchaseHandler{Flow: purchaseFlow, Logger: logger},
		Products: &handlers.ProductHandler{
			Products:  productRepo,
			Inventory: inventoryRepo,
			Sealer:    sealer,
			Prices:    oracle,
			Settings:  settingsProvider,
			Logger:    logger,
		},
		Payments: &handlers.PaymentHandler{Payments: paymentSvc, Logger: logger},
		Settings: &handlers.SettingsHandler{
			Settings: settingsProvider,
			OnChange: func(s models.Settings) { rescheduleJobs(sup, s, logger) },
			Logger:   logger,
		},
	}, middleware.APIKeyAuth(apiKeyRepo, logger), validator)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	// Start River client (processes jobs). It is stopped explicitly below,
	// after the scheduler, so queued notifications from the last cycle drain.
	if err := riverClient.Start(context.Background()); err != nil {
		slog.Error("Failed to start River client", "error", err)
		os.Exit(1)
	}
	sup.Start()

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      corsHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		slog.Info("Starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "error", err)
	}
	if err := sup.Shutdown(); err != nil {
		slog.Error("Scheduler shutdown", "error", err)
	}
	if err := riverClient.Stop(shutdownCtx); err != nil {
		slog.Error("River shutdown", "error", err)
	}
	slog.Info("Stopped")
}

func defaultSettings(d config.SettingsDefaults) models.Settings {
	return models.Settings{
		WalletCurrency:     d.WalletCurrency,
		WalletCurrencySign: d.WalletCurrencySign,
		DepositAddress:     d.DepositAddress,
		FetchLimit:         d.FetchLimit,
		TonAPIKey:          d.TonAPIKey,
		CMCAPIKey:          d.CMCAPIKey,
		NetworkAPIKey:      d.NetworkAPIKey,
		PriceDelay:         d.PriceDelay,
		NetworkDelay:       d.NetworkDelay,
		FailedTxDelay:      d.FailedTxDelay,
		WalletLink:         d.WalletLink,
	}
}

// newRecencySet builds the configured recency backend and its cleanup.
func newRecencySet(ctx context.Context, c config.CacheConfig) (dedup.RecencySet, func(), error) {
	if c.RecencyBackend != "redis" {
		set, err := dedup.NewMemorySet(c.RecencySize)
		return set, func() {}, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddress(),
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, err
	}
	return dedup.NewRedisSet(client, "", c.RecencyTTL), func() { client.Close() }, nil
}
