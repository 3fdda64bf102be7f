package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"invoicesync/internal/api"
	"invoicesync/internal/config"
	"invoicesync/internal/database"
	"invoicesync/internal/domain"
	"invoicesync/internal/events"
	"invoicesync/internal/lexware"
	"invoicesync/internal/logging"
	"invoicesync/internal/metrics"
	"invoicesync/internal/notify"
	"invoicesync/internal/pdfcache"
	"invoicesync/internal/repository"
	"invoicesync/internal/service"
	"invoicesync/internal/storefront"
	"invoicesync/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}

	store := storefront.NewWooCommerce(cfg.Store, &logger)

	client, err := lexware.NewClient(cfg.Lexware,
		lexware.WithLogger(&logger),
		lexware.WithRecorder(service.NewAPILogRecorder(db, &logger)),
	)
	if err != nil {
		return fmt.Errorf("init lexware client: %w", err)
	}

	settings := service.NewSettingsService(db, cfg.DefaultSettings(), client, store, &logger)

	fetcher := pdfcache.NewPoller(client.DocumentFetcher(settings), cfg.PDF.PollAttempts, cfg.PDF.PollDelay)
	pdf := pdfcache.New(cfg.PDF.CacheDir, fetcher, &logger)

	mailer, err := notify.NewMailer(cfg.Notify.SMTP, &logger)
	if err != nil && !errors.Is(err, notify.ErrMailDisabled) {
		return fmt.Errorf("init mailer: %w", err)
	}
	var emailer *service.EmailService
	if mailer != nil {
		emailer = service.NewEmailService(mailer, pdf, store, &logger)
	} else {
		logger.Info().Msg("smtp not configured, invoice emails disabled")
	}

	processor := worker.NewProcessor(db, store, client, settings, initLocker(redisClient, &logger),
		worker.PolicyFromConfig(cfg.Sync), &logger, processorOptions(cfg, redisClient, mailer, emailer, &logger)...)

	syncService := service.NewSyncService(db, store, settings, processor, pdf, invoiceEmailer(emailer), &logger)
	bus := events.NewEventBus()
	syncService.RegisterHandlers(bus)

	deps := api.Deps{
		DB:            db,
		Sync:          syncService,
		Settings:      settings,
		Processor:     processor,
		Bus:           bus,
		Readiness:     []api.ReadinessCheck{{Name: "woocommerce", Check: store.HealthCheck}},
		WebhookSecret: cfg.Store.WebhookSecret,
	}
	if redisClient != nil {
		deps.DeadLetters = repository.NewDeadLetters(redisClient, "")
		deps.Readiness = append(deps.Readiness, api.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return repository.Ping(ctx, redisClient) },
		})
	}
	httpServer := api.NewHTTPServer(&cfg.API, deps, &logger)

	startMetrics(ctx, cfg, &logger)

	backup := database.NewBackupService(db, cfg.Backup, &logger)
	go backup.Start(ctx)
	go processor.Start(ctx)

	return serve(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "syncd").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initLocker prefers the shared Redis lock and falls back to an in-process one.
func initLocker(client *redis.Client, logger *zerolog.Logger) domain.Locker {
	local := repository.NewMemoryLocker()
	if client == nil {
		return local
	}
	return repository.NewFailoverLocker(repository.NewRedisLocker(client), local, logger)
}

func processorOptions(
	cfg *config.Config,
	redisClient *redis.Client,
	mailer *notify.Mailer,
	emailer *service.EmailService,
	logger *zerolog.Logger,
) []worker.Option {
	var opts []worker.Option

	var channels []notify.Channel
	if tg := initTelegram(cfg.Notify.Telegram, logger); tg != nil {
		channels = append(channels, tg)
	}
	if mailer != nil && cfg.Notify.AdminEmail != "" {
		channels = append(channels, notify.NewAdminMail(mailer, cfg.Notify.AdminEmail))
	}
	if len(channels) > 0 {
		opts = append(opts, worker.WithAlerter(
			notify.NewCoalescer(cfg.Notify.AlertInterval, cfg.Notify.AlertBurst, logger, channels...)))
	}

	if emailer != nil {
		opts = append(opts, worker.WithEmailer(emailer))
	}
	if redisClient != nil {
		opts = append(opts, worker.WithDeadLetters(repository.NewDeadLetters(redisClient, "")))
	}
	return opts
}

func initTelegram(cfg config.TelegramConfig, logger *zerolog.Logger) *notify.Telegram {
	if cfg.BotToken == "" || cfg.ChatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without telegram alerts")
		return nil
	}
	logger.Info().Str("bot", bot.Self.UserName).Msg("telegram alerts enabled")
	return notify.NewTelegram(bot, cfg.ChatID)
}

// invoiceEmailer keeps a nil *EmailService from becoming a non-nil interface.
func invoiceEmailer(e *service.EmailService) domain.InvoiceEmailer {
	if e == nil {
		return nil
	}
	return e
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			logger.Warn().Msg("http api disabled, only the queue processor runs")
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("invoice sync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("invoice sync stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
