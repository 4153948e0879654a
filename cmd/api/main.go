package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"rently/internal/api"
	"rently/internal/config"
	"rently/internal/database"
	"rently/internal/domain"
	"rently/internal/events"
	"rently/internal/export"
	"rently/internal/google"
	"rently/internal/logging"
	"rently/internal/metrics"
	"rently/internal/models"
	"rently/internal/notify"
	"rently/internal/payments"
	"rently/internal/repository"
	"rently/internal/service"
	"rently/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
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

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer repository.Close(redisClient)
	}
	holdIndex := buildHoldIndex(redisClient, &logger)

	sheetsService := initGoogleSheets(cfg, &logger)

	var sheetsWorker *worker.SheetsWorker
	if sheetsService != nil {
		retryPolicy := worker.RetryPolicy{MaxRetries: 5, InitialDelay: 2 * time.Second, MaxDelay: time.Minute, BackoffFactor: 2}
		sheetsWorker = worker.NewSheetsWorker(db, sheetsService, redisClient, retryPolicy, &logger)
		go sheetsWorker.Start(ctx)
	}

	notifier := initNotifier(cfg, &logger)
	paymentsClient := initPayments(cfg, &logger)
	eventBus := events.NewEventBus()

	bookingService := service.NewBookingService(
		db, paymentsClient, holdIndex, eventBus, notifier, syncWorkerOrNil(sheetsWorker),
		cfg.Booking.HoldWindow(), cfg.Booking.MaxBookingDays, &logger,
	)
	listingService := service.NewListingService(db, &logger)

	reaper := worker.NewHoldReaper(bookingService, holdIndex, cfg.Booking.ReaperInterval(), cfg.Booking.ReaperBatchSize, &logger)
	go reaper.Start(ctx)

	httpServer := api.NewHTTPServer(*cfg, bookingService, listingService, &logger)
	if cfg.Exports.Path != "" {
		httpServer.SetExporter(export.NewExporter(db, cfg.Exports.Path, &logger))
	}

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, &logger)
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
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("create exports directory")
			return err
		}
	}
	return nil
}

func initDatabase(cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	listings, err := loadSeedListings(logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if len(listings) > 0 {
		if err := db.SyncListings(context.Background(), listings); err != nil {
			logger.Error().Err(err).Msg("seed listings failed")
		}
	}
	return db, nil
}

// loadSeedListings reads the optional catalog file used to bootstrap
// environments without an owner UI.
func loadSeedListings(logger *zerolog.Logger) ([]models.Listing, error) {
	listingsPath := os.Getenv("LISTINGS_PATH")
	if listingsPath == "" {
		listingsPath = "configs/listings.yaml"
	}

	data, err := os.ReadFile(listingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		logger.Error().Err(err).Str("listings_path", listingsPath).Msg("read listings")
		return nil, err
	}

	var listingsConfig struct {
		Listings []models.Listing `yaml:"listings"`
	}
	if err := yaml.Unmarshal(data, &listingsConfig); err != nil {
		logger.Error().Err(err).Str("listings_path", listingsPath).Msg("parse listings")
		return nil, err
	}

	return listingsConfig.Listings, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func buildHoldIndex(redisClient *redis.Client, logger *zerolog.Logger) domain.HoldIndex {
	fallback := repository.NewMemoryHoldIndex()
	if redisClient == nil {
		return fallback
	}
	return repository.NewFailoverHoldIndex(repository.NewRedisHoldIndex(redisClient), fallback, logger)
}

func initGoogleSheets(cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.BookingSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.BookingSpreadSheetID,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func initNotifier(cfg *config.Config, logger *zerolog.Logger) domain.Notifier {
	if cfg.Notifications.TelegramBotToken == "" {
		return nil
	}

	notifier, err := notify.NewTelegramNotifier(
		cfg.Notifications.TelegramBotToken,
		cfg.Notifications.Debug,
		cfg.Notifications.Chats,
		logger,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return nil
	}
	return notifier
}

func initPayments(cfg *config.Config, logger *zerolog.Logger) *payments.Client {
	return payments.NewClient(payments.Config{
		BaseURL:    cfg.Payments.BaseURL,
		ClientID:   cfg.Payments.ClientID,
		Secret:     cfg.Payments.Secret,
		MerchantID: cfg.Payments.MerchantID,
		WebhookURL: cfg.Payments.WebhookURL,
		Timeout:    cfg.Payments.Timeout(),
	}, logger)
}

// syncWorkerOrNil avoids handing the service a non-nil interface wrapping a
// nil pointer.
func syncWorkerOrNil(w *worker.SheetsWorker) domain.SyncWorker {
	if w == nil {
		return nil
	}
	return w
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	go startMetricsServer(ctx, port, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown error")
	}

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
