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
	"path/filepath"
	"syscall"
	"time"

	"rentbook/internal/admission"
	"rentbook/internal/api"
	"rentbook/internal/availability"
	"rentbook/internal/config"
	"rentbook/internal/database"
	"rentbook/internal/domain"
	"rentbook/internal/events"
	"rentbook/internal/export"
	"rentbook/internal/google"
	"rentbook/internal/logging"
	"rentbook/internal/metrics"
	"rentbook/internal/models"
	"rentbook/internal/notify"
	"rentbook/internal/pricing"
	"rentbook/internal/repository"
	"rentbook/internal/worker"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const shutdownTimeout = 10 * time.Second

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

	listings, err := loadListings(cfg, &logger)
	if err != nil {
		return err
	}

	if err := prepareDirectories(cfg, &logger); err != nil {
		return err
	}

	db, err := initDatabase(cfg, listings, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer (func() { _ = repository.Close(redisClient) })()
	}
	idempotency := initIdempotencyStore(ctx, redisClient, &logger)

	eventBus := events.NewEventBus(logging.Component(&logger, "events"))
	initTelegram(cfg, eventBus, &logger)

	var syncWorker domain.SyncWorker
	if sheetsService := initGoogleSheets(ctx, cfg, &logger); sheetsService != nil {
		w := worker.NewSheetsWorker(db, sheetsService, redisClient,
			worker.RetryPolicyFromConfig(cfg.Worker), cfg.Worker.QueueSize, logging.Component(&logger, "sheets-worker"))
		go w.Start(ctx)
		syncWorker = w
	}

	if cfg.Backup.Enabled {
		backupService := database.NewBackupService(db, cfg.Backup, logging.Component(&logger, "backup"))
		go backupService.Start(ctx)
	}

	controller := admission.NewController(
		db,
		idempotency,
		availability.NewChecker(availability.PolicyFromConfig(cfg.Booking)),
		pricing.NewCalculator(pricing.PolicyFromConfig(cfg.Booking)),
		eventBus,
		syncWorker,
		time.Duration(cfg.Booking.IdempotencyTTL)*time.Second,
		logging.Component(&logger, "admission"),
	)

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, cfg, controller, db, &logger)
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
	logger := baseLogger.With().Str("component", "main").Logger()

	return cfg, logger, closer, nil
}

func loadListings(cfg *config.Config, logger *zerolog.Logger) ([]models.Listing, error) {
	listingsPath := os.Getenv("LISTINGS_PATH")
	if listingsPath == "" {
		listingsPath = cfg.Booking.ListingsFile
	}
	if listingsPath == "" {
		listingsPath = "configs/listings.yaml"
	}

	data, err := os.ReadFile(listingsPath)
	if err != nil {
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

	if err := config.ValidateListings(listingsConfig.Listings); err != nil {
		logger.Error().Err(err).Msg("Listings validation failed")
		return nil, err
	}
	return listingsConfig.Listings, nil
}

func prepareDirectories(cfg *config.Config, logger *zerolog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		logger.Error().Err(err).Msg("create database directory")
		return err
	}
	if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("create exports directory")
		return err
	}
	return nil
}

func initDatabase(cfg *config.Config, listings []models.Listing, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return nil, err
	}

	if err := db.SyncListings(context.Background(), listings); err != nil {
		db.Close()
		logger.Error().Err(err).Msg("sync listings")
		return nil, err
	}
	logger.Info().Int("listings", len(listings)).Msg("Listings synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		// the failover store keeps working from memory until redis comes back
		logger.Warn().Err(err).Msg("redis unavailable at startup")
	} else {
		logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	}
	return redisClient
}

func initIdempotencyStore(ctx context.Context, redisClient *redis.Client, logger *zerolog.Logger) domain.IdempotencyStore {
	memory := repository.NewMemoryIdempotencyStore()
	go sweepMemoryStore(ctx, memory)

	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverIdempotencyStore(
		repository.NewRedisIdempotencyStore(redisClient),
		memory,
		logging.Component(logger, "idempotency"),
	)
}

func sweepMemoryStore(ctx context.Context, store *repository.MemoryIdempotencyStore) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			store.Sweep()
		}
	}
}

func initTelegram(cfg *config.Config, bus *events.EventBus, logger *zerolog.Logger) {
	if cfg.Telegram.BotToken == "" {
		logger.Info().Msg("telegram bot token not set, host notifications disabled")
		return
	}

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		return
	}
	botAPI.Debug = cfg.Telegram.Debug

	notify.NewTelegramNotifier(botAPI, logging.Component(logger, "telegram")).Subscribe(bus)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("telegram notifications enabled")
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.SheetsService {
	if cfg.Google.GoogleCredentialsFile == "" || cfg.Google.ReservationSpreadSheetID == "" {
		return nil
	}

	sheetsService, err := google.NewSheetsService(ctx,
		cfg.Google.GoogleCredentialsFile,
		cfg.Google.ReservationSpreadSheetID,
		cfg.Google.ReservationSheetName,
	)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets connection test failed, continuing without sheets")
		return nil
	}
	if err := sheetsService.EnsureHeader(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets header check failed")
	}
	if err := sheetsService.WarmUpCache(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets cache warm-up failed")
	}

	logger.Info().Msg("google sheets connected")
	return sheetsService
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
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

// readiness checks only the database; idempotency falls back to memory without redis.
func readiness(db *database.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	}
}

func startServers(
	ctx context.Context,
	cfg *config.Config,
	controller *admission.Controller,
	db *database.DB,
	logger *zerolog.Logger,
) error {
	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, nothing to serve")
		<-ctx.Done()
		return nil
	}

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		var err error
		grpcServer, err = api.NewGRPCServer(&cfg.API, controller, logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
	}

	var httpServer *api.HTTPServer
	if cfg.API.HTTP.Enabled {
		httpServer = api.NewHTTPServer(&cfg.API, controller, export.NewExporter(cfg.Exports.Path),
			readiness(db), logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		}()
	}

	logger.Info().
		Bool("grpc", grpcServer != nil).
		Bool("http", httpServer != nil).
		Int("http_port", cfg.API.HTTP.Port).
		Int("grpc_port", cfg.API.GRPC.Port).
		Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http shutdown")
		}
	}

	logger.Info().Msg("API server stopped")
	return nil
}
