package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"termin/internal/api"
	"termin/internal/calendar"
	"termin/internal/config"
	"termin/internal/database"
	"termin/internal/domain"
	"termin/internal/events"
	"termin/internal/exports"
	"termin/internal/logging"
	"termin/internal/metrics"
	"termin/internal/notify"
	"termin/internal/repository"
	"termin/internal/scheduling"
	"termin/internal/worker"
	"termin/internal/zoom"

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

	location, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Scheduling.Timezone, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	googleCalendar := initCalendar(ctx, cfg, location, &logger)
	zoomClient := zoom.NewClient(cfg.Zoom, cfg.Notify.HostEmail, location, &logger)
	notifier := initNotifier(ctx, cfg, &logger)

	bus := events.NewEventBus()
	subscribeAuditLog(bus, &logger)

	syncWorker := worker.NewSyncWorker(db, googleCalendar, zoomClient, redisClient, worker.DefaultRetryPolicy(), &logger)
	go syncWorker.Start(ctx)

	lifecycle := scheduling.NewService(
		db,
		googleCalendar,
		zoomClient,
		notifier,
		bus,
		syncWorker,
		location,
		cfg.Scheduling.MaxBookingDays,
		time.Duration(cfg.Scheduling.AdapterTimeoutSeconds)*time.Second,
		&logger,
	)
	admin := scheduling.NewAdminService(db, bus, &logger)
	exporter := exports.NewExporter(cfg.Exports.Path, &logger)

	limiter := initStateRepository(redisClient, &logger)
	auth := api.NewAdminAuth(cfg.Admin, limiter, &logger)

	server := api.NewServer(cfg, lifecycle, admin, db, exporter, auth, &logger)

	startMetrics(ctx, cfg, &logger)

	if cfg.Backup.Enabled {
		backup := database.NewBackupService(cfg.Database.Path, cfg.Backup, &logger)
		go backup.Start(ctx)
	}

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	logger.Info().Int("port", cfg.Server.Port).Str("timezone", cfg.Scheduling.Timezone).Msg("appointment server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown")
	}

	logger.Info().Msg("appointment server stopped")
	return nil
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
	logger := logging.ForComponent(baseLogger, "api-main")

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStateRepository picks the rate-limit backend: redis with an in-memory
// fallback when redis is configured, in-memory only otherwise.
func initStateRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository()
	if redisClient == nil {
		return memory
	}
	return repository.NewFailoverStateRepository(repository.NewRedisStateRepository(redisClient), memory, logger)
}

func initCalendar(ctx context.Context, cfg *config.Config, location *time.Location, logger *zerolog.Logger) *calendar.GoogleAdapter {
	adapter, err := calendar.NewGoogleAdapter(ctx, cfg.Google, location, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google calendar init failed, continuing without calendar")
		return nil
	}
	if adapter.IsConfigured() {
		logger.Info().Str("calendar_id", cfg.Google.CalendarID).Msg("google calendar connected")
	}
	return adapter
}

func initNotifier(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *notify.Service {
	sender, err := notify.NewGmailSender(ctx, cfg.Google, cfg.Notify.FromName, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("gmail init failed, continuing without email")
		sender = nil
	}
	return notify.NewService(sender, cfg.Notify.Enabled, cfg.App.BaseURL, cfg.Notify.HostEmail, logger)
}

// subscribeAuditLog mirrors every lifecycle event into the log so operators
// have a trail even when no other consumer is attached.
func subscribeAuditLog(bus *events.EventBus, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		logger.Info().
			Str("event", event.Type).
			RawJSON("payload", event.Payload).
			Msg("appointment event")
		return nil
	}
	for _, eventType := range []string{
		events.EventAppointmentBooked,
		events.EventAppointmentRescheduled,
		events.EventAppointmentCancelled,
		events.EventAppointmentStarted,
		events.EventAppointmentCompleted,
	} {
		bus.Subscribe(eventType, handler)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
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
