package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"nailbook/internal/api"
	"nailbook/internal/audit"
	"nailbook/internal/booking"
	"nailbook/internal/cache"
	"nailbook/internal/config"
	"nailbook/internal/database"
	"nailbook/internal/events"
	"nailbook/internal/metrics"
	"nailbook/internal/notify"
	"nailbook/internal/recovery"
	"nailbook/internal/schedule"
	"nailbook/internal/sheets"
)

func main() {
	// .env is optional; config expands ${ENV_VAR} placeholders.
	_ = godotenv.Load()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("NAILBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer func() { _ = db.Close() }()

	grid, err := schedule.NewGrid(cfg.Schedule.DayStart, cfg.Schedule.DayEnd, cfg.Schedule.SlotMinutes)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid schedule grid")
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	availCache := cache.New(rdb, cfg.CacheTTL(), &logger)

	bus := events.NewEventBus()
	resolver := schedule.NewResolver(db, grid, &logger)
	svc := booking.NewService(db, resolver, bus, &logger)
	resched := booking.NewRescheduler(db, grid, bus, &logger)
	ingestor := recovery.NewIngestor(svc, &logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telegram.Enabled && cfg.Telegram.BotToken != "" {
		bot, err := notify.NewBot(cfg.Telegram.BotToken)
		if err != nil {
			logger.Error().Err(err).Msg("telegram disabled")
		} else {
			notify.New(bot, cfg.Telegram.Managers, &logger).Subscribe(bus)
			logger.Info().Int("managers", len(cfg.Telegram.Managers)).Msg("telegram notifications enabled")
		}
	}

	if cfg.Sheets.Enabled {
		mirror, err := sheets.NewSheetsService(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, db, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("sheets mirror disabled")
		} else {
			mirror.Subscribe(bus)
			go mirror.Run(ctx, cfg.SheetsSyncInterval())
		}
	}

	auditSvc := audit.NewService(audit.Config{
		RetentionDays: cfg.Backup.RetentionDays,
	}, db, audit.NewExcelizeWriter, &logger)
	go auditSvc.Run(ctx)

	if cfg.Backup.Enabled {
		backups := database.NewBackupService(db.Path(), cfg.Backup, &logger)
		go backups.Start(ctx)
	}

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	server := api.NewHTTPServer(db, svc, resched, ingestor, availCache, rdb, cfg.Server.APIKey, &logger)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("nailbook server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
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
