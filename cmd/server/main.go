package main

import (
	"context"
	"errors"
	"log"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"availability-service/internal/app"
	"availability-service/internal/availability"
	"availability-service/internal/booking"
	"availability-service/internal/config"
	"availability-service/internal/googlecal"
	"availability-service/internal/notify"
	"availability-service/internal/server"
	"availability-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := app.NewLogger(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := server.SignalContext()
	defer stop()

	pool, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pool.Migrate(ctx); err != nil {
		return err
	}

	readyChecks := []app.ReadyCheck{{Name: "postgres", Check: storage.ReadyCheck(pool)}}

	var schedules storage.ScheduleStore = storage.NewScheduleRepository(pool)
	if cfg.RedisURL != "" {
		rdb, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		schedules = storage.NewScheduleCache(schedules, rdb, cfg.ScheduleCacheTTL, logger)
		readyChecks = append(readyChecks, app.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	events := storage.NewEventRepository(pool)
	bookings := storage.NewBookingRepository(pool)

	var (
		busy     availability.BusyIntervalProvider = bookings
		calendar *googlecal.Client
	)
	if cfg.Google.Enabled() {
		calendar = googlecal.NewClient(googlecal.NewOAuthConfig(cfg.Google), storage.NewTokenRepository(pool), logger)
		if cfg.BusySource == config.BusySourceGoogle {
			busy = calendar
		}
	}
	resolver := availability.NewResolver(schedules, busy, cfg.ResolverConcurrency)

	opts := booking.Options{
		Step:    cfg.SlotStep,
		Horizon: cfg.BookingHorizon,
		Logger:  logger,
	}
	if calendar != nil {
		opts.Calendar = calendar
	}
	if cfg.RabbitMQURL != "" {
		conn, err := notify.Dial(cfg.RabbitMQURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher, err := notify.NewPublisher(conn, cfg.RabbitMQBookingQueue, logger)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts.Notifier = publisher
		readyChecks = append(readyChecks, app.ReadyCheck{Name: "rabbitmq", Check: func(context.Context) error {
			if conn.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}})
	}

	application := &app.App{
		Schedules:   schedules,
		Resolver:    resolver,
		Events:      events,
		Bookings:    bookings,
		Meetings:    booking.NewService(events, bookings, resolver, opts),
		Auth:        app.NewAuthenticator(cfg.StaticTokens, cfg.JWTHMACSecret),
		Log:         logger,
		ReadyChecks: readyChecks,
	}
	if calendar != nil {
		application.Calendar = calendar
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.Run(ctx, application.Router(), cfg.Port, cfg.ShutdownTimeout, logger)
}
