package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"calsync/internal/config"
	"calsync/internal/publisher"
	"calsync/internal/service"
	"calsync/internal/source/luma"
	"calsync/internal/storage/postgres"
)

// app holds the wired dependencies shared by all commands.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	mq     *publisher.RabbitMQ

	calendars   *postgres.CalendarStore
	runs        *postgres.SyncRunStore
	syncService *service.SyncService
}

// newApp loads config, connects to Postgres and wires the sync service.
// RabbitMQ is only dialed when withPublisher is set and it is enabled in
// config.
func newApp(ctx context.Context, configPath string, withPublisher bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Debug("connected to database", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		calendars: postgres.NewCalendarStore(db),
		runs:      postgres.NewSyncRunStore(db),
	}

	// A nil *RabbitMQ must not reach the service as a non-nil interface.
	var pub service.Publisher
	if withPublisher && cfg.RabbitMQ.Enabled {
		mq, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.mq = mq
		pub = mq
	}

	source := luma.New(luma.Config{
		BaseURL:  cfg.API.BaseURL,
		APIKey:   cfg.API.APIKey,
		PageSize: cfg.API.PageSize,
		Timeout:  cfg.API.Timeout,
		Requests: cfg.API.RateLimit.Requests,
		Window:   cfg.API.RateLimit.Window,
	}, logger)

	a.syncService = service.NewSyncService(
		source,
		a.calendars,
		postgres.NewPersonStore(db),
		postgres.NewEventStore(db),
		a.runs,
		postgres.NewUserStore(db),
		postgres.NewTransactionManager(db),
		pub,
		logger,
		cfg.Sync,
	)

	return a, nil
}

func (a *app) Close() {
	if a.mq != nil {
		if err := a.mq.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}
