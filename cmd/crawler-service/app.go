package main

import (
	"context"
	"fmt"
	"net/http"

	"golang-fundamental-scryper/internal/crawler/allowlist"
	"golang-fundamental-scryper/internal/crawler/config"
	"golang-fundamental-scryper/internal/crawler/repository"
	"golang-fundamental-scryper/internal/crawler/service"
	"golang-fundamental-scryper/pkg/logger"
	"golang-fundamental-scryper/pkg/postgres"
	"golang-fundamental-scryper/pkg/redis"
	"golang-fundamental-scryper/pkg/telegram"

	"gorm.io/gorm"
)

// app holds the wired dependencies shared by the serve and run commands.
type app struct {
	db              *gorm.DB
	pipelineService service.PipelineService
	runService      service.CrawlRunService
	insightService  service.InsightService
	closers         []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, appLogger *logger.Logger) (*app, error) {
	a := &app{}

	postgresCfg := postgres.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		TimeZone:        cfg.Database.TimeZone,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		LogLevel:        cfg.Database.LogLevel,
	}
	db, err := postgres.NewDB(postgresCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.db = db.DB
	if sqlDB, err := db.DB.DB(); err == nil {
		a.closers = append(a.closers, func() { _ = sqlDB.Close() })
	}

	guard := allowlist.New(cfg.AllowList.Version, cfg.AllowList.Identifiers)
	instrumentRepo := repository.NewInstrumentRepository(db.DB, guard)
	removed, err := instrumentRepo.SyncAllowList(ctx)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to sync allow-list: %w", err)
	}
	appLogger.Info("Allow-list synced",
		logger.StringField("version", guard.Version()),
		logger.IntField("members", guard.Len()),
		logger.Field("removed", removed))

	var (
		lockRepo  repository.RunLockRepository
		eventRepo repository.RunEventRepository
	)
	if cfg.Redis.Enabled() {
		redisClient, err := redis.NewClient(redis.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		lockRepo = repository.NewRedisRunLockRepository(redisClient)
		eventRepo = repository.NewRunEventRepository(redisClient, cfg.Redis.StreamMaxLen)
	} else {
		appLogger.Warn("Redis not configured, using an in-process run lock and no run events")
		lockRepo = repository.NewLocalRunLockRepository()
	}

	var notifier telegram.Notifier
	if cfg.Telegram.Enabled() {
		notifier, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			appLogger.Warn("Telegram notifier disabled", logger.ErrorField(err))
			notifier = nil
		}
	}

	runRepo := repository.NewCrawlRunRepository(db.DB)
	sourceRepo := repository.NewSourceRepository(cfg, appLogger, &http.Client{})

	a.insightService = service.NewInsightService(instrumentRepo)
	a.runService = service.NewCrawlRunService(runRepo)
	a.pipelineService = service.NewPipelineService(cfg, appLogger, instrumentRepo, runRepo, sourceRepo, lockRepo, eventRepo, notifier, a.insightService)
	return a, nil
}
