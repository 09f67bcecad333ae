package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang-fundamental-scryper/internal/crawler/config"
	delivery "golang-fundamental-scryper/internal/crawler/delivery/http"
	"golang-fundamental-scryper/internal/crawler/scheduler"
	"golang-fundamental-scryper/pkg/common"
	"golang-fundamental-scryper/pkg/logger"
	"golang-fundamental-scryper/pkg/utils"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Starts the crawler HTTP API and the optional schedule",
	Run:   runServe,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs a single crawl and prints its summary",
	Run:   runOnce,
}

func setup() (*config.Config, *logger.Logger) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.New(cfg.Logger.Level, cfg.Logger.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	zap.ReplaceGlobals(appLogger.Logger)
	return cfg, appLogger
}

func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, appLogger := setup()
	defer func() { _ = appLogger.Sync() }()

	appLogger.Info("Starting Crawler Service", logger.Field("name", cfg.App.Name))

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize crawler service", logger.ErrorField(err))
	}
	defer a.Close()

	if cfg.Crawler.Schedule != "" {
		s, err := scheduler.New(cfg.Crawler.Schedule, a.pipelineService, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to initialize scheduler", logger.ErrorField(err))
		}
		utils.GoSafe(func() {
			if err := s.Start(ctx); err != nil {
				appLogger.Error("Scheduler stopped with error", logger.ErrorField(err))
			}
		})
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	sqlDB, err := a.db.DB()
	if err != nil {
		appLogger.Fatal("Failed to get database handle", logger.ErrorField(err))
	}
	delivery.NewHealthHandler(sqlDB).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	delivery.NewCrawlHandler(a.pipelineService, a.runService, appLogger).RegisterRoutes(apiV1.Group("/crawls"))
	insightHandler := delivery.NewInsightHandler(a.insightService, appLogger)
	insightHandler.RegisterRoutes(apiV1.Group("/insights"))
	insightHandler.RegisterInstrumentRoutes(apiV1.Group("/instruments"))

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		appLogger.Info("HTTP server starting", logger.Field("address", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("HTTP server failed to start", logger.ErrorField(err))
			stop()
		}
	}()

	<-ctx.Done()

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.ErrorField(err))
	}

	appLogger.Info("Server exiting")
}

func runOnce(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, appLogger := setup()
	defer func() { _ = appLogger.Sync() }()

	a, err := newApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to initialize crawler service", logger.ErrorField(err))
	}
	defer a.Close()

	summary, runErr := a.pipelineService.Run(ctx, common.CrawlTriggerCLI)
	if summary != nil {
		out, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(out))
	}
	if runErr != nil {
		appLogger.Error("Crawl run failed", logger.ErrorField(runErr))
		a.Close()
		_ = appLogger.Sync()
		os.Exit(1)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "crawler-service",
		Short: "Crawls the instrument listing and stores fundamental indicators",
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config-crawler.yaml", "Path to the configuration file")

	rootCmd.AddCommand(serveCmd, runCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing crawler-service CLI: %s\n", err)
		os.Exit(1)
	}
}
