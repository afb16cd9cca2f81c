package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dhoini/fitness-billing-service/internal/app"
	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/http/routes"
	"github.com/Dhoini/fitness-billing-service/internal/http/server"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		logger.New(logger.ERROR).Fatalw("Failed to load configuration", "error", err)
	}

	log := initLogger(cfg.App)
	defer func() { _ = log.Sync() }()
	log.Infow("Billing service starting up", "env", cfg.App.Env)

	// Устанавливаем режим Gin в зависимости от окружения
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}

	router := gin.New()
	routes.SetupRoutes(router, application, log)
	srv := server.NewServer(router, cfg.App, log)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		application.StartRateLimitCleanup(gCtx)
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		log.Infow("Shutdown signal received")

		// новый контекст: gCtx уже отменен
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("Server stopped with error", "error", err)
	}

	// фоновые задачи (события Kafka, письма, возвраты) должны завершиться до закрытия соединений
	application.Wait()
	if err := application.Close(); err != nil {
		log.Errorw("Error releasing resources", "error", err)
	}
	log.Infow("Cleanup finished. Goodbye!")
}

// initLogger выбирает уровень и формат логов по конфигурации
func initLogger(cfg config.AppConfig) *logger.Logger {
	level := logger.ParseLevel(cfg.LogLevel)
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = logger.DEBUG
	}
	if cfg.IsProduction() {
		return logger.NewProduction(level)
	}
	return logger.New(level)
}
