package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"library-api/internal/api"
	mw "library-api/internal/api/middleware"
	"library-api/internal/batch"
	"library-api/internal/bootstrap"
	"library-api/internal/config"
	"library-api/internal/infrastructure/logging"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// @title Library API
// @version 1.0
// @description Book catalog and lending service.

// @contact.name API Support
// @contact.email support@library-api.local

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, logger := initializeApp()
	ctx := context.Background()

	storage, err := bootstrap.OpenStorage(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer storage.Close()

	redisClient := initializeRedis(ctx, cfg, logger)
	defer closeRedis(redisClient, logger)

	rabbitConn := initializeRabbitMQ(ctx, cfg, logger)
	defer closeRabbitMQ(rabbitConn, logger)

	scheduler := initializeScheduler(cfg, storage, rabbitConn, redisClient, logger)
	scheduler.Start()

	limiter, err := mw.NewLimiter(cfg.Server.RateLimit, redisClient)
	if err != nil {
		logger.Error("Failed to initialize rate limiter", slog.Any("error", err))
		os.Exit(1)
	}
	limiterCtx, stopLimiter := context.WithCancel(ctx)
	defer stopLimiter()
	if memLimiter, ok := limiter.(*mw.MemoryLimiter); ok {
		go memLimiter.Cleanup(limiterCtx, 10*time.Minute)
	}

	router := api.SetupRouter(storage.Library, limiter, cfg, logger)

	srv, serverErrors, shutdownChan := startServer(cfg, router, logger)
	handleShutdown(srv, scheduler, shutdownChan, serverErrors, logger)
}

func initializeApp() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg.Logger)
	slog.SetDefault(logger)
	logger.Info("Application starting...", "config_source", viper.ConfigFileUsed(), "storage", cfg.Storage.Driver)

	return cfg, logger
}

func initializeRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) *redis.Client {
	client, err := bootstrap.NewRedisClient(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Error("Failed to connect to Redis", slog.Any("error", err))
		os.Exit(1)
	}
	return client
}

func closeRedis(client *redis.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	logger.Info("Closing Redis client...")
	if err := client.Close(); err != nil {
		logger.Error("Error closing Redis client", slog.Any("error", err))
	}
}

func initializeRabbitMQ(ctx context.Context, cfg *config.Config, logger *slog.Logger) *amqp.Connection {
	if !cfg.RabbitMQ.Enabled {
		return nil
	}
	conn, err := bootstrap.ConnectRabbitMQ(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	return conn
}

func closeRabbitMQ(conn *amqp.Connection, logger *slog.Logger) {
	if conn == nil {
		return
	}
	logger.Info("Closing RabbitMQ connection...")
	if err := conn.Close(); err != nil {
		logger.Error("Error closing RabbitMQ connection", slog.Any("error", err))
	}
}

func initializeScheduler(cfg *config.Config, storage *bootstrap.Storage, conn *amqp.Connection, redisClient *redis.Client, logger *slog.Logger) *batch.Scheduler {
	logger.Info("Initializing overdue scan scheduler...")
	dispatcher, err := bootstrap.NewDispatcher(cfg, conn, logger)
	if err != nil {
		logger.Error("Failed to initialize notification dispatcher", slog.Any("error", err))
		os.Exit(1)
	}

	job := batch.NewOverdueScanJob(storage.Loans, dispatcher, logger,
		batch.WithOverdueDays(cfg.Batch.OverdueDays),
		batch.WithMessage(cfg.Mail.Subject, cfg.Mail.LateLoansMessage),
	)

	var opts []batch.SchedulerOption
	if redisClient != nil {
		opts = append(opts, batch.WithRunLock(batch.NewRedisRunLock(redisClient)))
	}
	scheduler, err := batch.NewScheduler(job, cfg.Batch, logger, opts...)
	if err != nil {
		logger.Error("Failed to schedule overdue scan job", slog.Any("error", err))
		os.Exit(1)
	}
	return scheduler
}

func startServer(cfg *config.Config, router http.Handler, logger *slog.Logger) (*http.Server, <-chan error, <-chan os.Signal) {
	logger.Info("Setting up HTTP server...", "port", cfg.Server.Port)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(fmt.Sprintf("Server listening on port %d", cfg.Server.Port))
		err := srv.ListenAndServe()
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			serverErrors <- err
		} else {
			logger.Info("Server closed gracefully.")
			serverErrors <- nil
		}
	}()
	return srv, serverErrors, shutdownChan
}

// stopper is the part of the scheduler the shutdown sequence needs.
type stopper interface {
	Stop(ctx context.Context) error
}

func handleShutdown(srv *http.Server, scheduler stopper, shutdownChan <-chan os.Signal, serverErrors <-chan error, logger *slog.Logger) {
	logger.Info("Shutdown handler started. Waiting for signal or server error...")

	var triggerReason string
	select {
	case sig := <-shutdownChan:
		triggerReason = "signal: " + sig.String()
		logger.Info("Shutdown signal received.", "signal", sig.String())
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server exited unexpectedly before signal", "error", err)
			os.Exit(1)
		}
		triggerReason = "server exited"
		logger.Info("Server goroutine finished before signal.", "error", err)
	}

	logger.Info("Starting graceful shutdown...", "trigger", triggerReason)

	logger.Info("Stopping overdue scan scheduler...")
	schedCtx, cancelSched := context.WithTimeout(context.Background(), 15*time.Second)
	if err := scheduler.Stop(schedCtx); err != nil {
		logger.Warn("Overdue scan scheduler shutdown timed out.", "error", err)
	} else {
		logger.Info("Overdue scan scheduler stopped gracefully.")
	}
	cancelSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	logger.Info("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server graceful shutdown failed", "error", err)
		if err := srv.Close(); err != nil {
			logger.Error("HTTP server forced close failed", "error", err)
		}
	} else {
		logger.Info("HTTP server gracefully stopped.")
	}

	logger.Info("Waiting for server goroutine to confirm exit...")
	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Server goroutine exited with unexpected error after shutdown", "error", err)
		} else {
			logger.Info("Server goroutine confirmed exit.")
		}
	case <-time.After(5 * time.Second):
		logger.Warn("Timed out waiting for server goroutine confirmation.")
	}

	logger.Info("Application shutdown process complete.")
}
