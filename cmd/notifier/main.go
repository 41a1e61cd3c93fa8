// Command notifier consumes mail requests published by the API and delivers them.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"library-api/internal/bootstrap"
	"library-api/internal/config"
	"library-api/internal/infrastructure/logging"
	"library-api/internal/notify"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsAddr = ":8090"

func main() {
	cfg, logger := initializeConfigAndLogger()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rabbitConn, err := bootstrap.ConnectRabbitMQ(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("Failed to connect to RabbitMQ", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		logger.Info("Closing RabbitMQ connection...")
		if err := rabbitConn.Close(); err != nil {
			logger.Error("Error closing RabbitMQ connection", slog.Any("error", err))
		}
	}()

	handler := notify.NewMailRequestHandler(deliveryDispatcher(cfg.Mail, logger), logger)
	consumer, err := notify.NewConsumer(
		rabbitConn,
		cfg.RabbitMQ.ExchangeName,
		cfg.RabbitMQ.QueueName,
		cfg.RabbitMQ.ConsumerTag,
		handler.HandleDelivery,
		logger,
	)
	if err != nil {
		logger.Error("Failed to create RabbitMQ consumer", slog.Any("error", err))
		os.Exit(1)
	}

	server := startMetricsServer(logger, stop)

	if err := consumer.Start(ctx); err != nil {
		logger.Error("Failed to start RabbitMQ consumer", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Consumer started successfully. Waiting for mail requests or shutdown signal...")

	<-ctx.Done()
	logger.Info("Shutdown signal received. Initiating graceful shutdown...")
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", slog.Any("error", err))
	}
	logger.Info("Notifier shut down gracefully.")
}

func initializeConfigAndLogger() (*config.Config, *slog.Logger) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := logging.NewLogger(cfg.Logger).With("service", "notifier")
	slog.SetDefault(logger)
	logger.Info("Configuration loaded successfully")
	return cfg, logger
}

// deliveryDispatcher never returns the rabbitmq transport, which would publish the request back to the broker.
func deliveryDispatcher(cfg config.MailConfig, logger *slog.Logger) notify.Dispatcher {
	if strings.EqualFold(cfg.Transport, notify.TransportLog) {
		return notify.NewLogDispatcher(logger)
	}
	return notify.NewSMTPDispatcher(cfg, logger)
}

func startMetricsServer(logger *slog.Logger, stop context.CancelFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Setting up Prometheus metrics endpoint", "addr", metricsAddr, "path", "/metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Failed to start HTTP server", slog.Any("error", err))
			stop()
		}
	}()
	return server
}
