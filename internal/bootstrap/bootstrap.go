// Package bootstrap builds the runtime graph shared by the API server, the notifier and libraryctl.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library-api/internal/config"
	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/infrastructure/database/memory"
	"library-api/internal/infrastructure/database/postgres"
	"library-api/internal/library"
	"library-api/internal/notify"
	"library-api/internal/pkg/retry"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Storage is the catalog and ledger over the configured adapter.
type Storage struct {
	Books   book.Service
	Loans   loan.Service
	Library library.Service
	closeFn func()
}

func (s *Storage) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Storage, error) {
	var (
		bookRepo book.Repository
		loanRepo loan.Repository
		closeFn  func()
	)

	switch strings.ToLower(cfg.Storage.Driver) {
	case DriverMemory:
		logger.WarnContext(ctx, "Using in-memory storage, data is lost on restart")
		store := memory.NewStore()
		bookRepo = memory.NewBookRepository(store)
		loanRepo = memory.NewLoanRepository(store)
	case DriverPostgres, "":
		pool, err := postgres.NewConnectionPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		if cfg.Database.ApplySchema {
			if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
				pool.Close()
				return nil, err
			}
		}
		bookRepo = postgres.NewBookRepository(pool, logger)
		loanRepo = postgres.NewLoanRepository(pool, logger)
		closeFn = func() {
			logger.Info("Closing database connection pool...")
			pool.Close()
		}
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	books := book.NewService(bookRepo, logger)
	loans := loan.NewService(loanRepo, logger, loan.WithOverdueDays(cfg.Batch.OverdueDays))
	return &Storage{
		Books:   books,
		Loans:   loans,
		Library: library.NewService(books, loans, logger),
		closeFn: closeFn,
	}, nil
}

// NewRedisClient returns nil when redis is disabled.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	logger.InfoContext(ctx, "Redis connection established", slog.String("addr", cfg.Addr))
	return client, nil
}

type dialFunc func(url string) (*amqp.Connection, error)

// ConnectRabbitMQ dials the broker, retrying while it starts up.
func ConnectRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, logger *slog.Logger) (*amqp.Connection, error) {
	return connectRabbitMQ(ctx, cfg, amqp.Dial, time.Second, logger)
}

func connectRabbitMQ(ctx context.Context, cfg config.RabbitMQConfig, dial dialFunc, baseDelay time.Duration, logger *slog.Logger) (*amqp.Connection, error) {
	logger.InfoContext(ctx, "Connecting to RabbitMQ", slog.String("host", cfg.Host), slog.Int("port", cfg.Port))

	var conn *amqp.Connection
	err := retry.Do(ctx, func(context.Context) error {
		var dialErr error
		conn, dialErr = dial(cfg.URL())
		return dialErr
	},
		retry.WithMaxAttempts(5),
		retry.WithBaseDelay(baseDelay),
		retry.WithRetryIf(func(err error) bool { return !errors.Is(err, context.Canceled) }),
		retry.WithOnRetry(func(attempt int, err error) {
			logger.WarnContext(ctx, "RabbitMQ not reachable, retrying", slog.Int("attempt", attempt), slog.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	logger.InfoContext(ctx, "RabbitMQ connection established.")

	go func() {
		if closeErr := <-conn.NotifyClose(make(chan *amqp.Error, 1)); closeErr != nil {
			logger.Error("RabbitMQ connection closed unexpectedly", slog.Any("error", closeErr))
		}
	}()
	return conn, nil
}

// NewDispatcher picks the notification transport named by cfg.Mail.Transport.
// conn is only used by the rabbitmq transport.
func NewDispatcher(cfg *config.Config, conn *amqp.Connection, logger *slog.Logger) (notify.Dispatcher, error) {
	switch strings.ToLower(cfg.Mail.Transport) {
	case notify.TransportLog, "":
		return notify.NewLogDispatcher(logger), nil
	case notify.TransportSMTP:
		return notify.NewSMTPDispatcher(cfg.Mail, logger), nil
	case notify.TransportRabbitMQ:
		if conn == nil {
			return nil, fmt.Errorf("mail transport %q requires rabbitmq to be enabled", cfg.Mail.Transport)
		}
		d, err := notify.NewRabbitMQDispatcher(conn, cfg.RabbitMQ.ExchangeName, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown mail transport %q", cfg.Mail.Transport)
	}
}
