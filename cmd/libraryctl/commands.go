package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	mw "library-api/internal/api/middleware"
	"library-api/internal/batch"
	"library-api/internal/bootstrap"
	"library-api/internal/config"
	"library-api/internal/infrastructure/database/postgres"
	"library-api/internal/infrastructure/logging"
	"library-api/internal/notify"

	"github.com/spf13/cobra"
)

// env holds the pieces commands need. Tests replace them.
type env struct {
	loadConfig    func(path string) (*config.Config, error)
	newLogger     func(cfg config.LoggerConfig) *slog.Logger
	openStorage   func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*bootstrap.Storage, error)
	newDispatcher func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Dispatcher, func(), error)
	applySchema   func(ctx context.Context, cfg *config.Config, logger *slog.Logger) error
	now           func() time.Time
	cfg           *config.Config
	logger        *slog.Logger
	configPath    string
}

func defaultEnv() *env {
	return &env{
		loadConfig:    config.LoadConfig,
		newLogger:     logging.NewLogger,
		openStorage:   bootstrap.OpenStorage,
		newDispatcher: connectDispatcher,
		applySchema:   applySchema,
		now:           time.Now,
	}
}

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "libraryctl",
		Short:         "Operator tasks for the library API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := e.loadConfig(e.configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			e.cfg = cfg
			e.logger = e.newLogger(cfg.Logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&e.configPath, "config", ".", "directory containing config.yml")

	root.AddCommand(newScanOverdueCmd(e), newSchemaCmd(e), newTokenCmd(e))
	return root
}

func newScanOverdueCmd(e *env) *cobra.Command {
	var (
		dryRun bool
		date   string
	)
	cmd := &cobra.Command{
		Use:   "scan-overdue",
		Short: "Find overdue loans and notify their customers once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			today := e.now()
			if date != "" {
				parsed, err := time.ParseInLocation(time.DateOnly, date, time.Local)
				if err != nil {
					return fmt.Errorf("invalid --date %q, expected YYYY-MM-DD", date)
				}
				today = parsed
			}

			storage, err := e.openStorage(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			var dispatcher notify.Dispatcher = notify.NewLogDispatcher(e.logger)
			if !dryRun {
				d, closeFn, err := e.newDispatcher(ctx, e.cfg, e.logger)
				if err != nil {
					return err
				}
				defer closeFn()
				dispatcher = d
			}

			job := batch.NewOverdueScanJob(storage.Loans, dispatcher, e.logger,
				batch.WithOverdueDays(e.cfg.Batch.OverdueDays),
				batch.WithMessage(e.cfg.Mail.Subject, e.cfg.Mail.LateLoansMessage),
			)
			result, err := job.Scan(ctx, today, !dryRun)
			if err != nil {
				return err
			}
			printScan(cmd.OutOrStdout(), result, dryRun)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list overdue loans without sending notifications")
	cmd.Flags().StringVar(&date, "date", "", "scan as of this day (YYYY-MM-DD), default today")
	return cmd
}

func printScan(w io.Writer, result batch.ScanResult, dryRun bool) {
	fmt.Fprintf(w, "cutoff: %s\n", result.Cutoff.Format(time.DateOnly))
	fmt.Fprintf(w, "overdue loans: %d\n", len(result.Loans))
	for _, l := range result.Loans {
		fmt.Fprintf(w, "  #%d %s %s %s\n", l.ID, l.Book.Isbn, l.Customer, l.LoanDate.Format(time.DateOnly))
	}
	fmt.Fprintf(w, "recipients: %s\n", strings.Join(result.Recipients, ", "))
	switch {
	case dryRun:
		fmt.Fprintln(w, "dry run, nothing sent")
	case result.Notified:
		fmt.Fprintln(w, "notification sent")
	default:
		fmt.Fprintln(w, "no notification sent")
	}
}

func newSchemaCmd(e *env) *cobra.Command {
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Manage the Postgres schema",
	}
	schema.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create the books and loans tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.applySchema(cmd.Context(), e.cfg, e.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
			return nil
		},
	})
	return schema
}

func newTokenCmd(e *env) *cobra.Command {
	var (
		username string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(username) == "" {
				return fmt.Errorf("--username must not be blank")
			}
			if ttl <= 0 {
				ttl = e.cfg.Server.Auth.TokenTTL
			}
			token, expiresAt, err := mw.IssueToken(e.cfg.Server.Auth.JWTSecret, username, ttl, e.now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Bearer %s\nexpires: %s\n", token, expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime, default server.auth.tokenTTL")
	return cmd
}

func connectDispatcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (notify.Dispatcher, func(), error) {
	if !strings.EqualFold(cfg.Mail.Transport, notify.TransportRabbitMQ) {
		d, err := bootstrap.NewDispatcher(cfg, nil, logger)
		return d, func() {}, err
	}
	conn, err := bootstrap.ConnectRabbitMQ(ctx, cfg.RabbitMQ, logger)
	if err != nil {
		return nil, nil, err
	}
	d, err := bootstrap.NewDispatcher(cfg, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return d, func() { _ = conn.Close() }, nil
}

func applySchema(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	pool, err := postgres.NewConnectionPool(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer pool.Close()
	return postgres.EnsureSchema(ctx, pool, logger)
}
