package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"library-api/internal/domain/loan"
	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/notify"
)

const (
	DefaultSubject          = "Expired loan"
	DefaultLateLoansMessage = "Attention! You have an overdue loan. Please return the book as soon as possible."
)

// LateLoanFinder is the slice of the loan ledger the scan needs.
type LateLoanFinder interface {
	GetOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]loan.Loan, error)
}

// ScanResult describes one pass of the overdue scan.
type ScanResult struct {
	Cutoff     time.Time
	Loans      []loan.Loan
	Recipients []string
	Notified   bool
}

type OverdueScanJob struct {
	loans       LateLoanFinder
	dispatcher  notify.Dispatcher
	now         loan.Clock
	overdueDays int
	subject     string
	message     string
	logger      *slog.Logger
}

type JobOption func(*OverdueScanJob)

func WithJobClock(now loan.Clock) JobOption {
	return func(j *OverdueScanJob) {
		if now != nil {
			j.now = now
		}
	}
}

func WithOverdueDays(days int) JobOption {
	return func(j *OverdueScanJob) {
		if days >= 0 {
			j.overdueDays = days
		}
	}
}

// WithMessage overrides the notification subject and body. Blank values keep the defaults.
func WithMessage(subject, body string) JobOption {
	return func(j *OverdueScanJob) {
		if subject != "" {
			j.subject = subject
		}
		if body != "" {
			j.message = body
		}
	}
}

func NewOverdueScanJob(loans LateLoanFinder, dispatcher notify.Dispatcher, logger *slog.Logger, opts ...JobOption) *OverdueScanJob {
	if loans == nil || dispatcher == nil || logger == nil {
		panic("OverdueScanJob dependencies cannot be nil")
	}
	j := &OverdueScanJob{
		loans:       loans,
		dispatcher:  dispatcher,
		now:         time.Now,
		overdueDays: loan.DefaultOverdueDays,
		subject:     DefaultSubject,
		message:     DefaultLateLoansMessage,
		logger:      logger.With("job", "OverdueScan"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run scans for loans overdue as of today and notifies their customers once.
// A failed dispatch is logged and counted; only a failed ledger query fails the run.
func (j *OverdueScanJob) Run(ctx context.Context) error {
	_, err := j.Scan(ctx, j.now(), true)
	return err
}

// Scan is Run for an arbitrary day. Without dispatch nothing is sent.
func (j *OverdueScanJob) Scan(ctx context.Context, today time.Time, dispatch bool) (ScanResult, error) {
	start := time.Now()
	cutoff := loan.OverdueCutoff(today, j.overdueDays)
	logger := j.logger.With(slog.String("cutoff", cutoff.Format(time.DateOnly)))
	logger.InfoContext(ctx, "Starting overdue loan scan")

	late, err := j.loans.GetOverdueUnreturned(ctx, cutoff)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to query overdue loans, aborting scan", slog.Any("error", err))
		monitoring.RecordOverdueScan(0, "error", time.Since(start))
		return ScanResult{Cutoff: cutoff}, fmt.Errorf("cannot run overdue scan: %w", err)
	}

	result := ScanResult{Cutoff: cutoff, Loans: late, Recipients: Recipients(late)}
	logger = logger.With(slog.Int("overdueLoans", len(late)), slog.Int("recipients", len(result.Recipients)))

	if !dispatch {
		logger.InfoContext(ctx, "Overdue loan scan finished without notifying")
		monitoring.RecordOverdueScan(len(late), "dry_run", time.Since(start))
		return result, nil
	}

	status := "success"
	if err := j.dispatcher.Send(ctx, result.Recipients, j.subject, j.message); err != nil {
		status = "dispatch_failed"
		logger.ErrorContext(ctx, "Failed to notify customers with overdue loans", slog.Any("error", err))
	} else {
		result.Notified = len(result.Recipients) > 0
	}

	monitoring.RecordOverdueScan(len(late), status, time.Since(start))
	logger.InfoContext(ctx, "Overdue loan scan finished", slog.String("status", status), slog.Duration("duration", time.Since(start)))
	return result, nil
}

// Recipients returns the distinct non-blank customer emails of loans in first-seen order.
func Recipients(loans []loan.Loan) []string {
	seen := make(map[string]struct{}, len(loans))
	out := make([]string, 0, len(loans))
	for _, l := range loans {
		email := strings.TrimSpace(l.CustomerEmail)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}
		out = append(out, email)
	}
	return out
}
