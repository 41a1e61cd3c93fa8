package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
	"library-api/internal/pkg/retry"
)

type Service interface {
	AvailabilityChecker

	Save(ctx context.Context, l *Loan) (*Loan, error)
	GetByID(ctx context.Context, id int64) (optional.Optional[Loan], error)
	Update(ctx context.Context, l *Loan) (*Loan, error)
	FindByIsbnOrCustomer(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[Loan], error)
	FindByBook(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[Loan], error)
	GetOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]Loan, error)
	GetAllLateLoans(ctx context.Context) ([]Loan, error)
}

var _ Service = (*loanService)(nil)

type loanService struct {
	repo        Repository
	now         Clock
	overdueDays int
	retryOpts   []retry.Option
	logger      *slog.Logger
}

type Option func(*loanService)

func WithClock(now Clock) Option {
	return func(s *loanService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithOverdueDays(days int) Option {
	return func(s *loanService) {
		if days >= 0 {
			s.overdueDays = days
		}
	}
}

// WithRetryOptions tunes the retry of conflicting loan creations.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(s *loanService) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

func NewService(repo Repository, logger *slog.Logger, opts ...Option) Service {
	if repo == nil {
		panic("loan repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to loan.NewService, using default stderr handler")
	}

	s := &loanService{
		repo:        repo,
		now:         time.Now,
		overdueDays: DefaultOverdueDays,
		logger:      logger.With(slog.String("component", "loanService")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *loanService) IsBookOnLoan(ctx context.Context, bookID int64) (bool, error) {
	return NewAvailabilityChecker(s.repo).IsBookOnLoan(ctx, bookID)
}

// Save creates an active loan dated today. The availability check and the insert
// share one transaction; serialization conflicts rerun the whole transaction.
func (s *loanService) Save(ctx context.Context, l *Loan) (*Loan, error) {
	if l == nil || l.Book.ID == 0 {
		return nil, fmt.Errorf("%w: loan must reference a book", apperrors.ErrInvalidArgument)
	}
	logger := s.logger.With(slog.Int64("bookID", l.Book.ID), slog.String("customer", l.Customer))

	var created *Loan
	attempt := func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
			onLoan, err := NewAvailabilityChecker(tx).IsBookOnLoan(ctx, l.Book.ID)
			if err != nil {
				return err
			}
			if onLoan {
				return apperrors.ErrBookUnavailable
			}

			candidate := *l
			candidate.ID = 0
			candidate.LoanDate = Today(s.now())
			candidate.Returned = nil

			created, err = tx.Create(ctx, &candidate)
			return err
		})
	}

	opts := append([]retry.Option{
		retry.WithOnRetry(func(n int, err error) {
			monitoring.RecordLoanConflict("retried")
			logger.WarnContext(ctx, "Loan creation conflicted, retrying", slog.Int("attempt", n), slog.Any("error", err))
		}),
	}, s.retryOpts...)

	if err := retry.Do(ctx, attempt, opts...); err != nil {
		if errors.Is(err, apperrors.ErrBookUnavailable) {
			monitoring.RecordLoanConflict("rejected")
			logger.WarnContext(ctx, "Rejected loan for a book that is currently loaned")
			return nil, err
		}
		logger.ErrorContext(ctx, "Failed to save loan", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save loan: %w", err)
	}

	monitoring.RecordLoanCreated()
	logger.InfoContext(ctx, "Loan saved", slog.Int64("loanID", created.ID))
	return created, nil
}

func (s *loanService) GetByID(ctx context.Context, id int64) (optional.Optional[Loan], error) {
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get loan by ID", slog.Int64("loanID", id), slog.Any("error", err))
		return optional.None[Loan](), fmt.Errorf("failed to get loan %d: %w", id, err)
	}
	return found, nil
}

// Update persists the returned flag. Returned is terminal: a returned loan cannot be
// set active again, and returning it twice changes nothing.
func (s *loanService) Update(ctx context.Context, l *Loan) (*Loan, error) {
	if l == nil || l.ID == 0 {
		return nil, fmt.Errorf("%w: loan id cannot be null", apperrors.ErrInvalidArgument)
	}
	logger := s.logger.With(slog.Int64("loanID", l.ID))

	var (
		updated  *Loan
		returned bool
	)
	attempt := func(ctx context.Context) error {
		return s.repo.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
			found, err := tx.FindByID(ctx, l.ID)
			if err != nil {
				return err
			}
			current, ok := found.Get()
			if !ok {
				return apperrors.ErrNotFound
			}

			if !current.IsActive() {
				if l.IsActive() {
					return apperrors.ErrLoanReturned
				}
				updated, returned = &current, false
				return nil
			}

			updated, err = tx.Update(ctx, l)
			returned = err == nil && !updated.IsActive()
			return err
		})
	}

	opts := append([]retry.Option{
		retry.WithOnRetry(func(n int, err error) {
			logger.WarnContext(ctx, "Loan update conflicted, retrying", slog.Int("attempt", n), slog.Any("error", err))
		}),
	}, s.retryOpts...)

	if err := retry.Do(ctx, attempt, opts...); err != nil {
		if errors.Is(err, apperrors.ErrLoanReturned) {
			logger.WarnContext(ctx, "Rejected reopening a returned loan")
			return nil, err
		}
		logger.ErrorContext(ctx, "Failed to update loan", slog.Any("error", err))
		return nil, fmt.Errorf("failed to update loan %d: %w", l.ID, err)
	}

	if returned {
		monitoring.RecordLoanReturned()
	}
	logger.InfoContext(ctx, "Loan updated", slog.Bool("active", updated.IsActive()))
	return updated, nil
}

func (s *loanService) FindByIsbnOrCustomer(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[Loan], error) {
	result, err := s.repo.FindByIsbnOrCustomer(ctx, isbn, customer, page)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find loans", slog.Any("error", err))
		return query.Page[Loan]{}, fmt.Errorf("failed to find loans: %w", err)
	}
	return result, nil
}

func (s *loanService) FindByBook(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[Loan], error) {
	result, err := s.repo.FindByBook(ctx, bookID, page)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find loans of book", slog.Int64("bookID", bookID), slog.Any("error", err))
		return query.Page[Loan]{}, fmt.Errorf("failed to find loans of book %d: %w", bookID, err)
	}
	return result, nil
}

func (s *loanService) GetOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]Loan, error) {
	loans, err := s.repo.FindOverdueUnreturned(ctx, Today(cutoff))
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to query overdue loans", slog.Time("cutoff", cutoff), slog.Any("error", err))
		return nil, fmt.Errorf("failed to query overdue loans: %w", err)
	}
	return loans, nil
}

func (s *loanService) GetAllLateLoans(ctx context.Context) ([]Loan, error) {
	return s.GetOverdueUnreturned(ctx, OverdueCutoff(s.now(), s.overdueDays))
}
