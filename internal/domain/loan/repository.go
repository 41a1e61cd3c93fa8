package loan

import (
	"context"
	"time"

	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
)

// TxFunc runs against a repository bound to a single transaction.
type TxFunc func(ctx context.Context, tx Repository) error

type Repository interface {
	// WithinTx runs fn in one serializable unit of work. Called on a repository
	// that is already transactional it reuses the current transaction.
	WithinTx(ctx context.Context, fn TxFunc) error

	IsBookOnLoan(ctx context.Context, bookID int64) (bool, error)

	// Create inserts a loan. A second active loan for the same book yields
	// apperrors.ErrBookUnavailable; a serialization failure yields apperrors.ErrConflict.
	Create(ctx context.Context, l *Loan) (*Loan, error)

	FindByID(ctx context.Context, id int64) (optional.Optional[Loan], error)

	// Update rewrites the returned flag. Returns apperrors.ErrNotFound when no row matched.
	Update(ctx context.Context, l *Loan) (*Loan, error)

	// FindByIsbnOrCustomer pages through loans selected by Loan.MatchesIsbnOrCustomer, ordered by id.
	FindByIsbnOrCustomer(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[Loan], error)

	FindByBook(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[Loan], error)

	// FindOverdueUnreturned returns active loans dated on or before cutoff, oldest first.
	FindOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]Loan, error)
}
