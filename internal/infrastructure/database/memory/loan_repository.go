package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"library-api/internal/domain/loan"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
)

// LoanRepository serializes transactions by holding the store lock for their whole duration.
type LoanRepository struct {
	store *Store
	inTx  bool
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(store *Store) *LoanRepository {
	return &LoanRepository{store: store}
}

func (r *LoanRepository) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.store.mu.Lock()
	return r.store.mu.Unlock
}

// WithinTx rolls loan writes back when fn fails.
func (r *LoanRepository) WithinTx(ctx context.Context, fn loan.TxFunc) error {
	if r.inTx {
		return fn(ctx, r)
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	snap := r.store.snapshotLoans()
	if err := fn(ctx, &LoanRepository{store: r.store, inTx: true}); err != nil {
		r.store.restoreLoans(snap)
		return err
	}
	return nil
}

func (r *LoanRepository) IsBookOnLoan(_ context.Context, bookID int64) (bool, error) {
	defer r.lock()()
	return r.store.hasActiveLoan(bookID), nil
}

func (r *LoanRepository) Create(_ context.Context, l *loan.Loan) (*loan.Loan, error) {
	defer r.lock()()

	if _, ok := r.store.books[l.Book.ID]; !ok {
		return nil, apperrors.ErrBookNotFound
	}
	if r.store.hasActiveLoan(l.Book.ID) {
		return nil, apperrors.ErrBookUnavailable
	}

	r.store.nextLoanID++
	rec := loanRecord{
		id:            r.store.nextLoanID,
		bookID:        l.Book.ID,
		customer:      l.Customer,
		customerEmail: l.CustomerEmail,
		loanDate:      l.LoanDate,
		returned:      copyBool(l.Returned),
	}
	r.store.loans[rec.id] = rec

	created := r.toLoan(rec)
	return &created, nil
}

func (r *LoanRepository) FindByID(_ context.Context, id int64) (optional.Optional[loan.Loan], error) {
	defer r.lock()()

	rec, ok := r.store.loans[id]
	if !ok {
		return optional.None[loan.Loan](), nil
	}
	return optional.Some(r.toLoan(rec)), nil
}

func (r *LoanRepository) Update(_ context.Context, l *loan.Loan) (*loan.Loan, error) {
	defer r.lock()()

	rec, ok := r.store.loans[l.ID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !rec.active() && l.IsActive() && r.store.hasActiveLoan(rec.bookID) {
		return nil, apperrors.ErrBookUnavailable
	}
	rec.returned = copyBool(l.Returned)
	r.store.loans[rec.id] = rec

	updated := r.toLoan(rec)
	return &updated, nil
}

func (r *LoanRepository) FindByIsbnOrCustomer(_ context.Context, isbn, customer string, page query.PageRequest) (query.Page[loan.Loan], error) {
	defer r.lock()()

	return r.collect(page, func(rec loanRecord) bool {
		return r.toLoan(rec).MatchesIsbnOrCustomer(isbn, customer)
	}), nil
}

func (r *LoanRepository) FindByBook(_ context.Context, bookID int64, page query.PageRequest) (query.Page[loan.Loan], error) {
	defer r.lock()()

	return r.collect(page, func(rec loanRecord) bool { return rec.bookID == bookID }), nil
}

func (r *LoanRepository) FindOverdueUnreturned(_ context.Context, cutoff time.Time) ([]loan.Loan, error) {
	defer r.lock()()

	result := make([]loan.Loan, 0)
	for _, rec := range r.store.loans {
		l := r.toLoan(rec)
		if l.IsOverdue(cutoff) {
			result = append(result, l)
		}
	}
	slices.SortFunc(result, func(a, b loan.Loan) int {
		if c := a.LoanDate.Compare(b.LoanDate); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result, nil
}

func (r *LoanRepository) collect(page query.PageRequest, keep func(loanRecord) bool) query.Page[loan.Loan] {
	matched := make([]loan.Loan, 0)
	for _, rec := range r.store.loans {
		if keep(rec) {
			matched = append(matched, r.toLoan(rec))
		}
	}
	slices.SortFunc(matched, func(a, b loan.Loan) int { return cmp.Compare(a.ID, b.ID) })
	return query.Slice(matched, page)
}

func (r *LoanRepository) toLoan(rec loanRecord) loan.Loan {
	return loan.Loan{
		ID:            rec.id,
		Book:          r.store.books[rec.bookID],
		Customer:      rec.customer,
		CustomerEmail: rec.customerEmail,
		LoanDate:      rec.loanDate,
		Returned:      copyBool(rec.returned),
	}
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
