package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
)

const (
	loanOnBookSQL = `SELECT EXISTS (SELECT 1 FROM loans WHERE book_id = $1 AND returned IS NOT TRUE)`

	insertLoanSQL = `
        INSERT INTO loans (book_id, customer, customer_email, loan_date, returned)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id`

	selectLoanByIDSQL = `
        SELECT l.id, l.customer, l.customer_email, l.loan_date, l.returned, b.id, b.title, b.author, b.isbn
        FROM loans l
        JOIN books b ON b.id = l.book_id
        WHERE l.id = $1`

	updateLoanReturnedSQL = `
        UPDATE loans
        SET returned = $1
        WHERE id = $2`

	selectOverdueLoansSQL = `
        SELECT l.id, l.customer, l.customer_email, l.loan_date, l.returned, b.id, b.title, b.author, b.isbn
        FROM loans l
        JOIN books b ON b.id = l.book_id
        WHERE l.loan_date <= $1 AND l.returned IS NOT TRUE
        ORDER BY l.loan_date ASC, l.id ASC`
)

var loanSelectColumns = []any{
	goqu.I("l.id"), goqu.I("l.customer"), goqu.I("l.customer_email"), goqu.I("l.loan_date"), goqu.I("l.returned"),
	goqu.I("b.id"), goqu.I("b.title"), goqu.I("b.author"), goqu.I("b.isbn"),
}

// LoanRepository runs on the pool, or on a transaction when created by WithinTx.
type LoanRepository struct {
	pool   DBPool
	db     Querier
	inTx   bool
	logger *slog.Logger
}

var _ loan.Repository = (*LoanRepository)(nil)

func NewLoanRepository(pool DBPool, logger *slog.Logger) *LoanRepository {
	if pool == nil {
		panic("DBPool cannot be nil for LoanRepository")
	}
	return &LoanRepository{pool: pool, db: pool, logger: logger.With("component", "LoanRepository")}
}

// WithinTx runs fn in a SERIALIZABLE transaction. Serialization failures surface as apperrors.ErrConflict.
func (r *LoanRepository) WithinTx(ctx context.Context, fn loan.TxFunc) error {
	if r.inTx {
		return fn(ctx, r)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	committed := false
	defer func() {
		if !committed {
			r.rollbackTx(ctx, tx)
		}
	}()

	if err := fn(ctx, &LoanRepository{pool: r.pool, db: tx, inTx: true, logger: r.logger}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return translateDBError(err, r.logger)
	}
	committed = true
	return nil
}

func (r *LoanRepository) rollbackTx(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
	}
}

func (r *LoanRepository) IsBookOnLoan(ctx context.Context, bookID int64) (bool, error) {
	start := time.Now()
	var onLoan bool
	err := r.db.QueryRow(ctx, loanOnBookSQL, bookID).Scan(&onLoan)
	monitoring.RecordDBQuery("IsBookOnLoan", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to check book availability", "book_id", bookID, "error", err)
		return false, translateDBError(err, r.logger)
	}
	return onLoan, nil
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	start := time.Now()
	created := *l
	err := r.db.QueryRow(ctx, insertLoanSQL, l.Book.ID, l.Customer, l.CustomerEmail, l.LoanDate, l.Returned).Scan(&created.ID)
	monitoring.RecordDBQuery("CreateLoan", statusOf(err), time.Since(start))
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok {
			switch {
			case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintOneActivePerBook:
				r.logger.WarnContext(ctx, "Active loan already exists for book", "book_id", l.Book.ID)
				return nil, apperrors.ErrBookUnavailable
			case pgErr.Code == codeForeignKeyViolation && pgErr.ConstraintName == constraintLoansBookForeign:
				r.logger.WarnContext(ctx, "Loan references a missing book", "book_id", l.Book.ID)
				return nil, apperrors.ErrBookNotFound
			}
		}
		r.logger.ErrorContext(ctx, "Failed to insert loan", "error", err)
		return nil, translateDBError(err, r.logger)
	}

	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID, "book_id", l.Book.ID)
	return &created, nil
}

func (r *LoanRepository) FindByID(ctx context.Context, id int64) (optional.Optional[loan.Loan], error) {
	start := time.Now()
	l, err := scanLoan(r.db.QueryRow(ctx, selectLoanByIDSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		monitoring.RecordDBQuery("GetLoanByID", "success", time.Since(start))
		return optional.None[loan.Loan](), nil
	}
	monitoring.RecordDBQuery("GetLoanByID", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to get loan by ID", "loan_id", id, "error", err)
		return optional.None[loan.Loan](), fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return optional.Some(l), nil
}

func (r *LoanRepository) Update(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	start := time.Now()
	tag, err := r.db.Exec(ctx, updateLoanReturnedSQL, l.Returned, l.ID)
	monitoring.RecordDBQuery("UpdateLoan", statusOf(err), time.Since(start))
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintOneActivePerBook {
			r.logger.WarnContext(ctx, "Loan reactivation rejected, book has another active loan", "loan_id", l.ID)
			return nil, apperrors.ErrBookUnavailable
		}
		r.logger.ErrorContext(ctx, "Failed to update loan", "loan_id", l.ID, "error", err)
		return nil, translateDBError(err, r.logger)
	}
	if tag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Update affected zero rows, loan likely not found", "loan_id", l.ID)
		return nil, apperrors.ErrNotFound
	}
	updated := *l
	return &updated, nil
}

func (r *LoanRepository) FindByIsbnOrCustomer(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[loan.Loan], error) {
	return r.findPage(ctx, "FindLoansByIsbnOrCustomer", isbnOrCustomerCondition(isbn, customer), page)
}

func (r *LoanRepository) FindByBook(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[loan.Loan], error) {
	return r.findPage(ctx, "FindLoansByBook", bookCondition(bookID), page)
}

func (r *LoanRepository) FindOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]loan.Loan, error) {
	start := time.Now()
	rows, err := r.db.Query(ctx, selectOverdueLoansSQL, cutoff)
	if err != nil {
		monitoring.RecordDBQuery("FindOverdueLoans", "error", time.Since(start))
		r.logger.ErrorContext(ctx, "Failed to query overdue loans", "cutoff", cutoff, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	loans, err := collectLoans(rows)
	monitoring.RecordDBQuery("FindOverdueLoans", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read overdue loans", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return loans, nil
}

func (r *LoanRepository) findPage(ctx context.Context, name string, cond exp.Expression, page query.PageRequest) (query.Page[loan.Loan], error) {
	selectSQL, selectArgs, countSQL, countArgs, err := buildLoanPageQueries(cond, page)
	if err != nil {
		return query.Page[loan.Loan]{}, err
	}

	start := time.Now()
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		monitoring.RecordDBQuery(name, "error", time.Since(start))
		r.logger.ErrorContext(ctx, "Failed to count loans", "query", name, "error", err)
		return query.Page[loan.Loan]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	rows, err := r.db.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		monitoring.RecordDBQuery(name, "error", time.Since(start))
		r.logger.ErrorContext(ctx, "Failed to query loans", "query", name, "error", err)
		return query.Page[loan.Loan]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	loans, err := collectLoans(rows)
	monitoring.RecordDBQuery(name, statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to read loans", "query", name, "error", err)
		return query.Page[loan.Loan]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return query.NewPage(loans, total, page), nil
}

// isbnOrCustomerCondition mirrors loan.Loan.MatchesIsbnOrCustomer. A nil result selects every loan.
func isbnOrCustomerCondition(isbn, customer string) exp.Expression {
	ors := make([]exp.Expression, 0, 2)
	if isbn != "" {
		ors = append(ors, goqu.I("b.isbn").Eq(isbn))
	}
	if customer != "" {
		ors = append(ors, goqu.I("l.customer").Eq(customer))
	}
	if len(ors) == 0 {
		return nil
	}
	return goqu.Or(ors...)
}

func bookCondition(bookID int64) exp.Expression {
	return goqu.I("l.book_id").Eq(bookID)
}

func buildLoanPageQueries(cond exp.Expression, page query.PageRequest) (string, []any, string, []any, error) {
	base := dialect.From(goqu.T("loans").As("l")).
		Join(goqu.T("books").As("b"), goqu.On(goqu.I("b.id").Eq(goqu.I("l.book_id")))).
		Prepared(true)
	if cond != nil {
		base = base.Where(cond)
	}

	selectSQL, selectArgs, err := pageWindow(base.Select(loanSelectColumns...).Order(goqu.I("l.id").Asc()), page).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("%w: building loan query: %w", apperrors.ErrInternalServer, err)
	}
	countSQL, countArgs, err := base.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("%w: building loan count: %w", apperrors.ErrInternalServer, err)
	}
	return selectSQL, selectArgs, countSQL, countArgs, nil
}

func scanLoan(row pgx.Row) (loan.Loan, error) {
	var l loan.Loan
	var b book.Book
	err := row.Scan(&l.ID, &l.Customer, &l.CustomerEmail, &l.LoanDate, &l.Returned, &b.ID, &b.Title, &b.Author, &b.Isbn)
	l.Book = b
	return l, err
}

func collectLoans(rows pgx.Rows) ([]loan.Loan, error) {
	loans := make([]loan.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return loans, nil
}
