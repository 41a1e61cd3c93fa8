package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"library-api/internal/domain/book"
	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5"
)

const (
	existsBookByIsbnSQL = `SELECT EXISTS (SELECT 1 FROM books WHERE isbn = $1)`

	insertBookSQL = `
        INSERT INTO books (title, author, isbn)
        VALUES ($1, $2, $3)
        RETURNING id`

	selectBookByIDSQL = `
        SELECT id, title, author, isbn
        FROM books
        WHERE id = $1`

	selectBookByIsbnSQL = `
        SELECT id, title, author, isbn
        FROM books
        WHERE isbn = $1`

	updateBookSQL = `
        UPDATE books
        SET title = $1, author = $2
        WHERE id = $3
        RETURNING id, title, author, isbn`

	deleteBookSQL = `DELETE FROM books WHERE id = $1`
)

var bookColumns = map[string]exp.IdentifierExpression{
	book.FieldTitle:  goqu.C("title"),
	book.FieldAuthor: goqu.C("author"),
	book.FieldIsbn:   goqu.C("isbn"),
}

type BookRepository struct {
	db     Querier
	logger *slog.Logger
}

var _ book.Repository = (*BookRepository)(nil)

func NewBookRepository(db Querier, logger *slog.Logger) *BookRepository {
	if db == nil {
		panic("database cannot be nil for BookRepository")
	}
	return &BookRepository{db: db, logger: logger.With("component", "BookRepository")}
}

func (r *BookRepository) ExistsByIsbn(ctx context.Context, isbn string) (bool, error) {
	start := time.Now()
	var exists bool
	err := r.db.QueryRow(ctx, existsBookByIsbnSQL, isbn).Scan(&exists)
	monitoring.RecordDBQuery("ExistsBookByIsbn", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to check ISBN", "isbn", isbn, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return exists, nil
}

func (r *BookRepository) Create(ctx context.Context, b *book.Book) (*book.Book, error) {
	start := time.Now()
	created := *b
	err := r.db.QueryRow(ctx, insertBookSQL, b.Title, b.Author, b.Isbn).Scan(&created.ID)
	monitoring.RecordDBQuery("CreateBook", statusOf(err), time.Since(start))
	if err != nil {
		if pgErr, ok := pgErrorCode(err); ok && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintBooksIsbn {
			r.logger.WarnContext(ctx, "Book insert lost an ISBN race", "isbn", b.Isbn)
			return nil, apperrors.ErrDuplicateIsbn
		}
		r.logger.ErrorContext(ctx, "Failed to insert book", "error", err)
		return nil, fmt.Errorf("failed to insert book: %w", translateDBError(err, r.logger))
	}

	r.logger.InfoContext(ctx, "Book created in DB", "book_id", created.ID)
	return &created, nil
}

func (r *BookRepository) FindByID(ctx context.Context, id int64) (optional.Optional[book.Book], error) {
	return r.findOne(ctx, "GetBookByID", selectBookByIDSQL, id)
}

func (r *BookRepository) FindByIsbn(ctx context.Context, isbn string) (optional.Optional[book.Book], error) {
	return r.findOne(ctx, "GetBookByIsbn", selectBookByIsbnSQL, isbn)
}

func (r *BookRepository) findOne(ctx context.Context, name, sql string, arg any) (optional.Optional[book.Book], error) {
	start := time.Now()
	var b book.Book
	err := r.db.QueryRow(ctx, sql, arg).Scan(&b.ID, &b.Title, &b.Author, &b.Isbn)
	if errors.Is(err, pgx.ErrNoRows) {
		monitoring.RecordDBQuery(name, "success", time.Since(start))
		return optional.None[book.Book](), nil
	}
	monitoring.RecordDBQuery(name, statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to get book", "query", name, "error", err)
		return optional.None[book.Book](), fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return optional.Some(b), nil
}

func (r *BookRepository) Update(ctx context.Context, b *book.Book) (*book.Book, error) {
	start := time.Now()
	var updated book.Book
	err := r.db.QueryRow(ctx, updateBookSQL, b.Title, b.Author, b.ID).
		Scan(&updated.ID, &updated.Title, &updated.Author, &updated.Isbn)
	monitoring.RecordDBQuery("UpdateBook", statusOf(err), time.Since(start))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Update affected zero rows, book likely not found", "book_id", b.ID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to update book", "book_id", b.ID, "error", err)
		return nil, fmt.Errorf("failed to update book: %w", translateDBError(err, r.logger))
	}
	return &updated, nil
}

func (r *BookRepository) Delete(ctx context.Context, id int64) error {
	start := time.Now()
	tag, err := r.db.Exec(ctx, deleteBookSQL, id)
	monitoring.RecordDBQuery("DeleteBook", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete book", "book_id", id, "error", err)
		return fmt.Errorf("failed to delete book: %w", translateDBError(err, r.logger))
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *BookRepository) Find(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[book.Book], error) {
	selectSQL, selectArgs, countSQL, countArgs, err := buildFindBooksQueries(filter, page)
	if err != nil {
		return query.Page[book.Book]{}, err
	}

	start := time.Now()
	var total int64
	if err := r.db.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		monitoring.RecordDBQuery("CountBooks", "error", time.Since(start))
		r.logger.ErrorContext(ctx, "Failed to count books", "error", err)
		return query.Page[book.Book]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	rows, err := r.db.Query(ctx, selectSQL, selectArgs...)
	if err != nil {
		monitoring.RecordDBQuery("FindBooks", "error", time.Since(start))
		r.logger.ErrorContext(ctx, "Failed to query books", "error", err)
		return query.Page[book.Book]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	books := make([]book.Book, 0)
	for rows.Next() {
		var b book.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Isbn); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan book row", "error", err)
			return query.Page[book.Book]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		books = append(books, b)
	}
	err = rows.Err()
	monitoring.RecordDBQuery("FindBooks", statusOf(err), time.Since(start))
	if err != nil {
		r.logger.ErrorContext(ctx, "Error iterating book rows", "error", err)
		return query.Page[book.Book]{}, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}

	return query.NewPage(books, total, page), nil
}

func buildFindBooksQueries(filter query.Filter, page query.PageRequest) (string, []any, string, []any, error) {
	exprs, err := filterExpressions(filter, bookColumns)
	if err != nil {
		return "", nil, "", nil, err
	}

	base := dialect.From("books").Prepared(true).Where(exprs...)

	selectSQL, selectArgs, err := pageWindow(base.Select("id", "title", "author", "isbn").Order(goqu.C("id").Asc()), page).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("%w: building book query: %w", apperrors.ErrInternalServer, err)
	}
	countSQL, countArgs, err := base.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("%w: building book count: %w", apperrors.ErrInternalServer, err)
	}
	return selectSQL, selectArgs, countSQL, countArgs, nil
}
