package book

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"library-api/internal/infrastructure/monitoring"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
)

type Service interface {
	Save(ctx context.Context, b *Book) (*Book, error)
	GetByID(ctx context.Context, id int64) (optional.Optional[Book], error)
	Update(ctx context.Context, b *Book) (*Book, error)
	Delete(ctx context.Context, b *Book) error
	Find(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[Book], error)
	GetByIsbn(ctx context.Context, isbn string) (optional.Optional[Book], error)
}

var _ Service = (*bookService)(nil)

type bookService struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) Service {
	if repo == nil {
		panic("book repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to book.NewService, using default stderr handler")
	}
	return &bookService{
		repo:   repo,
		logger: logger.With(slog.String("component", "bookService")),
	}
}

func (s *bookService) Save(ctx context.Context, b *Book) (*Book, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: book cannot be nil", apperrors.ErrInvalidArgument)
	}
	logger := s.logger.With(slog.String("isbn", b.Isbn))

	exists, err := s.repo.ExistsByIsbn(ctx, b.Isbn)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to check ISBN uniqueness", slog.Any("error", err))
		return nil, fmt.Errorf("failed to check isbn: %w", err)
	}
	if exists {
		logger.WarnContext(ctx, "Rejected book with duplicate ISBN")
		return nil, apperrors.ErrDuplicateIsbn
	}

	created, err := s.repo.Create(ctx, b)
	if err != nil {
		logger.ErrorContext(ctx, "Repository failed to save book", slog.Any("error", err))
		return nil, fmt.Errorf("failed to save book: %w", err)
	}

	monitoring.RecordBookCreated()
	logger.InfoContext(ctx, "Book saved", slog.Int64("bookID", created.ID))
	return created, nil
}

func (s *bookService) GetByID(ctx context.Context, id int64) (optional.Optional[Book], error) {
	found, err := s.repo.FindByID(ctx, id)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get book by ID", slog.Int64("bookID", id), slog.Any("error", err))
		return optional.None[Book](), fmt.Errorf("failed to get book %d: %w", id, err)
	}
	return found, nil
}

// Update replaces title and author. The ISBN is fixed at creation and never rewritten.
func (s *bookService) Update(ctx context.Context, b *Book) (*Book, error) {
	if b == nil || b.ID == 0 {
		return nil, fmt.Errorf("%w: Book id cannot be null!", apperrors.ErrInvalidArgument)
	}

	updated, err := s.repo.Update(ctx, b)
	if err != nil {
		s.logger.ErrorContext(ctx, "Repository failed to update book", slog.Int64("bookID", b.ID), slog.Any("error", err))
		return nil, fmt.Errorf("failed to update book %d: %w", b.ID, err)
	}

	s.logger.InfoContext(ctx, "Book updated", slog.Int64("bookID", updated.ID))
	return updated, nil
}

func (s *bookService) Delete(ctx context.Context, b *Book) error {
	if b == nil || b.ID == 0 {
		return fmt.Errorf("%w: Book id cannot be null!", apperrors.ErrInvalidArgument)
	}

	if err := s.repo.Delete(ctx, b.ID); err != nil {
		s.logger.ErrorContext(ctx, "Repository failed to delete book", slog.Int64("bookID", b.ID), slog.Any("error", err))
		return fmt.Errorf("failed to delete book %d: %w", b.ID, err)
	}

	s.logger.InfoContext(ctx, "Book deleted", slog.Int64("bookID", b.ID))
	return nil
}

func (s *bookService) Find(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[Book], error) {
	if err := filter.Validate(FilterFields...); err != nil {
		return query.Page[Book]{}, err
	}

	result, err := s.repo.Find(ctx, filter, page)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to find books", slog.Any("error", err))
		return query.Page[Book]{}, fmt.Errorf("failed to find books: %w", err)
	}
	return result, nil
}

func (s *bookService) GetByIsbn(ctx context.Context, isbn string) (optional.Optional[Book], error) {
	found, err := s.repo.FindByIsbn(ctx, isbn)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to get book by ISBN", slog.String("isbn", isbn), slog.Any("error", err))
		return optional.None[Book](), fmt.Errorf("failed to get book by isbn: %w", err)
	}
	return found, nil
}
