package book

import (
	"context"

	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
)

type Repository interface {
	ExistsByIsbn(ctx context.Context, isbn string) (bool, error)

	// Create inserts a book and returns it with its assigned id.
	// A concurrent insert of the same ISBN yields apperrors.ErrDuplicateIsbn.
	Create(ctx context.Context, b *Book) (*Book, error)

	FindByID(ctx context.Context, id int64) (optional.Optional[Book], error)

	FindByIsbn(ctx context.Context, isbn string) (optional.Optional[Book], error)

	// Update writes title and author. Returns apperrors.ErrNotFound when no row matched.
	Update(ctx context.Context, b *Book) (*Book, error)

	// Delete returns apperrors.ErrNotFound when no row matched.
	Delete(ctx context.Context, id int64) error

	Find(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[Book], error)
}
