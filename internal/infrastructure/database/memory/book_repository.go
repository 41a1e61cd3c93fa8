package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"library-api/internal/domain/book"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"
)

type BookRepository struct {
	store *Store
}

var _ book.Repository = (*BookRepository)(nil)

func NewBookRepository(store *Store) *BookRepository {
	return &BookRepository{store: store}
}

func (r *BookRepository) ExistsByIsbn(_ context.Context, isbn string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, ok := r.findByIsbn(isbn)
	return ok, nil
}

func (r *BookRepository) Create(_ context.Context, b *book.Book) (*book.Book, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.findByIsbn(b.Isbn); ok {
		return nil, apperrors.ErrDuplicateIsbn
	}

	r.store.nextBookID++
	created := *b
	created.ID = r.store.nextBookID
	r.store.books[created.ID] = created
	return &created, nil
}

func (r *BookRepository) FindByID(_ context.Context, id int64) (optional.Optional[book.Book], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	b, ok := r.store.books[id]
	if !ok {
		return optional.None[book.Book](), nil
	}
	return optional.Some(b), nil
}

func (r *BookRepository) FindByIsbn(_ context.Context, isbn string) (optional.Optional[book.Book], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	b, ok := r.findByIsbn(isbn)
	if !ok {
		return optional.None[book.Book](), nil
	}
	return optional.Some(b), nil
}

func (r *BookRepository) Update(_ context.Context, b *book.Book) (*book.Book, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored, ok := r.store.books[b.ID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	stored.Title = b.Title
	stored.Author = b.Author
	r.store.books[b.ID] = stored
	return &stored, nil
}

func (r *BookRepository) Delete(_ context.Context, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, ok := r.store.books[id]; !ok {
		return apperrors.ErrNotFound
	}
	if r.store.hasAnyLoan(id) {
		return fmt.Errorf("%w: book %d has loans", apperrors.ErrConflict, id)
	}
	delete(r.store.books, id)
	return nil
}

func (r *BookRepository) Find(_ context.Context, filter query.Filter, page query.PageRequest) (query.Page[book.Book], error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	matched := make([]book.Book, 0)
	for _, b := range r.store.books {
		if filter.Match(b.Field) {
			matched = append(matched, b)
		}
	}
	slices.SortFunc(matched, func(a, b book.Book) int { return cmp.Compare(a.ID, b.ID) })
	return query.Slice(matched, page), nil
}

func (r *BookRepository) findByIsbn(isbn string) (book.Book, bool) {
	for _, b := range r.store.books {
		if b.Isbn == isbn {
			return b, true
		}
	}
	return book.Book{}, false
}
