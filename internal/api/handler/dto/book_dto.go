package dto

import (
	"strings"

	"library-api/internal/domain/book"
	"library-api/internal/pkg/apperrors"
)

type CreateBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Isbn   string `json:"isbn"`
}

func (r *CreateBookRequest) Validate() error {
	var errs apperrors.ValidationErrors
	requireText(&errs, "title", r.Title)
	requireText(&errs, "author", r.Author)
	requireText(&errs, "isbn", r.Isbn)
	return errs.ErrOrNil()
}

// UpdateBookRequest carries the mutable fields of a book. The ISBN cannot be changed.
type UpdateBookRequest struct {
	Title  string `json:"title"`
	Author string `json:"author"`
}

func (r *UpdateBookRequest) Validate() error {
	var errs apperrors.ValidationErrors
	requireText(&errs, "title", r.Title)
	requireText(&errs, "author", r.Author)
	return errs.ErrOrNil()
}

type BookResponse struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Isbn   string `json:"isbn"`
}

func NewBookResponse(b book.Book) BookResponse {
	return BookResponse{ID: b.ID, Title: b.Title, Author: b.Author, Isbn: b.Isbn}
}

type AvailabilityResponse struct {
	BookID    int64 `json:"bookId"`
	Available bool  `json:"available"`
}

func requireText(errs *apperrors.ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		errs.Add(field, field+" must not be blank")
	}
}
