// Package library exposes the lending operations consumed by the HTTP API and the operator CLI.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/query"
)

type Service interface {
	CreateBook(ctx context.Context, title, author, isbn string) (*book.Book, error)
	GetBook(ctx context.Context, id int64) (*book.Book, error)
	UpdateBook(ctx context.Context, id int64, title, author string) (*book.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	FindBooks(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[book.Book], error)
	BookLoans(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[loan.Loan], error)
	BookAvailability(ctx context.Context, bookID int64) (bool, error)

	CreateLoan(ctx context.Context, isbn, customer, email string) (int64, error)
	ReturnLoan(ctx context.Context, id int64, returned bool) error
	FindLoans(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[loan.Loan], error)
}

var _ Service = (*libraryService)(nil)

type libraryService struct {
	books  book.Service
	loans  loan.Service
	logger *slog.Logger
}

func NewService(books book.Service, loans loan.Service, logger *slog.Logger) Service {
	if books == nil || loans == nil {
		panic("book and loan services cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to library.NewService, using default stderr handler")
	}
	return &libraryService{
		books:  books,
		loans:  loans,
		logger: logger.With(slog.String("component", "libraryService")),
	}
}

func (s *libraryService) CreateBook(ctx context.Context, title, author, isbn string) (*book.Book, error) {
	return s.books.Save(ctx, &book.Book{Title: title, Author: author, Isbn: isbn})
}

func (s *libraryService) GetBook(ctx context.Context, id int64) (*book.Book, error) {
	found, err := s.books.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b, ok := found.Get()
	if !ok {
		return nil, fmt.Errorf("%w: book %d", apperrors.ErrNotFound, id)
	}
	return &b, nil
}

// UpdateBook replaces title and author of an existing book.
func (s *libraryService) UpdateBook(ctx context.Context, id int64, title, author string) (*book.Book, error) {
	current, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	current.Title = title
	current.Author = author
	return s.books.Update(ctx, current)
}

func (s *libraryService) DeleteBook(ctx context.Context, id int64) error {
	current, err := s.GetBook(ctx, id)
	if err != nil {
		return err
	}
	return s.books.Delete(ctx, current)
}

func (s *libraryService) FindBooks(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[book.Book], error) {
	return s.books.Find(ctx, filter, page)
}

func (s *libraryService) BookLoans(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[loan.Loan], error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return query.Page[loan.Loan]{}, err
	}
	return s.loans.FindByBook(ctx, bookID, page)
}

func (s *libraryService) BookAvailability(ctx context.Context, bookID int64) (bool, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return false, err
	}
	onLoan, err := s.loans.IsBookOnLoan(ctx, bookID)
	if err != nil {
		return false, err
	}
	return !onLoan, nil
}

// CreateLoan lends the book identified by isbn and returns the new loan id.
func (s *libraryService) CreateLoan(ctx context.Context, isbn, customer, email string) (int64, error) {
	logger := s.logger.With(slog.String("isbn", isbn), slog.String("customer", customer))

	found, err := s.books.GetByIsbn(ctx, isbn)
	if err != nil {
		return 0, err
	}
	b, ok := found.Get()
	if !ok {
		logger.WarnContext(ctx, "Loan requested for unknown ISBN")
		return 0, apperrors.ErrBookNotFound
	}

	created, err := s.loans.Save(ctx, &loan.Loan{Book: b, Customer: customer, CustomerEmail: email})
	if err != nil {
		return 0, err
	}
	return created.ID, nil
}

// ReturnLoan sets the returned flag of a loan. Availability is only checked when a loan is created.
func (s *libraryService) ReturnLoan(ctx context.Context, id int64, returned bool) error {
	found, err := s.loans.GetByID(ctx, id)
	if err != nil {
		return err
	}
	l, ok := found.Get()
	if !ok {
		return fmt.Errorf("%w: loan %d", apperrors.ErrNotFound, id)
	}

	l.MarkReturned(returned)
	_, err = s.loans.Update(ctx, &l)
	return err
}

func (s *libraryService) FindLoans(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[loan.Loan], error) {
	return s.loans.FindByIsbnOrCustomer(ctx, isbn, customer, page)
}
