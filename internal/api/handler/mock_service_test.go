package handler_test

import (
	"context"

	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/library"
	"library-api/internal/pkg/query"

	"github.com/stretchr/testify/mock"
)

type MockLibraryService struct {
	mock.Mock
}

var _ library.Service = (*MockLibraryService)(nil)

func (m *MockLibraryService) CreateBook(ctx context.Context, title, author, isbn string) (*book.Book, error) {
	args := m.Called(ctx, title, author, isbn)
	b, _ := args.Get(0).(*book.Book)
	return b, args.Error(1)
}

func (m *MockLibraryService) GetBook(ctx context.Context, id int64) (*book.Book, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*book.Book)
	return b, args.Error(1)
}

func (m *MockLibraryService) UpdateBook(ctx context.Context, id int64, title, author string) (*book.Book, error) {
	args := m.Called(ctx, id, title, author)
	b, _ := args.Get(0).(*book.Book)
	return b, args.Error(1)
}

func (m *MockLibraryService) DeleteBook(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLibraryService) FindBooks(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[book.Book], error) {
	args := m.Called(ctx, filter, page)
	return args.Get(0).(query.Page[book.Book]), args.Error(1)
}

func (m *MockLibraryService) BookLoans(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[loan.Loan], error) {
	args := m.Called(ctx, bookID, page)
	return args.Get(0).(query.Page[loan.Loan]), args.Error(1)
}

func (m *MockLibraryService) BookAvailability(ctx context.Context, bookID int64) (bool, error) {
	args := m.Called(ctx, bookID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLibraryService) CreateLoan(ctx context.Context, isbn, customer, email string) (int64, error) {
	args := m.Called(ctx, isbn, customer, email)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLibraryService) ReturnLoan(ctx context.Context, id int64, returned bool) error {
	args := m.Called(ctx, id, returned)
	return args.Error(0)
}

func (m *MockLibraryService) FindLoans(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[loan.Loan], error) {
	args := m.Called(ctx, isbn, customer, page)
	return args.Get(0).(query.Page[loan.Loan]), args.Error(1)
}
