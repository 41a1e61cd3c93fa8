package handler_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"library-api/internal/api/handler"
	"library-api/internal/config"
	"library-api/internal/domain/book"
	"library-api/internal/domain/loan"
	"library-api/internal/pkg/apperrors"
	"library-api/internal/pkg/query"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newRouter(svc *MockLibraryService) http.Handler {
	books := handler.NewBookHandler(svc, discard)
	loans := handler.NewLoanHandler(svc, discard)

	r := chi.NewRouter()
	r.Post("/books", books.CreateBook)
	r.Get("/books", books.FindBooks)
	r.Get("/books/{id}", books.GetBook)
	r.Put("/books/{id}", books.UpdateBook)
	r.Delete("/books/{id}", books.DeleteBook)
	r.Get("/books/{id}/loans", books.BookLoans)
	r.Get("/books/{id}/availability", books.Availability)
	r.Post("/loans", loans.CreateLoan)
	r.Get("/loans", loans.FindLoans)
	r.Patch("/loans/{id}", loans.ReturnLoan)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateBook(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateBook", mock.Anything, "Dune", "Herbert", "123").
			Return(&book.Book{ID: 7, Title: "Dune", Author: "Herbert", Isbn: "123"}, nil)

		rec := do(t, newRouter(svc), http.MethodPost, "/books", `{"title":"Dune","author":"Herbert","isbn":"123"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"id":7,"title":"Dune","author":"Herbert","isbn":"123"}`, rec.Body.String())
		svc.AssertExpectations(t)
	})

	t.Run("lists every blank field", func(t *testing.T) {
		svc := new(MockLibraryService)

		rec := do(t, newRouter(svc), http.MethodPost, "/books", `{"title":" ","author":"","isbn":""}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["title must not be blank","author must not be blank","isbn must not be blank"]}`, rec.Body.String())
		svc.AssertNotCalled(t, "CreateBook", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateBook", mock.Anything, "Dune", "Herbert", "123").Return(nil, apperrors.ErrDuplicateIsbn)

		rec := do(t, newRouter(svc), http.MethodPost, "/books", `{"title":"Dune","author":"Herbert","isbn":"123"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["ISBN already exists!"]}`, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodPost, "/books", `{"title":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["malformed request body"]}`, rec.Body.String())
	})

	t.Run("missing body", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodPost, "/books", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["request body is required"]}`, rec.Body.String())
	})
}

func TestGetBook(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("GetBook", mock.Anything, int64(3)).Return(&book.Book{ID: 3, Title: "T", Author: "A", Isbn: "I"}, nil)

		rec := do(t, newRouter(svc), http.MethodGet, "/books/3", "")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"id":3,"title":"T","author":"A","isbn":"I"}`, rec.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("GetBook", mock.Anything, int64(3)).Return(nil, fmt.Errorf("%w: book 3", apperrors.ErrNotFound))

		rec := do(t, newRouter(svc), http.MethodGet, "/books/3", "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodGet, "/books/abc", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["id must be a positive number"]}`, rec.Body.String())
	})

	t.Run("unexpected error is hidden", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("GetBook", mock.Anything, int64(3)).Return(nil, apperrors.WrapDatabaseError(errors.New("conn reset"), "failed"))

		rec := do(t, newRouter(svc), http.MethodGet, "/books/3", "")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "conn reset")
	})
}

func TestUpdateAndDeleteBook(t *testing.T) {
	svc := new(MockLibraryService)
	svc.On("UpdateBook", mock.Anything, int64(4), "New", "Author").
		Return(&book.Book{ID: 4, Title: "New", Author: "Author", Isbn: "I"}, nil)
	svc.On("DeleteBook", mock.Anything, int64(4)).Return(nil).Once()
	svc.On("DeleteBook", mock.Anything, int64(5)).Return(fmt.Errorf("%w: book has loans", apperrors.ErrConflict)).Once()
	router := newRouter(svc)

	rec := do(t, router, http.MethodPut, "/books/4", `{"title":"New","author":"Author"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":4,"title":"New","author":"Author","isbn":"I"}`, rec.Body.String())

	rec = do(t, router, http.MethodPut, "/books/4", `{"title":"New","author":"Author","isbn":"X"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "isbn is not updatable")

	rec = do(t, router, http.MethodDelete, "/books/4", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, router, http.MethodDelete, "/books/5", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	svc.AssertExpectations(t)
}

func TestFindBooks(t *testing.T) {
	svc := new(MockLibraryService)
	filter := book.ExampleFilter(book.Book{Title: "aven", Author: "poe"})
	page := query.NewPageRequest(1, 2)
	result := query.NewPage([]book.Book{{ID: 3, Title: "The Raven", Author: "Poe", Isbn: "3"}}, 3, page)
	svc.On("FindBooks", mock.Anything, filter, page).Return(result, nil)

	rec := do(t, newRouter(svc), http.MethodGet, "/books?title=aven&author=poe&page=1&size=2", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"content":[{"id":3,"title":"The Raven","author":"Poe","isbn":"3"}],
		"totalElements":3,"page":1,"size":2,"totalPages":2
	}`, rec.Body.String())

	t.Run("invalid paging", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodGet, "/books?page=-1&size=x", "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["page must be a non-negative integer","size must be a non-negative integer"]}`, rec.Body.String())
	})
}

func TestBookLoansAndAvailability(t *testing.T) {
	svc := new(MockLibraryService)
	b := book.Book{ID: 2, Title: "T", Author: "A", Isbn: "I"}
	page := query.NewPageRequest(0, query.DefaultPageSize)
	loans := query.NewPage([]loan.Loan{{ID: 9, Book: b, Customer: "Fulano", LoanDate: time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)}}, 1, page)
	svc.On("BookLoans", mock.Anything, int64(2), page).Return(loans, nil)
	svc.On("BookAvailability", mock.Anything, int64(2)).Return(false, nil)
	router := newRouter(svc)

	rec := do(t, router, http.MethodGet, "/books/2/loans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"content":[{"id":9,"isbn":"I","customer":"Fulano","loanDate":"2024-05-20","returned":false,
			"book":{"id":2,"title":"T","author":"A","isbn":"I"}}],
		"totalElements":1,"page":0,"size":10,"totalPages":1
	}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/books/2/availability", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bookId":2,"available":false}`, rec.Body.String())
}

func TestCreateLoan(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateLoan", mock.Anything, "123", "Fulano", "fulano@email.com").Return(int64(11), nil)

		rec := do(t, newRouter(svc), http.MethodPost, "/loans", `{"isbn":"123","customer":"Fulano","email":"fulano@email.com"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.JSONEq(t, `{"id":11}`, rec.Body.String())
	})

	t.Run("book already loaned", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateLoan", mock.Anything, "123", "Fulano", "").Return(int64(0), apperrors.ErrBookUnavailable)

		rec := do(t, newRouter(svc), http.MethodPost, "/loans", `{"isbn":"123","customer":"Fulano"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["Book is currently loaned!"]}`, rec.Body.String())
	})

	t.Run("unknown isbn", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateLoan", mock.Anything, "999", "Fulano", "").Return(int64(0), apperrors.ErrBookNotFound)

		rec := do(t, newRouter(svc), http.MethodPost, "/loans", `{"isbn":"999","customer":"Fulano"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["Book not found for provided Isbn!"]}`, rec.Body.String())
	})

	t.Run("contended book", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("CreateLoan", mock.Anything, "123", "Fulano", "").Return(int64(0), apperrors.ErrConflict)

		rec := do(t, newRouter(svc), http.MethodPost, "/loans", `{"isbn":"123","customer":"Fulano"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodPost, "/loans", `{"isbn":"","customer":"","email":"nope"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["isbn must not be blank","customer must not be blank","email must be a well-formed email address"]}`, rec.Body.String())
	})
}

func TestReturnLoan(t *testing.T) {
	t.Run("returned", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("ReturnLoan", mock.Anything, int64(1), true).Return(nil)

		rec := do(t, newRouter(svc), http.MethodPatch, "/loans/1", `{"returned":true}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})

	t.Run("unknown loan", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("ReturnLoan", mock.Anything, int64(42), true).Return(fmt.Errorf("%w: loan 42", apperrors.ErrNotFound))

		rec := do(t, newRouter(svc), http.MethodPatch, "/loans/42", `{"returned":true}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"errors":["Book referred to by 42 does not exist!"]}`, rec.Body.String())
	})

	t.Run("returned loan cannot be reopened", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("ReturnLoan", mock.Anything, int64(1), false).Return(apperrors.ErrLoanReturned)

		rec := do(t, newRouter(svc), http.MethodPatch, "/loans/1", `{"returned":false}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["Loan is already returned!"]}`, rec.Body.String())
	})

	t.Run("unique violation surfaces as conflict", func(t *testing.T) {
		svc := new(MockLibraryService)
		svc.On("ReturnLoan", mock.Anything, int64(1), false).Return(fmt.Errorf("%w: loans_one_active_per_book", apperrors.ErrAlreadyExists))

		rec := do(t, newRouter(svc), http.MethodPatch, "/loans/1", `{"returned":false}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("null flag", func(t *testing.T) {
		rec := do(t, newRouter(new(MockLibraryService)), http.MethodPatch, "/loans/1", `{}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["returned must not be null"]}`, rec.Body.String())
	})
}

func TestFindLoans(t *testing.T) {
	svc := new(MockLibraryService)
	page := query.NewPageRequest(0, 5)
	svc.On("FindLoans", mock.Anything, "123", "Fulano", page).Return(query.NewPage([]loan.Loan{}, 0, page), nil)

	rec := do(t, newRouter(svc), http.MethodGet, "/loans?isbn=123&customer=Fulano&size=5", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"content":[],"totalElements":0,"page":0,"size":5,"totalPages":0}`, rec.Body.String())
}

func TestGenerateBearerToken(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, JWTSecret: "secret", TokenTTL: time.Hour}
	h := handler.NewAuthHandler(cfg, discard)

	t.Run("issues a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":"alice"}`))
		rec := httptest.NewRecorder()
		h.GenerateBearerToken(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"token":"Bearer `)
		assert.Contains(t, rec.Body.String(), `"expiresAt":`)
	})

	t.Run("requires a username", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":" "}`))
		rec := httptest.NewRecorder()
		h.GenerateBearerToken(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"errors":["username must not be blank"]}`, rec.Body.String())
	})

	t.Run("fails without a secret", func(t *testing.T) {
		noSecret := handler.NewAuthHandler(config.AuthConfig{TokenTTL: time.Hour}, discard)
		req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(`{"username":"alice"}`))
		rec := httptest.NewRecorder()
		noSecret.GenerateBearerToken(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}
