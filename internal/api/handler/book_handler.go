package handler

import (
	"log/slog"
	"net/http"

	"library-api/internal/api/handler/dto"
	"library-api/internal/domain/book"
	"library-api/internal/library"
)

type BookHandler struct {
	service library.Service
	logger  *slog.Logger
}

func NewBookHandler(s library.Service, l *slog.Logger) *BookHandler {
	if s == nil {
		panic("library service cannot be nil")
	}
	return &BookHandler{
		service: s,
		logger:  l.With("component", "BookHandler"),
	}
}

// CreateBook adds a book to the catalog.
//
// @Summary Create a book
// @Tags Books
// @Accept json
// @Produce json
// @Param request body dto.CreateBookRequest true "Book to create"
// @Success 201 {object} dto.BookResponse
// @Failure 400 {object} dto.ApiErrors "Validation error or duplicate ISBN"
// @Router /books [post]
// @Security BearerAuth
func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	created, err := h.service.CreateBook(r.Context(), req.Title, req.Author, req.Isbn)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.NewBookResponse(*created))
}

// GetBook returns one book.
//
// @Summary Get a book
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} dto.BookResponse
// @Failure 404 {object} dto.ApiErrors
// @Router /books/{id} [get]
// @Security BearerAuth
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	b, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewBookResponse(*b))
}

// UpdateBook replaces title and author.
//
// @Summary Update a book
// @Tags Books
// @Accept json
// @Produce json
// @Param id path int true "Book ID"
// @Param request body dto.UpdateBookRequest true "New title and author"
// @Success 200 {object} dto.BookResponse
// @Failure 400 {object} dto.ApiErrors
// @Failure 404 {object} dto.ApiErrors
// @Router /books/{id} [put]
// @Security BearerAuth
func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req dto.UpdateBookRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	updated, err := h.service.UpdateBook(r.Context(), id, req.Title, req.Author)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewBookResponse(*updated))
}

// DeleteBook removes a book.
//
// @Summary Delete a book
// @Tags Books
// @Param id path int true "Book ID"
// @Success 204
// @Failure 404 {object} dto.ApiErrors
// @Failure 409 {object} dto.ApiErrors "Book has loans"
// @Router /books/{id} [delete]
// @Security BearerAuth
func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.service.DeleteBook(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FindBooks lists books whose title, author and isbn contain the given values, ignoring case.
//
// @Summary Find books
// @Tags Books
// @Produce json
// @Param title query string false "Title fragment"
// @Param author query string false "Author fragment"
// @Param isbn query string false "ISBN fragment"
// @Param page query int false "Zero-based page index"
// @Param size query int false "Page size (max 100)"
// @Success 200 {object} dto.PageResponse[dto.BookResponse]
// @Failure 400 {object} dto.ApiErrors
// @Router /books [get]
// @Security BearerAuth
func (h *BookHandler) FindBooks(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q := r.URL.Query()
	filter := book.ExampleFilter(book.Book{Title: q.Get("title"), Author: q.Get("author"), Isbn: q.Get("isbn")})

	result, err := h.service.FindBooks(r.Context(), filter, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewPageResponse(result, dto.NewBookResponse))
}

// BookLoans lists the loans of a book.
//
// @Summary Loans of a book
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Param page query int false "Zero-based page index"
// @Param size query int false "Page size (max 100)"
// @Success 200 {object} dto.PageResponse[dto.LoanResponse]
// @Failure 404 {object} dto.ApiErrors
// @Router /books/{id}/loans [get]
// @Security BearerAuth
func (h *BookHandler) BookLoans(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	result, err := h.service.BookLoans(r.Context(), id, page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewPageResponse(result, dto.NewLoanResponse))
}

// Availability tells whether a book can be loaned right now.
//
// @Summary Book availability
// @Tags Books
// @Produce json
// @Param id path int true "Book ID"
// @Success 200 {object} dto.AvailabilityResponse
// @Failure 404 {object} dto.ApiErrors
// @Router /books/{id}/availability [get]
// @Security BearerAuth
func (h *BookHandler) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	available, err := h.service.BookAvailability(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.AvailabilityResponse{BookID: id, Available: available})
}
