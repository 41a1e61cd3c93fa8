package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"library-api/internal/api/handler/dto"
	"library-api/internal/library"
	"library-api/internal/pkg/apperrors"
)

type LoanHandler struct {
	service library.Service
	logger  *slog.Logger
}

func NewLoanHandler(s library.Service, l *slog.Logger) *LoanHandler {
	if s == nil {
		panic("library service cannot be nil")
	}
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

// CreateLoan lends the book with the given ISBN.
//
// @Summary Create a loan
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body dto.CreateLoanRequest true "Loan request"
// @Success 201 {object} dto.CreatedResponse
// @Failure 400 {object} dto.ApiErrors "Validation error, unknown ISBN or book already loaned"
// @Failure 409 {object} dto.ApiErrors "Book contended, retry"
// @Router /loans [post]
// @Security BearerAuth
func (h *LoanHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := h.service.CreateLoan(r.Context(), req.Isbn, req.Customer, req.Email)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Loan was not created", slog.String("isbn", req.Isbn), slog.Any("error", err))
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, dto.CreatedResponse{ID: id})
}

// ReturnLoan sets the returned flag of a loan.
//
// @Summary Return a loan
// @Tags Loans
// @Accept json
// @Produce json
// @Param id path int true "Loan ID"
// @Param request body dto.ReturnedLoanRequest true "Returned flag"
// @Success 200
// @Failure 400 {object} dto.ApiErrors
// @Failure 404 {object} dto.ApiErrors
// @Router /loans/{id} [patch]
// @Security BearerAuth
func (h *LoanHandler) ReturnLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req dto.ReturnedLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.service.ReturnLoan(r.Context(), id, *req.Returned); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			respondJSON(w, http.StatusNotFound, dto.NewApiErrors(fmt.Sprintf("Book referred to by %d does not exist!", id)))
			return
		}
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// FindLoans lists loans whose book ISBN or customer matches exactly.
//
// @Summary Find loans
// @Tags Loans
// @Produce json
// @Param isbn query string false "Book ISBN"
// @Param customer query string false "Customer"
// @Param page query int false "Zero-based page index"
// @Param size query int false "Page size (max 100)"
// @Success 200 {object} dto.PageResponse[dto.LoanResponse]
// @Failure 400 {object} dto.ApiErrors
// @Router /loans [get]
// @Security BearerAuth
func (h *LoanHandler) FindLoans(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	q := r.URL.Query()

	result, err := h.service.FindLoans(r.Context(), q.Get("isbn"), q.Get("customer"), page)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, dto.NewPageResponse(result, dto.NewLoanResponse))
}
