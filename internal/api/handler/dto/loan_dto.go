package dto

import (
	"net/mail"
	"strings"
	"time"

	"library-api/internal/domain/loan"
	"library-api/internal/pkg/apperrors"
)

type CreateLoanRequest struct {
	Isbn     string `json:"isbn"`
	Customer string `json:"customer"`
	Email    string `json:"email"`
}

func (r *CreateLoanRequest) Validate() error {
	var errs apperrors.ValidationErrors
	requireText(&errs, "isbn", r.Isbn)
	requireText(&errs, "customer", r.Customer)
	if strings.TrimSpace(r.Email) != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			errs.Add("email", "email must be a well-formed email address")
		}
	}
	return errs.ErrOrNil()
}

type ReturnedLoanRequest struct {
	Returned *bool `json:"returned"`
}

func (r *ReturnedLoanRequest) Validate() error {
	if r.Returned == nil {
		return apperrors.ValidationErrors{{Field: "returned", Message: "returned must not be null"}}
	}
	return nil
}

type LoanResponse struct {
	ID       int64        `json:"id"`
	Isbn     string       `json:"isbn"`
	Customer string       `json:"customer"`
	Email    string       `json:"email,omitempty"`
	LoanDate string       `json:"loanDate"`
	Returned bool         `json:"returned"`
	Book     BookResponse `json:"book"`
}

func NewLoanResponse(l loan.Loan) LoanResponse {
	return LoanResponse{
		ID:       l.ID,
		Isbn:     l.Book.Isbn,
		Customer: l.Customer,
		Email:    l.CustomerEmail,
		LoanDate: l.LoanDate.Format(time.DateOnly),
		Returned: !l.IsActive(),
		Book:     NewBookResponse(l.Book),
	}
}
