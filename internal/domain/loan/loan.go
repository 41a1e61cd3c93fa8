package loan

import (
	"time"

	"library-api/internal/domain/book"
)

// DefaultOverdueDays is the age in days at which an unreturned loan is overdue.
const DefaultOverdueDays = 4

// Loan references a book it does not own. Book carries a read copy for responses; only Book.ID is persisted.
type Loan struct {
	ID            int64     `json:"id"`
	Book          book.Book `json:"book"`
	Customer      string    `json:"customer"`
	CustomerEmail string    `json:"customerEmail"`
	LoanDate      time.Time `json:"loanDate"`
	Returned      *bool     `json:"returned,omitempty"`
}

// IsActive reports whether the loan still holds its book. Unset and false both mean active.
func (l Loan) IsActive() bool {
	return l.Returned == nil || !*l.Returned
}

// MarkReturned sets the returned flag.
func (l *Loan) MarkReturned(returned bool) {
	l.Returned = &returned
}

// Clock supplies the current time.
type Clock func() time.Time

// Today truncates t to midnight in its own location.
func Today(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// OverdueCutoff is the latest loan date that counts as overdue on now's date.
func OverdueCutoff(now time.Time, days int) time.Time {
	return Today(now).AddDate(0, 0, -days)
}

// MatchesIsbnOrCustomer reports whether the loan's book ISBN equals isbn or its customer equals
// customer. Empty arguments are ignored; with both empty every loan matches.
func (l Loan) MatchesIsbnOrCustomer(isbn, customer string) bool {
	if isbn == "" && customer == "" {
		return true
	}
	return (isbn != "" && l.Book.Isbn == isbn) || (customer != "" && l.Customer == customer)
}

// IsOverdue reports whether an active loan was taken on or before cutoff.
func (l Loan) IsOverdue(cutoff time.Time) bool {
	return l.IsActive() && !Today(l.LoanDate).After(Today(cutoff))
}
