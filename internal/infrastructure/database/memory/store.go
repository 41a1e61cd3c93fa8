// Package memory is a mutex-guarded, process-local implementation of the
// catalog and ledger repositories. It backs local runs and concurrency tests.
package memory

import (
	"maps"
	"sync"
	"time"

	"library-api/internal/domain/book"
)

type loanRecord struct {
	id            int64
	bookID        int64
	customer      string
	customerEmail string
	loanDate      time.Time
	returned      *bool
}

func (r loanRecord) active() bool {
	return r.returned == nil || !*r.returned
}

// Store holds books and loans shared by both repositories.
type Store struct {
	mu         sync.Mutex
	books      map[int64]book.Book
	loans      map[int64]loanRecord
	nextBookID int64
	nextLoanID int64
}

func NewStore() *Store {
	return &Store{
		books: map[int64]book.Book{},
		loans: map[int64]loanRecord{},
	}
}

type loanSnapshot struct {
	loans      map[int64]loanRecord
	nextLoanID int64
}

func (s *Store) snapshotLoans() loanSnapshot {
	return loanSnapshot{loans: maps.Clone(s.loans), nextLoanID: s.nextLoanID}
}

func (s *Store) restoreLoans(snap loanSnapshot) {
	s.loans = snap.loans
	s.nextLoanID = snap.nextLoanID
}

func (s *Store) hasActiveLoan(bookID int64) bool {
	for _, rec := range s.loans {
		if rec.bookID == bookID && rec.active() {
			return true
		}
	}
	return false
}

func (s *Store) hasAnyLoan(bookID int64) bool {
	for _, rec := range s.loans {
		if rec.bookID == bookID {
			return true
		}
	}
	return false
}
