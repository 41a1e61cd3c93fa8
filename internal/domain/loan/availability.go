package loan

import (
	"context"
	"fmt"
)

// AvailabilityChecker answers whether a book currently has an active loan.
type AvailabilityChecker interface {
	IsBookOnLoan(ctx context.Context, bookID int64) (bool, error)
}

type repositoryAvailability struct {
	repo Repository
}

// NewAvailabilityChecker evaluates availability against the persisted state seen by repo.
// Bind it to a transactional repository to make the answer hold until commit.
func NewAvailabilityChecker(repo Repository) AvailabilityChecker {
	return repositoryAvailability{repo: repo}
}

func (a repositoryAvailability) IsBookOnLoan(ctx context.Context, bookID int64) (bool, error) {
	onLoan, err := a.repo.IsBookOnLoan(ctx, bookID)
	if err != nil {
		return false, fmt.Errorf("failed to check availability of book %d: %w", bookID, err)
	}
	return onLoan, nil
}
