package loan

import (
	"context"
	"time"

	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

// WithinTx records the call and runs fn against the mock itself unless an error is configured.
func (_m *MockRepository) WithinTx(ctx context.Context, fn TxFunc) error {
	ret := _m.Called(ctx)
	if err := ret.Error(0); err != nil {
		return err
	}
	return fn(ctx, _m)
}

func (_m *MockRepository) IsBookOnLoan(ctx context.Context, bookID int64) (bool, error) {
	ret := _m.Called(ctx, bookID)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockRepository) Create(ctx context.Context, l *Loan) (*Loan, error) {
	ret := _m.Called(ctx, l)

	var r0 *Loan
	if rf, ok := ret.Get(0).(func(context.Context, *Loan) *Loan); ok {
		r0 = rf(ctx, l)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) FindByID(ctx context.Context, id int64) (optional.Optional[Loan], error) {
	ret := _m.Called(ctx, id)
	return ret.Get(0).(optional.Optional[Loan]), ret.Error(1)
}

func (_m *MockRepository) Update(ctx context.Context, l *Loan) (*Loan, error) {
	ret := _m.Called(ctx, l)

	var r0 *Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Loan)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) FindByIsbnOrCustomer(ctx context.Context, isbn, customer string, page query.PageRequest) (query.Page[Loan], error) {
	ret := _m.Called(ctx, isbn, customer, page)
	return ret.Get(0).(query.Page[Loan]), ret.Error(1)
}

func (_m *MockRepository) FindByBook(ctx context.Context, bookID int64, page query.PageRequest) (query.Page[Loan], error) {
	ret := _m.Called(ctx, bookID, page)
	return ret.Get(0).(query.Page[Loan]), ret.Error(1)
}

func (_m *MockRepository) FindOverdueUnreturned(ctx context.Context, cutoff time.Time) ([]Loan, error) {
	ret := _m.Called(ctx, cutoff)

	var r0 []Loan
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]Loan)
	}
	return r0, ret.Error(1)
}
