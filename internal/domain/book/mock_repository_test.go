package book

import (
	"context"

	"library-api/internal/pkg/optional"
	"library-api/internal/pkg/query"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

var _ Repository = (*MockRepository)(nil)

func (_m *MockRepository) ExistsByIsbn(ctx context.Context, isbn string) (bool, error) {
	ret := _m.Called(ctx, isbn)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockRepository) Create(ctx context.Context, b *Book) (*Book, error) {
	ret := _m.Called(ctx, b)

	var r0 *Book
	if rf, ok := ret.Get(0).(func(context.Context, *Book) *Book); ok {
		r0 = rf(ctx, b)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Book)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) FindByID(ctx context.Context, id int64) (optional.Optional[Book], error) {
	ret := _m.Called(ctx, id)
	return ret.Get(0).(optional.Optional[Book]), ret.Error(1)
}

func (_m *MockRepository) FindByIsbn(ctx context.Context, isbn string) (optional.Optional[Book], error) {
	ret := _m.Called(ctx, isbn)
	return ret.Get(0).(optional.Optional[Book]), ret.Error(1)
}

func (_m *MockRepository) Update(ctx context.Context, b *Book) (*Book, error) {
	ret := _m.Called(ctx, b)

	var r0 *Book
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*Book)
	}
	return r0, ret.Error(1)
}

func (_m *MockRepository) Delete(ctx context.Context, id int64) error {
	ret := _m.Called(ctx, id)
	return ret.Error(0)
}

func (_m *MockRepository) Find(ctx context.Context, filter query.Filter, page query.PageRequest) (query.Page[Book], error) {
	ret := _m.Called(ctx, filter, page)
	return ret.Get(0).(query.Page[Book]), ret.Error(1)
}
