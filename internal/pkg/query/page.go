package query

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	// MaxPageIndex keeps Index*MaxPageSize within int.
	MaxPageIndex = math.MaxInt / MaxPageSize
)

// PageRequest is a zero-based page window.
type PageRequest struct {
	Index int
	Size  int
}

// NewPageRequest clamps index and size into usable bounds.
func NewPageRequest(index, size int) PageRequest {
	switch {
	case index < 0:
		index = 0
	case index > MaxPageIndex:
		index = MaxPageIndex
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return PageRequest{Index: index, Size: size}
}

// Offset saturates at math.MaxInt for windows built without NewPageRequest.
func (p PageRequest) Offset() int {
	if p.Index <= 0 || p.Size <= 0 {
		return 0
	}
	if p.Index > math.MaxInt/p.Size {
		return math.MaxInt
	}
	return p.Index * p.Size
}

type Page[T any] struct {
	Items []T
	Total int64
	Index int
	Size  int
}

func NewPage[T any](items []T, total int64, req PageRequest) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Index: req.Index, Size: req.Size}
}

func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Size) - 1) / int64(p.Size))
}

// Map converts the items of a page, keeping its window.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, 0, len(p.Items))
	for _, item := range p.Items {
		out = append(out, fn(item))
	}
	return Page[U]{Items: out, Total: p.Total, Index: p.Index, Size: p.Size}
}

// Slice cuts the requested window out of a fully materialized result.
func Slice[T any](all []T, req PageRequest) Page[T] {
	total := int64(len(all))
	start := req.Offset()
	if start >= len(all) || req.Size <= 0 {
		return NewPage([]T{}, total, req)
	}
	end := min(start+req.Size, len(all))
	items := make([]T, end-start)
	copy(items, all[start:end])
	return NewPage(items, total, req)
}
