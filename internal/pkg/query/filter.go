// Package query builds field filters and page windows shared by the catalog and the ledger.
package query

import (
	"fmt"
	"slices"
	"strings"

	"library-api/internal/pkg/apperrors"
)

type Operator int

const (
	// Equals matches the stored value exactly.
	Equals Operator = iota
	// Contains matches a case-insensitive substring of the stored value.
	Contains
)

func (o Operator) String() string {
	switch o {
	case Equals:
		return "equals"
	case Contains:
		return "contains"
	default:
		return fmt.Sprintf("operator(%d)", int(o))
	}
}

type Predicate struct {
	Field string
	Op    Operator
	Value string
}

// Matches evaluates the predicate against a stored value.
func (p Predicate) Matches(actual string) bool {
	switch p.Op {
	case Equals:
		return actual == p.Value
	case Contains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(p.Value))
	default:
		return false
	}
}

// Filter is a conjunction of predicates. The zero value matches everything.
type Filter struct {
	predicates []Predicate
}

func NewFilter() Filter {
	return Filter{}
}

func (f Filter) with(p Predicate) Filter {
	next := make([]Predicate, len(f.predicates), len(f.predicates)+1)
	copy(next, f.predicates)
	return Filter{predicates: append(next, p)}
}

func (f Filter) Equals(field, value string) Filter {
	return f.with(Predicate{Field: field, Op: Equals, Value: value})
}

func (f Filter) Contains(field, value string) Filter {
	return f.with(Predicate{Field: field, Op: Contains, Value: value})
}

// ContainsIfSet adds a Contains predicate only for a non-blank value.
func (f Filter) ContainsIfSet(field, value string) Filter {
	if strings.TrimSpace(value) == "" {
		return f
	}
	return f.Contains(field, value)
}

func (f Filter) Predicates() []Predicate {
	return slices.Clone(f.predicates)
}

func (f Filter) IsEmpty() bool {
	return len(f.predicates) == 0
}

// Validate rejects predicates on fields outside allowed.
func (f Filter) Validate(allowed ...string) error {
	for _, p := range f.predicates {
		if !slices.Contains(allowed, p.Field) {
			return fmt.Errorf("%w: unknown filter field %q", apperrors.ErrInvalidArgument, p.Field)
		}
	}
	return nil
}

// Match reports whether every predicate holds. lookup returns the stored value of a field.
func (f Filter) Match(lookup func(field string) (string, bool)) bool {
	for _, p := range f.predicates {
		actual, ok := lookup(p.Field)
		if !ok || !p.Matches(actual) {
			return false
		}
	}
	return true
}
