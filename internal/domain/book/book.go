package book

import (
	"library-api/internal/pkg/query"
)

// Filterable field names.
const (
	FieldTitle  = "title"
	FieldAuthor = "author"
	FieldIsbn   = "isbn"
)

var FilterFields = []string{FieldTitle, FieldAuthor, FieldIsbn}

type Book struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Isbn   string `json:"isbn"`
}

// Field returns the stored value of a filterable field.
func (b Book) Field(name string) (string, bool) {
	switch name {
	case FieldTitle:
		return b.Title, true
	case FieldAuthor:
		return b.Author, true
	case FieldIsbn:
		return b.Isbn, true
	default:
		return "", false
	}
}

// ExampleFilter turns a partially populated book into a filter: every non-blank
// field must be contained, ignoring case, in the stored field.
func ExampleFilter(example Book) query.Filter {
	return query.NewFilter().
		ContainsIfSet(FieldTitle, example.Title).
		ContainsIfSet(FieldAuthor, example.Author).
		ContainsIfSet(FieldIsbn, example.Isbn)
}
