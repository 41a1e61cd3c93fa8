package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("resource not found")

	ErrInvalidArgument = errors.New("invalid argument")

	ErrValidation = errors.New("validation failed")

	ErrAlreadyExists = errors.New("resource already exists")

	ErrDatabase = errors.New("database error")

	ErrInternalServer = errors.New("internal server error")

	ErrUnauthorized = errors.New("unauthorized")

	ErrConflict = errors.New("resource conflict")

	ErrTransport = errors.New("notification transport error")

	ErrDuplicateIsbn = &BusinessError{Message: "ISBN already exists!"}

	ErrBookUnavailable = &BusinessError{Message: "Book is currently loaned!"}

	ErrBookNotFound = &BusinessError{Message: "Book not found for provided Isbn!"}

	ErrLoanReturned = &BusinessError{Message: "Loan is already returned!"}
)

// BusinessError is a violated domain rule. Its message is shown to API clients verbatim.
type BusinessError struct {
	Message string
}

func (e *BusinessError) Error() string {
	return e.Message
}

// IsBusiness reports whether err wraps a BusinessError.
func IsBusiness(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// BusinessMessage returns the message of the first BusinessError in err's chain.
func BusinessMessage(err error) (string, bool) {
	var be *BusinessError
	if errors.As(err, &be) {
		return be.Message, true
	}
	return "", false
}

type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func NewValidationError(field, message string) error {
	return fmt.Errorf("%w: %w", ErrValidation, &ValidationError{Field: field, Message: message})
}

// ValidationErrors collects every failed field of a request.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, ve.Error())
	}
	return strings.Join(parts, "; ")
}

func (e ValidationErrors) Unwrap() error {
	return ErrValidation
}

// Messages returns the per-field messages in the order they were added.
func (e ValidationErrors) Messages() []string {
	msgs := make([]string, 0, len(e))
	for _, ve := range e {
		msgs = append(msgs, ve.Message)
	}
	return msgs
}

// Add appends a failure for field.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, &ValidationError{Field: field, Message: message})
}

// ErrOrNil returns nil when nothing was collected.
func (e ValidationErrors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func WrapDatabaseError(cause error, message string) error {
	return &AppError{
		Code:    "DB_ERROR",
		Message: message,
		Cause:   fmt.Errorf("%w: %w", ErrDatabase, cause),
	}
}

func WrapTransportError(cause error, transport string) error {
	return &AppError{
		Code:    "TRANSPORT_ERROR",
		Message: fmt.Sprintf("%s delivery failed", transport),
		Cause:   fmt.Errorf("%w: %w", ErrTransport, cause),
	}
}
