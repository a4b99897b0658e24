// Package errors classifies pipeline failures so the HTTP boundary can map
// them onto status codes and remediation hints without string matching.
package errors

import "errors"

type Category string

const (
	CategoryInvalidInput      Category = "invalid_input"
	CategoryDependencyMissing Category = "dependency_missing"
	CategoryNotFound          Category = "not_found"
	CategoryInternalFailure   Category = "internal_failure"
)

type classifiedError struct {
	category Category
	code     string
	message  string
	hint     string
	cause    error
}

func (e *classifiedError) Error() string {
	if e.message != "" {
		return e.message
	}
	if e.cause == nil {
		return "unknown error"
	}
	return e.cause.Error()
}

func (e *classifiedError) Unwrap() error {
	return e.cause
}

// Wrap attaches a category, a stable code, a human-readable message and an
// optional remediation hint to cause. A nil cause yields nil.
func Wrap(cause error, category Category, code, message, hint string) error {
	if cause == nil {
		return nil
	}
	return &classifiedError{
		category: category,
		code:     code,
		message:  message,
		hint:     hint,
		cause:    cause,
	}
}

func CategoryOf(err error) Category {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.category
	}
	return ""
}

func CodeOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.code
	}
	return ""
}

func HintOf(err error) string {
	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.hint
	}
	return ""
}

// CauseOf returns the error wrapped by the outermost classification, or err
// itself when it is not classified.
func CauseOf(err error) error {
	var classified *classifiedError
	if errors.As(err, &classified) && classified.cause != nil {
		return classified.cause
	}
	return err
}
