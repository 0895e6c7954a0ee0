package validate

import "fmt"

// FieldError names the request field (and index, for array elements)
// that failed validation, with a human-readable reason.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

func newFieldError(field, format string, args ...any) *FieldError {
	return &FieldError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}

func newIndexError(field string, index int, format string, args ...any) *FieldError {
	return &FieldError{
		Field:  fmt.Sprintf("%s[%d]", field, index),
		Reason: fmt.Sprintf(format, args...),
	}
}
