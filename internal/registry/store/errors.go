package store

import "fmt"

// NotFoundError indicates the resource was not found.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness violation.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// UnknownClientError indicates a client code with no active directory
// row. Raised before any remote call is attempted.
type UnknownClientError struct {
	Code string
}

func (e *UnknownClientError) Error() string {
	return fmt.Sprintf("unknown client code: %s", e.Code)
}
