// Package apperror defines the domain error taxonomy shared by every layer.
//
// Repositories and services return these errors; only the HTTP handler layer
// decides which status code each one becomes (see handler/response.go).
// Callers test for a category with errors.Is against the sentinels below.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("Validation Error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTerminated      = errors.New("terminated")
	ErrInvalidParent   = errors.New("invalid parent")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation, e.g. a username that is already taken.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated means no identity was attached to the request.
// It is distinct from Forbidden: the caller should log in and retry.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// Terminated marks an account that was permanently banned by a moderator.
// Clients render a ban notice for it instead of a retry prompt.
func Terminated(username string) *AppError {
	return &AppError{
		Err:     ErrTerminated,
		Message: fmt.Sprintf("account %s has been terminated", username),
		Field:   "username",
	}
}

// InvalidParent rejects a reply whose parent comment is missing or belongs
// to a different post.
func InvalidParent(parentID, postID string) *AppError {
	return &AppError{
		Err:     ErrInvalidParent,
		Message: fmt.Sprintf("comment %s is not a valid parent in post %s", parentID, postID),
		Field:   "parent_id",
	}
}
