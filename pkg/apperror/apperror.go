package apperror

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	TypeValidation  ErrorType = "VALIDATION"
	TypeNotFound    ErrorType = "NOT_FOUND"
	TypeForbidden   ErrorType = "FORBIDDEN"
	TypeTransientIO ErrorType = "TRANSIENT_IO"
	TypeInternal    ErrorType = "INTERNAL"
)

// AppError carries a category that handlers translate into a status code.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewValidation(message string) error {
	return &AppError{Type: TypeValidation, Message: message}
}

func NewNotFound(message string) error {
	return &AppError{Type: TypeNotFound, Message: message}
}

func NewForbidden(message string) error {
	return &AppError{Type: TypeForbidden, Message: message}
}

func NewTransientIO(message string, err error) error {
	return &AppError{Type: TypeTransientIO, Message: message, Err: err}
}

func NewInternal(message string, err error) error {
	return &AppError{Type: TypeInternal, Message: message, Err: err}
}

// Wrap adds context to err. An existing AppError keeps its type; anything
// else becomes INTERNAL.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	return &AppError{Type: TypeInternal, Message: message, Err: err}
}

// TypeOf returns the category of err, or TypeInternal for foreign errors.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return TypeInternal
}

func IsValidation(err error) bool  { return is(err, TypeValidation) }
func IsNotFound(err error) bool    { return is(err, TypeNotFound) }
func IsForbidden(err error) bool   { return is(err, TypeForbidden) }
func IsTransientIO(err error) bool { return is(err, TypeTransientIO) }

func is(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}
