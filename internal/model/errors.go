package model

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrStorage        = errors.New("storage error")
	ErrFetch          = errors.New("fetch error")
	ErrValidation     = errors.New("validation error")
)

// Error labels a failure with its kind, the operation and the symbol it concerns.
type Error struct {
	Kind   error
	Op     string
	Symbol string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Symbol != "" {
		msg += fmt.Sprintf(" %q", e.Symbol)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidRequest reports bad caller input.
func InvalidRequest(op, symbol, reason string) error {
	return &Error{Kind: ErrInvalidRequest, Op: op, Symbol: symbol, Err: errors.New(reason)}
}

// StorageFailure wraps a persistent store error.
func StorageFailure(op, symbol string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Symbol: symbol, Err: err}
}

// FetchFailure wraps the last provider error after the retry budget ran out.
func FetchFailure(op, symbol string, err error) error {
	return &Error{Kind: ErrFetch, Op: op, Symbol: symbol, Err: err}
}

// ValidationFailure reports a provider response with the wrong shape.
func ValidationFailure(op, symbol string, err error) error {
	return &Error{Kind: ErrValidation, Op: op, Symbol: symbol, Err: err}
}

// IsInvalidRequest checks if the error is an invalid request error
func IsInvalidRequest(err error) bool { return errors.Is(err, ErrInvalidRequest) }

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool { return errors.Is(err, ErrStorage) }

// IsFetch checks if the error is a fetch error
func IsFetch(err error) bool { return errors.Is(err, ErrFetch) }

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
