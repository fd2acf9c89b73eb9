// Package apperror defines the tagged error used across the core services.
// Services return *Error values; the HTTP boundary switches on Kind.
package apperror

import (
	"errors"
	"fmt"
)

// Kind discriminates the error variants.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
	KindExternalService
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "BAD_REQUEST"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindExternalService:
		return "EXTERNAL_SERVICE_FAILURE"
	default:
		return "INTERNAL"
	}
}

// Meta carries structured details for the caller, e.g. a competing reservation id.
type Meta map[string]any

// Error is the tagged error variant.
type Error struct {
	Kind    Kind
	Message string
	Meta    Meta
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func BadRequest(message string) *Error {
	return &Error{Kind: KindBadRequest, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func Conflict(message string, meta Meta) *Error {
	return &Error{Kind: KindConflict, Message: message, Meta: meta}
}

func ExternalService(message string, err error, meta Meta) *Error {
	return &Error{Kind: KindExternalService, Message: message, Err: err, Meta: meta}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// As returns the tagged error in err's chain, if any.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf reports the kind of err. Untagged errors are Internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is a tagged error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Wrap keeps tagged errors as they are and tags anything else as Internal.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if _, ok := As(err); ok {
		return err
	}
	return Internal(message, err)
}
