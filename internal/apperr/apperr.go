// Package apperr carries the error kinds shared by the availability core and
// the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation   Kind = "VALIDATION_ERROR"
	KindNotFound     Kind = "NOT_FOUND"
	KindRetrieval    Kind = "RETRIEVAL_ERROR"
	KindInvariant    Kind = "INVARIANT_VIOLATION"
	KindConflict     Kind = "CONFLICT"
	KindUnauthorized Kind = "UNAUTHORIZED"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so errors.Is(err, apperr.NotFound)
// style checks work against the sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	Validation   = &Error{Kind: KindValidation}
	NotFound     = &Error{Kind: KindNotFound}
	Retrieval    = &Error{Kind: KindRetrieval}
	Invariant    = &Error{Kind: KindInvariant}
	Conflict     = &Error{Kind: KindConflict}
	Unauthorized = &Error{Kind: KindUnauthorized}
)

func NewValidation(op, message string, details any) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: message, Details: details}
}

func NewNotFound(op, message string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Message: message}
}

func NewRetrieval(op string, err error) *Error {
	return &Error{Kind: KindRetrieval, Op: op, Message: "retrieval failed", Err: err}
}

func NewInvariant(op, message string) *Error {
	return &Error{Kind: KindInvariant, Op: op, Message: message}
}

func NewConflict(op, message string) *Error {
	return &Error{Kind: KindConflict, Op: op, Message: message}
}

func NewUnauthorized(op, message string) *Error {
	return &Error{Kind: KindUnauthorized, Op: op, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
