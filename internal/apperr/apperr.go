// Package apperr defines the user-facing error taxonomy of the jam engine.
// Every outcome here is recoverable; none of them means a crash.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind string

const (
	KindValidation   Kind = "VALIDATION"
	KindNotFound     Kind = "NOT_FOUND"
	KindForbidden    Kind = "FORBIDDEN"
	KindInvalidState Kind = "INVALID_STATE"
	KindConflict     Kind = "CONFLICT"
)

// ConflictKind narrows a conflict down to its cause.
type ConflictKind string

const (
	ConflictNone              ConflictKind = ""
	ConflictVenue             ConflictKind = "VENUE_CONFLICT"
	ConflictHostDoubleBooking ConflictKind = "HOST_DOUBLE_BOOKING"
	ConflictRoleTaken         ConflictKind = "ROLE_TAKEN"
	ConflictAlreadyJoined     ConflictKind = "ALREADY_JOINED"
	ConflictDuplicate         ConflictKind = "DUPLICATE"
	ConflictConcurrentUpdate  ConflictKind = "CONCURRENT_UPDATE"
)

// Error is a classified engine error.
type Error struct {
	Kind     Kind
	Reason   string
	Conflict ConflictKind
}

func (e *Error) Error() string {
	return e.Reason
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrForbidden) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Conflict != ConflictNone && t.Conflict != e.Conflict {
		return false
	}
	return t.Kind == e.Kind && t.Reason == ""
}

// Sentinels for errors.Is.
var (
	ErrValidation   = &Error{Kind: KindValidation}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrForbidden    = &Error{Kind: KindForbidden}
	ErrInvalidState = &Error{Kind: KindInvalidState}
	ErrConflict     = &Error{Kind: KindConflict}
)

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Reason: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Reason: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error tagged with its cause.
func Conflict(kind ConflictKind, format string, args ...any) error {
	return &Error{Kind: KindConflict, Conflict: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ConflictOf returns the conflict cause of err, if any.
func ConflictOf(err error) ConflictKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Conflict
	}
	return ConflictNone
}
