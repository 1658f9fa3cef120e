package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the core can surface. Callers switch on
// the kind; messages are for humans and always name the offending uid(s).
type Kind string

const (
	// KindNotFound: a uid, version or date-time selector matched nothing.
	KindNotFound Kind = "not_found"
	// KindBusinessLogic: a lifecycle guard or referential rule failed.
	KindBusinessLogic Kind = "business_logic"
	// KindValidation: bad input detected before touching the store.
	KindValidation Kind = "validation"
	// KindVersioning: structural content edited after the item reached Final.
	KindVersioning Kind = "versioning"
	// KindConflict: optimistic concurrency failure (stale version). The
	// caller must re-read and retry; the core never retries on its own.
	KindConflict Kind = "conflict"
	// KindConsistency: the graph violated one of its own invariants
	// (two latest edges, overlapping version ranges). Never expected.
	KindConsistency Kind = "consistency"
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...interface{}) *Error {
	return New(KindNotFound, format, args...)
}

func BusinessLogic(format string, args ...interface{}) *Error {
	return New(KindBusinessLogic, format, args...)
}

func Validation(format string, args ...interface{}) *Error {
	return New(KindValidation, format, args...)
}

func Versioning(format string, args ...interface{}) *Error {
	return New(KindVersioning, format, args...)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(KindConflict, format, args...)
}

func Consistency(format string, args ...interface{}) *Error {
	return New(KindConsistency, format, args...)
}

// KindOf extracts the kind from any error in the chain. Unclassified
// errors report KindConsistency so nothing fails silently.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConsistency
}

func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func IsNotFound(err error) bool      { return IsKind(err, KindNotFound) }
func IsBusinessLogic(err error) bool { return IsKind(err, KindBusinessLogic) }
func IsValidation(err error) bool    { return IsKind(err, KindValidation) }
func IsVersioning(err error) bool    { return IsKind(err, KindVersioning) }
func IsConflict(err error) bool      { return IsKind(err, KindConflict) }
func IsConsistency(err error) bool   { return IsKind(err, KindConsistency) }
