package core

import (
	"errors"
	"fmt"
)

// Kind classifies an error so transport layers can map it to a status and
// callers can branch without string matching.
type Kind string

const (
	KindNotFound            Kind = "not-found"
	KindConflict            Kind = "conflict"
	KindInvalidInput        Kind = "invalid-input"
	KindInvalidDependency   Kind = "invalid-dependency"
	KindBuildFailed         Kind = "build-failed"
	KindPullFailed          Kind = "pull-failed"
	KindRuntimeError        Kind = "runtime-error"
	KindHealthcheckFailed   Kind = "healthcheck-failed"
	KindACMEOrderInvalid    Kind = "acme-order-invalid"
	KindACMETimeout         Kind = "acme-timeout"
	KindSignatureMismatch   Kind = "signature-mismatch"
	KindUpstreamUnreachable Kind = "upstream-unreachable"
)

// Error is a kinded error. It wraps an optional cause so errors.Is/As keep
// working through it.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds a kinded error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an existing error. A nil err returns
// nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the Kind carried by err, or "" when err has none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsNotFound reports whether err carries KindNotFound.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err carries KindConflict.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
