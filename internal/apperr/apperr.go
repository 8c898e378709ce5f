// Package apperr defines the error taxonomy shared by every clawdesk
// component and its mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for callers and for the HTTP layer.
type Kind int

const (
	KindInternal Kind = iota
	KindConfig
	KindPolicy
	KindTimeout
	KindProcess
	KindNotFound
	KindValidation
)

// String returns a short lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindPolicy:
		return "policy"
	case KindTimeout:
		return "timeout"
	case KindProcess:
		return "process"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "internal"
	}
}

// Error is a classified error. Stdout and Stderr are only set for errors
// produced by an external process invocation.
type Error struct {
	Kind   Kind
	Msg    string
	Err    error
	Stdout string
	Stderr string
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String() + " error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperr.ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrConfig     = &Error{Kind: KindConfig}
	ErrPolicy     = &Error{Kind: KindPolicy}
	ErrTimeout    = &Error{Kind: KindTimeout}
	ErrProcess    = &Error{Kind: KindProcess}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrValidation = &Error{Kind: KindValidation}
)

// Config returns a configuration error.
func Config(msg string, err error) error { return &Error{Kind: KindConfig, Msg: msg, Err: err} }

// Policy returns an authorization or security-gate error.
func Policy(msg string) error { return &Error{Kind: KindPolicy, Msg: msg} }

// Timeout returns an error for an external invocation that exceeded its bound.
func Timeout(msg string) error { return &Error{Kind: KindTimeout, Msg: msg} }

// NotFound returns an error for a missing profile, agent, skill, or macro.
func NotFound(msg string) error { return &Error{Kind: KindNotFound, Msg: msg} }

// Validation returns an error for a malformed request payload.
func Validation(msg string) error { return &Error{Kind: KindValidation, Msg: msg} }

// Process returns an error for an external tool that failed to spawn or
// exited non-zero. The captured output travels with the error.
func Process(msg string, err error, stdout, stderr string) error {
	return &Error{Kind: KindProcess, Msg: msg, Err: err, Stdout: stdout, Stderr: stderr}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch KindOf(err) {
	case KindPolicy:
		return http.StatusForbidden
	case KindTimeout, KindProcess:
		return http.StatusServiceUnavailable
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
