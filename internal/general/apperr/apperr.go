// Package apperr is the error taxonomy shared by every service.
//
// Services wrap failures with E so that handlers can map them to a status
// code and callers can branch with errors.Is against the Err* sentinels.
package apperr

import (
	"errors"
	"net/http"
	"strings"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindForbidden
	KindInvalidState
	KindConflict
	KindInvalidQuote
	KindUpstreamUnavailable
	KindPersistenceFailure
	KindNotFound
	KindInvalid
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindForbidden:           "forbidden",
	KindInvalidState:        "invalid state",
	KindConflict:            "conflict",
	KindInvalidQuote:        "invalid quote",
	KindUpstreamUnavailable: "upstream unavailable",
	KindPersistenceFailure:  "persistence failure",
	KindNotFound:            "not found",
	KindInvalid:             "invalid input",
}

// String returns the human-readable kind name.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return kindNames[KindUnknown]
}

// Error is a classified failure. Op names the operation, Msg is safe to show
// to the caller, Err is the wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// Sentinels for errors.Is.
var (
	ErrForbidden           = &Error{Kind: KindForbidden}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrConflict            = &Error{Kind: KindConflict}
	ErrInvalidQuote        = &Error{Kind: KindInvalidQuote}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrPersistenceFailure  = &Error{Kind: KindPersistenceFailure}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalid             = &Error{Kind: KindInvalid}
)

// E builds a classified error.
func E(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// Error renders "op: msg: cause".
func (e *Error) Error() string {
	parts := make([]string, 0, 3)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	} else {
		parts = append(parts, e.Kind.String())
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap exposes the cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Message returns the caller-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Msg != "" {
		return e.Msg
	}
	if err == nil {
		return ""
	}
	return KindOf(err).String()
}

// HTTPStatus maps err to a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindInvalidQuote:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
