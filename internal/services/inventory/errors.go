package inventory

import (
	"errors"
	"strings"
)

// Kind categorizes an inventory error.
type Kind string

const (
	KindSizeQueryFailed      Kind = "size_query_failed"
	KindFillFailed           Kind = "fill_failed"
	KindDecodeFailed         Kind = "decode_failed"
	KindDefinitionsNotLoaded Kind = "definitions_not_loaded"
	KindRequestRejected      Kind = "request_rejected"
	KindMalformedRecord      Kind = "malformed_completion_record"
	KindUnknownCallback      Kind = "unknown_callback"
	KindInvalidHandle        Kind = "invalid_handle"
)

// Error is the structured error returned by the inventory core.
type Error struct {
	Kind   Kind
	Op     string
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Kind so callers can use errors.Is with the sentinels below.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrSizeQueryFailed           = &Error{Kind: KindSizeQueryFailed}
	ErrFillFailed                = &Error{Kind: KindFillFailed}
	ErrDecodeFailed              = &Error{Kind: KindDecodeFailed}
	ErrDefinitionsNotLoaded      = &Error{Kind: KindDefinitionsNotLoaded}
	ErrRequestRejected           = &Error{Kind: KindRequestRejected}
	ErrMalformedCompletionRecord = &Error{Kind: KindMalformedRecord}
	ErrUnknownCallback           = &Error{Kind: KindUnknownCallback}
	ErrInvalidHandle             = &Error{Kind: KindInvalidHandle}
)

func newError(kind Kind, op, detail string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Cause: cause}
}

// KindOf returns the Kind of err, or "" when err is not an inventory error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
