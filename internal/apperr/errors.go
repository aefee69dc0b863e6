package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for propagation and retry decisions.
type Kind string

// Error kinds shared by every component of the core.
const (
	KindTransientAuth      Kind = "transient_auth"
	KindPermanentAuth      Kind = "permanent_auth"
	KindRateLimited        Kind = "rate_limited"
	KindQuotaExceeded      Kind = "quota_exceeded"
	KindNetwork            Kind = "network"
	KindValidation         Kind = "validation"
	KindPartialAggregation Kind = "partial_aggregation"
	KindCancelled          Kind = "cancelled"
	KindNotFound           Kind = "not_found"
	KindProvider           Kind = "provider"
)

// Sentinels for use with errors.Is. Any *Error of the same kind matches.
var (
	ErrTransientAuth      = &Error{Kind: KindTransientAuth}
	ErrPermanentAuth      = &Error{Kind: KindPermanentAuth}
	ErrRateLimited        = &Error{Kind: KindRateLimited}
	ErrQuotaExceeded      = &Error{Kind: KindQuotaExceeded}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrPartialAggregation = &Error{Kind: KindPartialAggregation}
	ErrCancelled          = &Error{Kind: KindCancelled}
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrProvider           = &Error{Kind: KindProvider}
)

// Error is a classified error. Op names the failing operation, Field names the
// offending input for validation errors.
type Error struct {
	Kind  Kind
	Op    string
	Field string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Field != "" {
		fmt.Fprintf(&b, " (field %q)", e.Field)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a sentinel of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Field == "" && t.Err == nil && t.Kind == e.Kind
}

// New returns a classified error wrapping err.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf returns a classified error with a formatted cause.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Validation returns a validation error naming the offending field.
func Validation(op, field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: op, Field: field, Err: fmt.Errorf(format, args...)}
}

// Cancelled wraps a context error as a cancellation.
func Cancelled(op string, err error) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: err}
}

// KindOf returns the kind of err. Bare context errors map to KindCancelled,
// unclassified errors map to KindProvider and nil maps to "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCancelled
	}
	return KindProvider
}

// Retryable reports whether the error is transient and worth retrying later.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransientAuth, KindRateLimited, KindNetwork, KindQuotaExceeded:
		return true
	default:
		return false
	}
}

// IsAuth reports whether the error is a transient or permanent auth failure.
func IsAuth(err error) bool {
	k := KindOf(err)
	return k == KindTransientAuth || k == KindPermanentAuth
}

// FieldOf returns the offending field of a validation error, if any.
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
