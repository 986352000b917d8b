// Package apperr defines the error taxonomy shared by the scanner, the renewal
// workflow and the transports in front of them.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind classifies an Error.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindDataAccess   Kind = "data_access"
	// KindNotify and KindAudit are best-effort side channel failures. They are
	// logged where they happen and never returned from a core operation.
	KindNotify Kind = "notify"
	KindAudit  Kind = "audit"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds field-level validation problems keyed by field name.
	Fields map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, "; "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so errors.Is(err, apperr.NotFound("")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// KindOf returns the kind of the first *Error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// DataAccess wraps a persistence failure. The message is for logs; transports
// surface it as a generic failure.
func DataAccess(op string, err error) *Error {
	return &Error{Kind: KindDataAccess, Message: op, Err: err}
}

func Notify(err error) *Error {
	return &Error{Kind: KindNotify, Message: "notification failed", Err: err}
}

func Audit(err error) *Error {
	return &Error{Kind: KindAudit, Message: "audit append failed", Err: err}
}

// Validation collects field-level problems.
type Validation struct {
	fields map[string]string
}

// Add records a problem for field. The first problem recorded for a field wins.
func (v *Validation) Add(field, format string, args ...any) {
	if v.fields == nil {
		v.fields = make(map[string]string)
	}
	if _, exists := v.fields[field]; exists {
		return
	}
	v.fields[field] = fmt.Sprintf(format, args...)
}

// HasErrors reports whether any problem was recorded.
func (v *Validation) HasErrors() bool {
	return len(v.fields) > 0
}

// Err returns a KindValidation *Error, or nil when nothing was recorded.
func (v *Validation) Err() error {
	if !v.HasErrors() {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "invalid input", Fields: v.fields}
}

// Invalid is a shortcut for a single-field validation error.
func Invalid(field, format string, args ...any) error {
	var v Validation
	v.Add(field, format, args...)
	return v.Err()
}
