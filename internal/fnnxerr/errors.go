// Package fnnxerr defines the error taxonomy shared by the loader, the
// manifest integrity pass, the pipeline validator and the runtime.
//
// Every failure carries one of the sentinel kinds below so callers can branch
// with errors.Is. Structural failures additionally come wrapped in *Error,
// which names the offending entity and, for cycles, the nodes on the cycle.
package fnnxerr

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds.
var (
	ErrDuplicateID        = errors.New("duplicate id")
	ErrUnknownReference   = errors.New("unknown reference")
	ErrUnsupportedVariant = errors.New("unsupported variant")
	ErrDuplicateOutput    = errors.New("duplicate output")
	ErrDanglingInput      = errors.New("dangling input")
	ErrCyclicPipeline     = errors.New("cyclic pipeline")
	ErrClassResolution    = errors.New("class resolution failed")
	ErrPathEscape         = errors.New("path escapes sandbox")
	ErrValidation         = errors.New("validation failed")
	ErrInstanceFailed     = errors.New("instance failed")
	ErrNotReady           = errors.New("instance not ready")
)

// Error provides detailed information about a failure of a given Kind.
type Error struct {
	Kind    error    // One of the Err* sentinels above
	Subject string   // Primary entity involved (op instance id, file path, name)
	Details string   // Additional details
	Nodes   []string // Nodes on the offending cycle, in edge order
	Cause   error    // Underlying error, if any
}

// New builds an *Error of the given kind.
func New(kind error, subject, format string, args ...any) *Error {
	return &Error{Kind: kind, Subject: subject, Details: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an underlying cause.
func Wrap(kind error, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Subject != "" {
		fmt.Fprintf(&b, ": %q", e.Subject)
	}
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if len(e.Nodes) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Nodes, " -> "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Validation is shorthand for a schema-shape mismatch on load.
func Validation(subject string, cause error) *Error {
	return Wrap(ErrValidation, subject, cause)
}
