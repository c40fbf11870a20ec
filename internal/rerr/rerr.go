// Package rerr provides the typed error kinds raised by the rule engine core.
//
// Each Kind is a lightweight sentinel, in the spirit of gopkg.in/src-d/go-errors.v1's
// Kind.New(...): a Kind wraps a message template and a cause, and call sites compare
// against the Kind with Is rather than string-matching an error message.
package rerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind identifies one of the error categories from the error-handling design.
type Kind string

const (
	Syntax     Kind = "syntax"     // parser cannot continue
	Schema     Kind = "schema"     // fact violates its template
	Reference  Kind = "reference"  // dead handle, unbound variable, unknown function
	TypeErr    Kind = "type"       // operator applied to incompatible Value variants
	Arithmetic Kind = "arithmetic" // division by zero, overflow
	Cycle      Kind = "cycle"      // backward-chaining goal-stack cycle
	Depth      Kind = "depth"      // resolver exceeded max-depth
	Cancelled  Kind = "cancelled"  // user cancel or step limit
)

// Error is a Kind-tagged error carrying an optional position and cause.
type Error struct {
	Kind    Kind
	Message string
	Pos     *Position
	cause   error
}

// Position locates an error within GRL source text.
type Position struct {
	Line   int
	Column int
}

func (p *Position) String() string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

func (e *Error) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s error at %s: %s", e.Kind, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is reports whether target is an *Error of the same Kind, satisfying errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// New creates an Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At creates a positioned Error, used by the GRL parser for syntax errors.
func At(kind Kind, pos Position, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: &pos}
}

// Wrap attaches a Kind to an existing error using pkg/errors for the stack-trace cause chain.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: errors.Wrap(cause, string(kind))}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
