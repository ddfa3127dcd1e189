package markup

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is wrapped by binding errors for a declared field that
	// the data does not provide.
	ErrMissingField = errors.New("missing field")
	// ErrFieldType is wrapped by binding errors for a value that does not fit
	// the declared scalar type of its field.
	ErrFieldType = errors.New("field type mismatch")
	// ErrUnknownTemplate is returned when a name does not resolve to a template.
	ErrUnknownTemplate = errors.New("unknown template")
)

// Pos is a location in template source.
type Pos struct {
	Offset int
	Line   int
	Column int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ParseError reports malformed template source. A unit that fails to parse
// produces no templates at all.
type ParseError struct {
	Pos  Pos
	Msg  string
	Near string
	// Source is the full text of the unit, kept for diagnostics.
	Source string
}

func (e *ParseError) Error() string {
	if e.Near != "" {
		return fmt.Sprintf("parse error at %s near %q: %s", e.Pos, e.Near, e.Msg)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Pos, e.Msg)
}

// EvalError reports a host expression that could not be evaluated during a
// render, such as a type mismatch in an operator or a missing key in an
// index expression like m["k"].
type EvalError struct {
	Pos   Pos
	Expr  string
	Cause error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval error at %s in %q: %v", e.Pos, e.Expr, e.Cause)
}

func (e *EvalError) Unwrap() error { return e.Cause }

// WriteError wraps a failure reported by the caller's sink. Output written
// before the failure is not rolled back.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: %v", e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsParseError checks if an error is, or wraps, a parse error
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsEvalError checks if an error is, or wraps, an evaluation error
func IsEvalError(err error) bool {
	var ee *EvalError
	return errors.As(err, &ee)
}

// IsWriteError checks if an error is, or wraps, a sink failure
func IsWriteError(err error) bool {
	var we *WriteError
	return errors.As(err, &we)
}

// wrapWrite tags a sink error so callers can tell it apart from evaluation
// failures. Errors that are already classified pass through.
func wrapWrite(err error) error {
	if err == nil {
		return nil
	}
	var we *WriteError
	var ee *EvalError
	if errors.As(err, &we) || errors.As(err, &ee) {
		return err
	}
	return &WriteError{Err: err}
}
