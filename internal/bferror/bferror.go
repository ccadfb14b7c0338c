// Package bferror carries source-located errors raised while lexing,
// optimizing, or running a program, so the CLI can report them uniformly.
//
// Grounded on the teacher's internal/errors: the same Kind/Location/Error
// shape, narrowed from a general-purpose language's error taxonomy down to
// the handful of ways a tape program can fail.
package bferror

import (
	"fmt"
	"strings"
)

// Kind classifies a Error.
type Kind string

const (
	KindSyntax   Kind = "SyntaxError"
	KindRuntime  Kind = "RuntimeError"
	KindSetup    Kind = "SetupError"
	KindTapeBound Kind = "TapeBoundError"
)

// Location pins an error to a line/column in the source that produced it.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	if l.File == "" && l.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Error is the error type every package in this module returns for a
// failure the CLI should report with a location and a kind rather than a
// bare message.
type Error struct {
	Kind     Kind
	Message  string
	Location Location
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if loc := e.Location.String(); loc != "" {
		sb.WriteString(" at ")
		sb.WriteString(loc)
	}
	return sb.String()
}

// Syntax builds a Error of kind KindSyntax.
func Syntax(loc Location, format string, args ...interface{}) *Error {
	return &Error{Kind: KindSyntax, Message: fmt.Sprintf(format, args...), Location: loc}
}

// Runtime builds a Error of kind KindRuntime.
func Runtime(loc Location, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRuntime, Message: fmt.Sprintf(format, args...), Location: loc}
}

// TapeBound builds a Error of kind KindTapeBound, used for the fatal tape
// underflow condition.
func TapeBound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindTapeBound, Message: fmt.Sprintf(format, args...)}
}

// Setup builds a Error of kind KindSetup, used for CLI/config failures
// that happen before a program ever runs.
func Setup(format string, args ...interface{}) *Error {
	return &Error{Kind: KindSetup, Message: fmt.Sprintf(format, args...)}
}
