package template

import (
	"errors"
	"fmt"
)

// ErrScript is wrapped by script mode compile and run failures.
var ErrScript = errors.New("script error")

// ParseError is a template syntax error.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error on line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// HelperError wraps a failure raised by a helper.
type HelperError struct {
	Helper string
	Line   int
	Err    error
}

func (e *HelperError) Error() string {
	return fmt.Sprintf("%s helper: %v on line %d", e.Helper, e.Err, e.Line)
}

func (e *HelperError) Unwrap() error {
	return e.Err
}
