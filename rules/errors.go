package rules

import "fmt"

// ParseError reports a malformed encoded rule or context.
type ParseError struct {
	Target string // "rule", "rules" or "context"
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %s: %v", e.Target, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SerializeError reports a value that could not be encoded.
type SerializeError struct {
	Target string
	Err    error
}

func (e *SerializeError) Error() string {
	return fmt.Sprintf("serialize error: %s: %v", e.Target, e.Err)
}

func (e *SerializeError) Unwrap() error {
	return e.Err
}
