package constraint

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes a constraint failure.
type ErrorKind string

const (
	KindUnexpectedCharacter   ErrorKind = "UnexpectedCharacter"
	KindUnexpectedOperator    ErrorKind = "UnexpectedOperator"
	KindInvalidNumericLiteral ErrorKind = "InvalidNumericLiteral"
	KindMalformedConstraint   ErrorKind = "MalformedConstraint"
)

// Error is returned by every stage of constraint compilation and
// evaluation. Pos is the byte offset into the constraint, or -1 when the
// failure is not tied to a source character.
type Error struct {
	Kind    ErrorKind
	Pos     int
	Text    string
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Kind, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the kind of a constraint error, or "" if err is not one.
func KindOf(err error) ErrorKind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// NewUnexpectedCharacterError reports a character outside the constraint alphabet.
func NewUnexpectedCharacterError(pos int, ch rune) *Error {
	return &Error{
		Kind:    KindUnexpectedCharacter,
		Pos:     pos,
		Text:    string(ch),
		Message: fmt.Sprintf("unexpected character %q", ch),
	}
}

// NewUnexpectedOperatorError reports a token that lexed but has no meaning,
// such as "<<" or the word "nor".
func NewUnexpectedOperatorError(pos int, text string) *Error {
	return &Error{
		Kind:    KindUnexpectedOperator,
		Pos:     pos,
		Text:    text,
		Message: fmt.Sprintf("unexpected operator %q", text),
	}
}

// NewInvalidNumericLiteralError reports a literal that is not a finite decimal number.
func NewInvalidNumericLiteralError(pos int, text string) *Error {
	return &Error{
		Kind:    KindInvalidNumericLiteral,
		Pos:     pos,
		Text:    text,
		Message: fmt.Sprintf("invalid numeric literal %q", text),
	}
}

// NewMalformedConstraintError reports a structural problem such as an
// unbalanced parenthesis or a missing operand.
func NewMalformedConstraintError(pos int, msg string) *Error {
	return &Error{Kind: KindMalformedConstraint, Pos: pos, Message: msg}
}
