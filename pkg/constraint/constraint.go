package constraint

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
)

// MaxConstraintLength is the maximum allowed length of a constraint.
const MaxConstraintLength = 1024

// ErrValueNotNumeric is returned when the candidate value is not a finite
// decimal number. The constraint is not compiled in that case.
var ErrValueNotNumeric = errors.New("value is not a finite decimal number")

// Program is a compiled constraint. It is immutable and safe for
// concurrent use.
type Program struct {
	source string
	tokens []Token
}

// Compile lexes and normalizes a constraint and checks that it is well
// formed. Structure does not depend on the candidate value, so a compiled
// program only fails at evaluation time for a bad value.
func Compile(constraint string) (*Program, error) {
	if utf8.RuneCountInString(constraint) > MaxConstraintLength {
		return nil, NewMalformedConstraintError(-1,
			fmt.Sprintf("constraint exceeds maximum length of %d characters", MaxConstraintLength))
	}

	src, err := Tokenize(constraint)
	if err != nil {
		return nil, err
	}
	tokens, err := Normalize(src)
	if err != nil {
		return nil, err
	}
	prog := &Program{source: constraint, tokens: tokens}
	if _, err := parse(Bind(tokens, "0"), prog.end()); err != nil {
		return nil, err
	}
	return prog, nil
}

// end is the position reported for errors at the end of the constraint.
func (p *Program) end() int {
	return utf8.RuneCountInString(strings.TrimRightFunc(p.source, unicode.IsSpace))
}

// Source returns the constraint text the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Tokens returns a copy of the normalized token stream.
func (p *Program) Tokens() []Token {
	return append([]Token(nil), p.tokens...)
}

// String renders the normalized stream, e.g. ">=1000&&<=9999".
func (p *Program) String() string {
	return Render(p.tokens)
}

// Bind returns the normalized stream with value inserted into every comparison.
func (p *Program) Bind(value string) []Token {
	return Bind(p.tokens, value)
}

// Eval reports whether value satisfies the constraint.
func (p *Program) Eval(value string) (bool, error) {
	res := p.Explain(value)
	if res.Err != nil {
		return false, res.Err
	}
	return res.Valid, nil
}

// Validate compiles constraint and evaluates it against value. The value
// is checked first; a non-numeric value returns ErrValueNotNumeric
// without the constraint being looked at.
func Validate(value, constraint string) (bool, error) {
	if _, ok := ParseNumber(strings.TrimSpace(value)); !ok {
		return false, ErrValueNotNumeric
	}
	prog, err := Compile(constraint)
	if err != nil {
		return false, err
	}
	return prog.Eval(value)
}

// Checker is the fail-closed front end: every failure is logged and
// reported as "does not satisfy".
type Checker struct {
	log *zap.Logger
}

// NewChecker returns a Checker that logs through log. A nil logger
// disables logging.
func NewChecker(log *zap.Logger) *Checker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Checker{log: log}
}

// Check reports whether value satisfies constraint. Malformed constraints
// and non-numeric values yield false.
func (c *Checker) Check(value, constraint string) bool {
	ok, err := Validate(value, constraint)
	if err == nil {
		return ok
	}

	if errors.Is(err, ErrValueNotNumeric) {
		c.log.Debug("Value is not numeric", zap.String("value", value))
		return false
	}

	fields := []zap.Field{zap.String("constraint", constraint), zap.Error(err)}
	var ce *Error
	if errors.As(err, &ce) {
		fields = append(fields, zap.String("kind", string(ce.Kind)), zap.Int("position", ce.Pos))
	}
	c.log.Warn("Invalid numeric constraint", fields...)
	return false
}

// EvaluateNumericValidationExpression reports whether value satisfies the
// numeric constraint, e.g.
//
//	EvaluateNumericValidationExpression("1000", ">=1000 & <=9999")   // true
//	EvaluateNumericValidationExpression("100000", ">=1000 & <=9999") // false
//
// Failures are logged at warn level through the global zap logger.
func EvaluateNumericValidationExpression(value, constraint string) bool {
	return NewChecker(zap.L()).Check(value, constraint)
}
