package constraint

import (
	"errors"
	"strings"
)

// KindInvalidValue is the failure kind reported for ErrValueNotNumeric.
// It is never carried by an *Error.
const KindInvalidValue ErrorKind = "InvalidValue"

// Result is the full outcome of evaluating one value.
type Result struct {
	Valid bool
	// Expression is the bound expression, e.g. "1<5&&5<10". Empty when the
	// value or the constraint was rejected before binding.
	Expression string
	Err        error
}

// Detail is the wire form of an evaluation failure.
type Detail struct {
	Kind     string `json:"kind"`
	Position int    `json:"position"`
	Message  string `json:"message"`
}

// DetailOf describes err, or returns nil when err is nil.
func DetailOf(err error) *Detail {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValueNotNumeric) {
		return &Detail{Kind: string(KindInvalidValue), Position: -1, Message: err.Error()}
	}
	var ce *Error
	if errors.As(err, &ce) {
		return &Detail{Kind: string(ce.Kind), Position: ce.Pos, Message: ce.Message}
	}
	return &Detail{Position: -1, Message: err.Error()}
}

// Explain compiles constraint and evaluates it against value, keeping the
// bound expression for display.
func Explain(value, constraint string) Result {
	if _, ok := ParseNumber(strings.TrimSpace(value)); !ok {
		return Result{Err: ErrValueNotNumeric}
	}
	prog, err := Compile(constraint)
	if err != nil {
		return Result{Err: err}
	}
	return prog.Explain(value)
}

// Explain evaluates value against the program, keeping the bound
// expression for display.
func (p *Program) Explain(value string) Result {
	v := strings.TrimSpace(value)
	if _, ok := ParseNumber(v); !ok {
		return Result{Err: ErrValueNotNumeric}
	}

	bound := p.Bind(v)
	res := Result{Expression: Render(bound)}
	node, err := parse(bound, p.end())
	if err != nil {
		res.Err = err
		return res
	}
	res.Valid, res.Err = Evaluate(node)
	return res
}
