package constraint

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Parser is a recursive descent parser over a bound token stream.
type Parser struct {
	tokens []Token
	pos    int
	end    int
}

// Parse builds an expression tree from a bound token stream.
func Parse(tokens []Token) (Node, error) {
	return parse(tokens, endPos(tokens))
}

// parse is Parse with an explicit end-of-input position for diagnostics.
func parse(tokens []Token, end int) (Node, error) {
	p := &Parser{tokens: tokens, end: end}
	if len(tokens) == 0 {
		return nil, NewMalformedConstraintError(-1, "empty constraint")
	}

	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}

	if !p.atEnd() {
		tok := p.current()
		return nil, NewMalformedConstraintError(p.errPos(), fmt.Sprintf("unexpected %s %q", tok.Kind, tok.Text))
	}
	return node, nil
}

// endPos approximates the end of input as the offset just past the last
// source token. Normalized text may differ in length from the source.
func endPos(tokens []Token) int {
	for i := len(tokens) - 1; i >= 0; i-- {
		if tokens[i].Pos >= 0 {
			return tokens[i].Pos + len(tokens[i].Text)
		}
	}
	return -1
}

func (p *Parser) atEnd() bool {
	return p.pos >= len(p.tokens)
}

// current returns the current token; callers check atEnd first.
func (p *Parser) current() Token {
	return p.tokens[p.pos]
}

func (p *Parser) advance() Token {
	tok := p.current()
	p.pos++
	return tok
}

// is reports whether the current token has the given kind and text.
func (p *Parser) is(kind TokenKind, text string) bool {
	return !p.atEnd() && p.current().Kind == kind && p.current().Text == text
}

// errPos is the position to blame for a failure at the current token.
// Bound value tokens have no position of their own and borrow the one of
// the next source token.
func (p *Parser) errPos() int {
	for i := p.pos; i < len(p.tokens); i++ {
		if p.tokens[i].Pos >= 0 {
			return p.tokens[i].Pos
		}
	}
	return p.end
}

// Precedence (low to high):
//   ||
//   &&
//   !
//   comparison, parenthesized group
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.is(TokenLogical, LogicalOr) {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}

	for p.is(TokenLogical, LogicalAnd) {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &AndNode{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if !p.atEnd() && p.current().Kind == TokenNot {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &NotNode{Operand: operand}, nil
	}
	return p.parseAtom()
}

func (p *Parser) parseAtom() (Node, error) {
	if p.atEnd() {
		return nil, NewMalformedConstraintError(p.end, "unexpected end of constraint")
	}

	tok := p.current()
	switch {
	case tok.Kind == TokenParen && tok.Text == "(":
		p.advance()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if !p.is(TokenParen, ")") {
			return nil, NewMalformedConstraintError(p.errPos(), "expected ')'")
		}
		p.advance()
		return &GroupNode{Inner: inner}, nil

	case tok.Kind == TokenNumeric:
		return p.parseComparison()

	case tok.Kind == TokenComparator:
		return nil, NewMalformedConstraintError(tok.Pos, fmt.Sprintf("missing operand before %q", tok.Text))

	default:
		return nil, NewMalformedConstraintError(tok.Pos, fmt.Sprintf("unexpected %s %q", tok.Kind, tok.Text))
	}
}

// parseComparison parses NUMBER COMPARATOR NUMBER.
func (p *Parser) parseComparison() (Node, error) {
	leftTok := p.advance()
	left, err := parseOperand(leftTok)
	if err != nil {
		return nil, err
	}

	if p.atEnd() || p.current().Kind != TokenComparator {
		return nil, NewMalformedConstraintError(p.errPos(), "expected comparator")
	}
	opTok := p.advance()

	if p.atEnd() || p.current().Kind != TokenNumeric {
		return nil, NewMalformedConstraintError(p.errPos(), fmt.Sprintf("missing operand after %q", opTok.Text))
	}
	right, err := parseOperand(p.advance())
	if err != nil {
		return nil, err
	}

	return &CompareNode{Op: opTok.Text, Left: left, Right: right}, nil
}

func parseOperand(tok Token) (float64, error) {
	f, ok := ParseNumber(tok.Text)
	if !ok {
		return 0, NewInvalidNumericLiteralError(tok.Pos, tok.Text)
	}
	return f, nil
}

// ParseNumber parses a finite decimal number. The whole string must be
// numeric: "12abc", hex forms, NaN and infinities are rejected.
func ParseNumber(s string) (float64, bool) {
	if s == "" || strings.ContainsAny(s, "xX") {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
