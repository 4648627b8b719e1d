package constraint

import (
	"unicode"
)

// Lexer tokenizes a constraint string. Adjacent characters of the same
// kind merge into a single token unless whitespace separates them, so
// ">=" is one comparator and "!!" is one NOT token of length two.
type Lexer struct {
	input   string
	tokens  []SourceToken
	current SourceToken
	open    bool
}

// NewLexer creates a new lexer for the given constraint.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize is shorthand for NewLexer(constraint).Tokenize().
func Tokenize(constraint string) ([]SourceToken, error) {
	return NewLexer(constraint).Tokenize()
}

// Tokenize scans the entire input and returns all tokens. It stops at the
// first character outside the constraint alphabet. Positions count
// characters, not bytes.
func (l *Lexer) Tokenize() ([]SourceToken, error) {
	pos := -1
	for _, r := range l.input {
		pos++
		if unicode.IsSpace(r) {
			l.flush()
			continue
		}

		ch := unicode.ToLower(r)
		kind, ok := classify(ch)
		if !ok {
			return nil, NewUnexpectedCharacterError(pos, r)
		}

		// Parentheses never merge: "((" is two tokens.
		if l.open && l.current.Kind == kind && kind != SourceParen {
			l.current.Text += string(ch)
			continue
		}

		l.flush()
		l.current = SourceToken{Kind: kind, Text: string(ch), Pos: pos}
		l.open = true
	}
	l.flush()

	return l.tokens, nil
}

func (l *Lexer) flush() {
	if !l.open {
		return
	}
	l.tokens = append(l.tokens, l.current)
	l.open = false
}

// classify maps a case-folded character to its source kind.
func classify(ch rune) (SourceKind, bool) {
	switch {
	case ch >= '0' && ch <= '9', ch == '-', ch == '.':
		return SourceNumeric, true
	case ch == '(' || ch == ')':
		return SourceParen, true
	case ch == '<' || ch == '>' || ch == '=':
		return SourceComparator, true
	case ch == '&' || ch == '|':
		return SourceLogical, true
	case ch == '!':
		return SourceNot, true
	case isKeywordLetter(ch):
		return SourceWord, true
	default:
		return 0, false
	}
}

// isKeywordLetter reports whether ch can appear in "and", "or" or "not".
func isKeywordLetter(ch rune) bool {
	switch ch {
	case 'a', 'n', 'd', 'o', 'r', 't':
		return true
	}
	return false
}
