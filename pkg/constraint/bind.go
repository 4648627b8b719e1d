package constraint

import "strings"

// Bind inserts the candidate value next to every comparator. When the
// comparator follows a numeric literal ("1 <") the value goes after it,
// otherwise before it (">= 1000" becomes "value >= 1000"). The value is
// carried as text and only parsed during evaluation.
func Bind(tokens []Token, value string) []Token {
	out := make([]Token, 0, len(tokens)*2)
	operand := Token{Kind: TokenNumeric, Text: value, Pos: -1}

	for _, tok := range tokens {
		if tok.Kind != TokenComparator {
			out = append(out, tok)
			continue
		}
		if len(out) > 0 && out[len(out)-1].Kind == TokenNumeric {
			out = append(out, tok, operand)
		} else {
			out = append(out, operand, tok)
		}
	}
	return out
}

// Render concatenates token texts, producing e.g. "1<5&&5<10" for a bound
// stream or ">=1000&&<=9999" for a normalized one.
func Render(tokens []Token) string {
	var sb strings.Builder
	for _, tok := range tokens {
		sb.WriteString(tok.Text)
	}
	return sb.String()
}
