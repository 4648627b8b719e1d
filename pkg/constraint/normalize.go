package constraint

// complements maps each accepted comparator spelling to its canonical form
// and the canonical form of its logical complement.
var complements = map[string][2]string{
	"<":  {OpLess, OpGreaterEqual},
	"<=": {OpLessEqual, OpGreater},
	">":  {OpGreater, OpLessEqual},
	">=": {OpGreaterEqual, OpLess},
	"=":  {OpEqual, OpNotEqual},
	"<>": {OpNotEqual, OpEqual},
}

// Normalize rewrites source tokens into the canonical boolean token stream.
// Word and symbol synonyms collapse to one spelling, NOT runs are reduced
// by parity, adjacent negations annihilate and a negated comparator is
// replaced by its complement.
func Normalize(tokens []SourceToken) ([]Token, error) {
	out := make([]Token, 0, len(tokens))

	for _, tok := range tokens {
		switch tok.Kind {
		case SourceNumeric:
			out = append(out, Token{Kind: TokenNumeric, Text: tok.Text, Pos: tok.Pos})

		case SourceParen:
			out = append(out, Token{Kind: TokenParen, Text: tok.Text, Pos: tok.Pos})

		case SourceLogical:
			// "&&" and "||" are what Render emits, so they round-trip.
			switch tok.Text {
			case "&", LogicalAnd:
				out = append(out, Token{Kind: TokenLogical, Text: LogicalAnd, Pos: tok.Pos})
			case "|", LogicalOr:
				out = append(out, Token{Kind: TokenLogical, Text: LogicalOr, Pos: tok.Pos})
			default:
				return nil, NewUnexpectedOperatorError(tok.Pos, tok.Text)
			}

		case SourceWord:
			switch tok.Text {
			case "and":
				out = append(out, Token{Kind: TokenLogical, Text: LogicalAnd, Pos: tok.Pos})
			case "or":
				out = append(out, Token{Kind: TokenLogical, Text: LogicalOr, Pos: tok.Pos})
			case "not":
				out = negate(out, tok.Pos)
			default:
				return nil, NewUnexpectedOperatorError(tok.Pos, tok.Text)
			}

		case SourceNot:
			if len(tok.Text)%2 == 1 {
				out = negate(out, tok.Pos)
			}

		case SourceComparator:
			forms, ok := complements[tok.Text]
			if !ok {
				return nil, NewUnexpectedOperatorError(tok.Pos, tok.Text)
			}
			op := forms[0]
			if pendingNot(out) {
				out = out[:len(out)-1]
				op = forms[1]
			}
			out = append(out, Token{Kind: TokenComparator, Text: op, Pos: tok.Pos})

		default:
			return nil, NewUnexpectedOperatorError(tok.Pos, tok.Text)
		}
	}

	return out, nil
}

// negate applies one logical negation: it cancels a NOT emitted just
// before, or emits a new one.
func negate(out []Token, pos int) []Token {
	if pendingNot(out) {
		return out[:len(out)-1]
	}
	return append(out, Token{Kind: TokenNot, Text: NotText, Pos: pos})
}

func pendingNot(out []Token) bool {
	return len(out) > 0 && out[len(out)-1].Kind == TokenNot
}
