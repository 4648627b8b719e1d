// Package constraint implements the numeric field constraint language.
// A constraint such as ">=1000 & <=9999" is lexed into source tokens,
// normalized into a boolean token stream, bound to a candidate value and
// evaluated by a small recursive descent interpreter.
package constraint

// SourceKind classifies a token as written by the constraint author.
type SourceKind int

const (
	SourceComparator SourceKind = iota // < > = runs
	SourceLogical                      // & | runs
	SourceNumeric                      // digits, '-' and '.'
	SourceWord                         // keyword letters a, n, d, o, r, t
	SourceParen                        // ( or )
	SourceNot                          // ! runs
)

// SourceToken is a lexed token. Text is case-folded and Pos is the byte
// offset of its first character in the constraint.
type SourceToken struct {
	Kind SourceKind
	Text string
	Pos  int
}

// String returns a debug-friendly representation of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceComparator:
		return "COMPARATOR"
	case SourceLogical:
		return "LOGICAL"
	case SourceNumeric:
		return "NUMERIC"
	case SourceWord:
		return "WORD"
	case SourceParen:
		return "PAREN"
	case SourceNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// TokenKind classifies a normalized token. Words never survive
// normalization, so there is no word kind here.
type TokenKind int

const (
	TokenComparator TokenKind = iota
	TokenLogical
	TokenNumeric
	TokenParen
	TokenNot
)

// Token is a normalized or bound token. Bound value tokens inserted by
// Bind carry Pos -1.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

// String returns a debug-friendly representation of the token kind.
func (k TokenKind) String() string {
	switch k {
	case TokenComparator:
		return "COMPARATOR"
	case TokenLogical:
		return "LOGICAL"
	case TokenNumeric:
		return "NUMERIC"
	case TokenParen:
		return "PAREN"
	case TokenNot:
		return "NOT"
	default:
		return "UNKNOWN"
	}
}

// Canonical operator spellings used in the normalized stream.
const (
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
	OpEqual        = "="
	OpNotEqual     = "<>"

	LogicalAnd = "&&"
	LogicalOr  = "||"
	NotText    = "!"
)
