package constraint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []SourceToken
	}{
		{
			input: ">=1000 &  <=9999",
			want: []SourceToken{
				{Kind: SourceComparator, Text: ">=", Pos: 0},
				{Kind: SourceNumeric, Text: "1000", Pos: 2},
				{Kind: SourceLogical, Text: "&", Pos: 7},
				{Kind: SourceComparator, Text: "<=", Pos: 10},
				{Kind: SourceNumeric, Text: "9999", Pos: 12},
			},
		},
		{
			input: "1 < & < 10",
			want: []SourceToken{
				{Kind: SourceNumeric, Text: "1", Pos: 0},
				{Kind: SourceComparator, Text: "<", Pos: 2},
				{Kind: SourceLogical, Text: "&", Pos: 4},
				{Kind: SourceComparator, Text: "<", Pos: 6},
				{Kind: SourceNumeric, Text: "10", Pos: 8},
			},
		},
		{
			input: "!!!>999",
			want: []SourceToken{
				{Kind: SourceNot, Text: "!!!", Pos: 0},
				{Kind: SourceComparator, Text: ">", Pos: 3},
				{Kind: SourceNumeric, Text: "999", Pos: 4},
			},
		},
		{
			input: "((<>-2.5))",
			want: []SourceToken{
				{Kind: SourceParen, Text: "(", Pos: 0},
				{Kind: SourceParen, Text: "(", Pos: 1},
				{Kind: SourceComparator, Text: "<>", Pos: 2},
				{Kind: SourceNumeric, Text: "-2.5", Pos: 4},
				{Kind: SourceParen, Text: ")", Pos: 8},
				{Kind: SourceParen, Text: ")", Pos: 9},
			},
		},
		{
			input: "<1 AnD NOT\t>2",
			want: []SourceToken{
				{Kind: SourceComparator, Text: "<", Pos: 0},
				{Kind: SourceNumeric, Text: "1", Pos: 1},
				{Kind: SourceWord, Text: "and", Pos: 3},
				{Kind: SourceWord, Text: "not", Pos: 7},
				{Kind: SourceComparator, Text: ">", Pos: 11},
				{Kind: SourceNumeric, Text: "2", Pos: 12},
			},
		},
		{
			input: "> >",
			want: []SourceToken{
				{Kind: SourceComparator, Text: ">", Pos: 0},
				{Kind: SourceComparator, Text: ">", Pos: 2},
			},
		},
		{
			input: "   ",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Tokenize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenizeUnexpectedCharacter(t *testing.T) {
	tests := []struct {
		input string
		pos   int
	}{
		{"$$$", 0},
		{">=10 & <=x", 9},
		{"<5 + 1", 3},
		{">1e5", 2},
		{"<=5 ünd", 4},
		{"\u00a0>1 $", 4},
		{"\u3000\u3000<1 @", 5},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Tokenize(tt.input)
			require.Error(t, err)

			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, KindUnexpectedCharacter, ce.Kind)
			assert.Equal(t, tt.pos, ce.Pos)
		})
	}
}
