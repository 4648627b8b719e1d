package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
)

func TestParseFileYAML(t *testing.T) {
	rs, err := ParseFile("testdata/fields.yaml")
	require.NoError(t, err)
	require.Len(t, rs.Rules, 3)

	zip, ok := rs.Get("zip-code")
	require.True(t, ok)
	assert.Equal(t, "five digit US zip", zip.Description)
	assert.Equal(t, ">=10000&&<=99999", zip.Program().String())

	tests := []struct {
		rule  string
		value string
		want  bool
	}{
		{"zip-code", "12134", true},
		{"zip-code", "2134", false},
		{"discount-percent", "100", true},
		{"discount-percent", "100.5", false},
		{"pick-window", "150", true},
		{"pick-window", "300", false},
	}
	for _, tt := range tests {
		t.Run(tt.rule+"/"+tt.value, func(t *testing.T) {
			got, err := rs.Check(tt.rule, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFileJSON(t *testing.T) {
	rs, err := ParseFile("testdata/fields.json")
	require.NoError(t, err)

	ok, err := rs.Check("age", "150")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = rs.Check("not-negative", "-1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = rs.Check("height", "1")
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr string
	}{
		{"empty", "", "empty"},
		{"bad yaml", "rules: [", "invalid rule file"},
		{"unknown field", "rules:\n  - name: a\n    constraint: '>1'\n    max: 3\n", "invalid rule file"},
		{"bad name", "rules:\n  - name: Zip\n    constraint: '>1'\n", `invalid name "Zip"`},
		{"long name", "rules:\n  - name: " + strings.Repeat("a", MaxNameLength+1) + "\n    constraint: '>1'\n", "invalid name"},
		{"duplicate", "rules:\n  - name: a\n    constraint: '>1'\n  - name: a\n    constraint: '<1'\n", "rule 1 (a): duplicate name"},
		{"missing constraint", "rules:\n  - name: a\n", "rule 0 (a): constraint is required"},
		{"bad constraint", "rules:\n  - name: a\n    constraint: '>1 xor <5'\n", "UnexpectedCharacter"},
		{"unbalanced parenthesis", "rules:\n  - name: a\n    constraint: '(>1'\n", "rule 0 (a): MalformedConstraint"},
		{"missing logical", "rules:\n  - name: a\n    constraint: '>=1000 <=9999'\n", "MalformedConstraint at position 7"},
		{"bad literal", "rules:\n  - name: a\n    constraint: '> 1..2'\n", "InvalidNumericLiteral"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.source))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseKeepsConstraintErrorKind(t *testing.T) {
	_, err := Parse([]byte("rules:\n  - name: a\n    constraint: '>1 nor <5'\n"))
	assert.Equal(t, constraint.KindUnexpectedOperator, constraint.KindOf(err))
}

func TestParseFileMissing(t *testing.T) {
	_, err := ParseFile("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("zip-code"))
	assert.True(t, ValidName("a_1"))
	assert.False(t, ValidName("1a"))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName("zip code"))
}
