// Package rules parses YAML/JSON rule files. A rule file names numeric
// field constraints:
//
//	rules:
//	  - name: zip-code
//	    description: five digit US zip
//	    constraint: ">=10000 & <=99999"
//
// Every constraint is compiled at load time, so a file that parses is a
// file whose rules can all be evaluated.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/lemonberrylabs/fieldrules/pkg/constraint"
)

// MaxNameLength is the maximum length of a rule name.
const MaxNameLength = 128

var validName = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// Rule is one named constraint from a rule file.
type Rule struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Constraint  string `yaml:"constraint"`

	program *constraint.Program
}

// Program returns the compiled constraint.
func (r *Rule) Program() *constraint.Program {
	return r.program
}

// RuleSet is the parsed contents of a rule file, in file order.
type RuleSet struct {
	Rules []*Rule `yaml:"rules"`

	byName map[string]*Rule
}

// ValidName reports whether name is usable as a rule name.
func ValidName(name string) bool {
	return len(name) <= MaxNameLength && validName.MatchString(name)
}

// Parse parses and compiles a rule file.
func Parse(data []byte) (*RuleSet, error) {
	var rs RuleSet
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&rs); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("rule file is empty")
		}
		return nil, fmt.Errorf("invalid rule file: %w", err)
	}

	rs.byName = make(map[string]*Rule, len(rs.Rules))
	for i, r := range rs.Rules {
		if r == nil {
			return nil, fmt.Errorf("rule %d: empty entry", i)
		}
		if !ValidName(r.Name) {
			return nil, fmt.Errorf("rule %d: invalid name %q", i, r.Name)
		}
		if _, dup := rs.byName[r.Name]; dup {
			return nil, fmt.Errorf("rule %d (%s): duplicate name", i, r.Name)
		}
		if r.Constraint == "" {
			return nil, fmt.Errorf("rule %d (%s): constraint is required", i, r.Name)
		}

		prog, err := constraint.Compile(r.Constraint)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Name, err)
		}
		r.program = prog
		rs.byName[r.Name] = r
	}

	return &rs, nil
}

// ParseFile reads and parses a rule file.
func ParseFile(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return Parse(data)
}

// Get returns the rule with the given name.
func (rs *RuleSet) Get(name string) (*Rule, bool) {
	r, ok := rs.byName[name]
	return r, ok
}

// Check evaluates value against the named rule.
func (rs *RuleSet) Check(name, value string) (bool, error) {
	r, ok := rs.Get(name)
	if !ok {
		return false, fmt.Errorf("rule %q not found", name)
	}
	return r.program.Eval(value)
}
