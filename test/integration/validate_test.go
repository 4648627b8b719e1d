package integration

import (
	"net/http"
	"testing"
)

func TestValidateExamples(t *testing.T) {
	requireServer(t)

	tests := []struct {
		value      string
		constraint string
		want       bool
	}{
		{"1000", ">=1000 & <=9999", true},
		{"100000", ">=1000 & <=9999", false},
		{"5", "1 < & < 10", true},
		{"150", "(>=100 & <=200) | (>=500 & <=900)", true},
		{"300", "(>=100 & <=200) | (>=500 & <=900)", false},
		{"1000", "!>999", false},
		{"999", "!>999", true},
		{"0", "not >0 and not <0", true},
	}

	for _, tt := range tests {
		t.Run(tt.value+" "+tt.constraint, func(t *testing.T) {
			code, body := doJSON(t, http.MethodPost, "validate",
				map[string]any{"value": tt.value, "constraint": tt.constraint})
			if code != http.StatusOK {
				t.Fatalf("status %d: %v", code, body)
			}
			if body["valid"] != tt.want {
				t.Errorf("valid = %v, want %v (expression %v)", body["valid"], tt.want, body["expression"])
			}
		})
	}
}

func TestValidateFailsClosed(t *testing.T) {
	requireServer(t)

	tests := []struct {
		name       string
		value      string
		constraint string
		kind       string
	}{
		{"unknown character", "5", ">1 $", "UnexpectedCharacter"},
		{"unknown word", "5", ">1 nor <9", "UnexpectedOperator"},
		{"unbalanced", "5", "(>=1", "MalformedConstraint"},
		{"bad value", "five", ">1", "InvalidValue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := doJSON(t, http.MethodPost, "validate",
				map[string]any{"value": tt.value, "constraint": tt.constraint})
			if code != http.StatusOK {
				t.Fatalf("status %d: %v", code, body)
			}
			if body["valid"] != false {
				t.Errorf("expected valid=false, got %v", body["valid"])
			}
			e, _ := body["error"].(map[string]any)
			if e["kind"] != tt.kind {
				t.Errorf("error kind = %v, want %s", e["kind"], tt.kind)
			}
		})
	}
}
