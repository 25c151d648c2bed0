package search

import (
	"reflect"
	"testing"
)

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		terms   []string
		phrases []string
	}{
		{"bare terms", "alpha beta", []string{"alpha", "beta"}, nil},
		{"single phrase", `"exact match"`, nil, []string{"exact match"}},
		{"mixed", `alpha "two words" beta`, []string{"alpha", "beta"}, []string{"two words"}},
		{"unterminated quote", `alpha "runs to end`, []string{"alpha"}, []string{"runs to end"}},
		{"empty phrase ignored", `alpha ""`, []string{"alpha"}, nil},
		{"whitespace only", "   ", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseQuery(tt.text)
			if !reflect.DeepEqual(got.terms, tt.terms) {
				t.Errorf("terms = %v, want %v", got.terms, tt.terms)
			}
			if !reflect.DeepEqual(got.phrases, tt.phrases) {
				t.Errorf("phrases = %v, want %v", got.phrases, tt.phrases)
			}
		})
	}
}

func TestParsedQueryEmpty(t *testing.T) {
	if !parseQuery("").empty() {
		t.Error("empty text should parse to empty query")
	}
	if parseQuery("term").empty() {
		t.Error("non-empty text should not be empty")
	}
}
