package contract

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

type verdict struct {
	Score    float64
	Feedback string
}

var verdictSchema = Schema[verdict]{
	Name: "verdict",
	Required: []Field{
		{Name: "score", Kind: Number},
		{Name: "feedback", Kind: String},
	},
	Build: func(v Values) verdict {
		return verdict{Score: v.Number("score"), Feedback: v.Text("feedback")}
	},
}

var verdictFallback = verdict{Score: 6.0, Feedback: "fallback"}

func TestExtract_ReturnsFallbackForMalformedText(t *testing.T) {
	inputs := []string{
		"",
		"I cannot grade this.",
		"{",
		"}",
		"} backwards {",
		"{not json}",
		`{"score": 7}`,
		`{"feedback": "ok"}`,
		`{"score": "7", "feedback": "ok"}`,
		`{"score": null, "feedback": "ok"}`,
		`{"score": 7, "feedback": null}`,
		`{"score": 7, "feedback": 3}`,
		`{"score": true, "feedback": "ok"}`,
		`["score", 7]`,
		`{"Score": 7, "Feedback": "wrong case"}`,
		`first {"score": 1, "feedback": "a"} then {"score": 2, "feedback": "b"}`,
		"```json\n{\"score\": 7, \"feedback\": \"unterminated\"\n```",
	}

	for _, in := range inputs {
		got := Extract(in, verdictSchema, verdictFallback)
		if got != verdictFallback {
			t.Errorf("Extract(%q) = %+v, want fallback", in, got)
		}
	}
}

func TestExtract_RoundTripsWellFormedObjects(t *testing.T) {
	tests := []struct {
		raw  string
		want verdict
	}{
		{`{"score": 4.5, "feedback": "Too short."}`, verdict{4.5, "Too short."}},
		{"Here is the grade:\n```json\n{\"score\": 7, \"feedback\": \"Good {structure}.\"}\n```\nThanks!", verdict{7, "Good {structure}."}},
		{`{"feedback": "extra fields ignored", "score": 0, "band": "A"}`, verdict{0, "extra fields ignored"}},
		{`{"score": 15, "feedback": "out of range passes"}`, verdict{15, "out of range passes"}},
		{`{"score": -1.25e0, "feedback": ""}`, verdict{-1.25, ""}},
	}

	for _, tt := range tests {
		got := Extract(tt.raw, verdictSchema, verdictFallback)
		if got != tt.want {
			t.Errorf("Extract(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}
}

func TestExtract_GeneratedObjects(t *testing.T) {
	for i := 0; i < 50; i++ {
		want := verdict{Score: float64(i) / 4, Feedback: strings.Repeat("x", i)}
		raw := fmt.Sprintf("prose %d\n{\"score\": %v, \"feedback\": %q}\nmore prose", i, want.Score, want.Feedback)
		if got := Extract(raw, verdictSchema, verdictFallback); got != want {
			t.Fatalf("Extract(%q) = %+v, want %+v", raw, got, want)
		}
	}
}

func TestParse_ReportsField(t *testing.T) {
	_, err := Parse(`{"score": "high", "feedback": "x"}`, verdictSchema)

	var perr *ParseError
	if !stderrors.As(err, &perr) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Schema != "verdict" || perr.Field != "score" {
		t.Errorf("ParseError = %+v", perr)
	}
}

func TestParse_Validate(t *testing.T) {
	schema := verdictSchema
	schema.Validate = func(v verdict) error {
		if strings.TrimSpace(v.Feedback) == "" {
			return stderrors.New("feedback is blank")
		}
		return nil
	}

	if _, err := Parse(`{"score": 5, "feedback": "  "}`, schema); err == nil {
		t.Fatal("expected validation error")
	}
	if got := Extract(`{"score": 5, "feedback": "  "}`, schema, verdictFallback); got != verdictFallback {
		t.Fatalf("expected fallback, got %+v", got)
	}
}

func TestLocate(t *testing.T) {
	got, ok := Locate(`say {"a": {"b": 1}} end`)
	if !ok || got != `{"a": {"b": 1}}` {
		t.Fatalf("Locate = %q, %v", got, ok)
	}
	if _, ok := Locate("no braces"); ok {
		t.Fatal("expected no span")
	}
}
