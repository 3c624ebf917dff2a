// Package contract extracts and validates JSON objects embedded in free-form
// provider text. Generative providers wrap their answer in prose or markdown
// fences; a Schema names the fields an answer must carry to be usable.
package contract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the JSON type a required field must have.
type Kind int

const (
	Number Kind = iota
	String
)

func (k Kind) String() string {
	switch k {
	case Number:
		return "number"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Field is one required member of a contract.
type Field struct {
	Name string
	Kind Kind
}

// Values holds the validated fields of a parsed object.
type Values struct {
	numbers map[string]float64
	strings map[string]string
}

// Number returns a validated number field.
func (v Values) Number(name string) float64 {
	return v.numbers[name]
}

// Text returns a validated string field.
func (v Values) Text(name string) string {
	return v.strings[name]
}

// Schema describes a contract and how to build T from a validated object.
type Schema[T any] struct {
	Name     string
	Required []Field
	Build    func(Values) T
	// Validate runs after Build for checks the field types cannot express.
	Validate func(T) error
}

// ParseError describes why raw text did not satisfy a schema.
type ParseError struct {
	Schema string
	Field  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("contract %s: %s", e.Schema, e.Reason)
	if e.Field != "" {
		msg = fmt.Sprintf("contract %s: field %q: %s", e.Schema, e.Field, e.Reason)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Locate returns the substring from the first '{' to the last '}' of raw.
func Locate(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return "", false
	}
	return raw[start : end+1], true
}

// Parse locates the candidate object in raw and validates it against s.
func Parse[T any](raw string, s Schema[T]) (T, error) {
	var zero T

	candidate, ok := Locate(raw)
	if !ok {
		return zero, &ParseError{Schema: s.Name, Reason: "no JSON object found"}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return zero, &ParseError{Schema: s.Name, Reason: "candidate is not a JSON object", Err: err}
	}

	values := Values{
		numbers: make(map[string]float64),
		strings: make(map[string]string),
	}
	for _, f := range s.Required {
		rawValue, ok := obj[f.Name]
		if !ok {
			return zero, &ParseError{Schema: s.Name, Field: f.Name, Reason: "missing"}
		}
		if err := decodeField(f, rawValue, values); err != nil {
			return zero, &ParseError{Schema: s.Name, Field: f.Name, Reason: "expected " + f.Kind.String(), Err: err}
		}
	}

	out := s.Build(values)
	if s.Validate != nil {
		if err := s.Validate(out); err != nil {
			return zero, &ParseError{Schema: s.Name, Reason: "invalid", Err: err}
		}
	}
	return out, nil
}

// Extract is Parse with a fallback: any contract failure yields fallback.
func Extract[T any](raw string, s Schema[T], fallback T) T {
	out, err := Parse(raw, s)
	if err != nil {
		return fallback
	}
	return out
}

func decodeField(f Field, raw json.RawMessage, values Values) error {
	// json.Unmarshal accepts null for any type, so it is rejected up front.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return fmt.Errorf("got null")
	}

	switch f.Kind {
	case Number:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return err
		}
		values.numbers[f.Name] = n
	case String:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return err
		}
		values.strings[f.Name] = s
	default:
		return fmt.Errorf("unsupported kind %d", f.Kind)
	}
	return nil
}
