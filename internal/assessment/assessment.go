// Package assessment generates IELTS practice prompts, grades answers and
// transcribes spoken answers using the caller's own provider keys.
package assessment

import (
	"context"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/client"
)

// Kind selects the writing or speaking variant of a prompt or grade.
type Kind string

const (
	Writing  Kind = "writing"
	Speaking Kind = "speaking"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == Writing || k == Speaking
}

// Speaking sub-score names, as the grading contract spells them.
const (
	SubFluency         = "Fluency"
	SubLexicalResource = "LexicalResource"
	SubGrammar         = "Grammar"
	SubPronunciation   = "Pronunciation"
)

// Prompt is a generated practice question.
type Prompt struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// GradeResult is an examiner verdict. SubScores is empty for writing.
type GradeResult struct {
	OverallScore float64            `json:"overall_score"`
	SubScores    map[string]float64 `json:"sub_scores,omitempty"`
	Feedback     string             `json:"feedback"`
}

// TextGenerator sends a chat completion with a per-call key.
// Implemented by client.OpenAIClient and client.GeminiClient.
type TextGenerator interface {
	Name() string
	Complete(ctx context.Context, apiKey string, req client.ChatRequest) (string, error)
}

// SpeechClient transcribes audio with a per-call key and holds a connection
// pool that Close releases. Implemented by client.DeepgramClient.
type SpeechClient interface {
	Name() string
	Transcribe(ctx context.Context, apiKey string, audio []byte, opts client.TranscribeOptions) (*client.TranscriptionResponse, error)
	Close() error
}

// SpeechOpener acquires a SpeechClient for one transcription module.
type SpeechOpener func() (SpeechClient, error)

// DefaultModel is the text-generation model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// Per-kind sampling temperatures.
const (
	writingTemperature  float32 = 0.7
	speakingTemperature float32 = 0.6
)

func temperatureFor(kind Kind) float32 {
	if kind == Speaking {
		return speakingTemperature
	}
	return writingTemperature
}

type options struct {
	model string
	log   zerolog.Logger
}

// Option configures a module.
type Option func(*options)

// WithModel sets the text-generation model id.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// WithLogger sets the module logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

func buildOptions(opts []Option) options {
	o := options{model: DefaultModel, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// preview trims provider text for log lines.
func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
