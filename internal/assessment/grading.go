package assessment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/contract"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
)

// GradingModule grades an essay or a transcribed spoken answer.
type GradingModule struct {
	gen   TextGenerator
	model string
	log   zerolog.Logger
}

// NewGradingModule creates a GradingModule over gen.
func NewGradingModule(gen TextGenerator, opts ...Option) *GradingModule {
	o := buildOptions(opts)
	return &GradingModule{gen: gen, model: o.model, log: o.log}
}

// Grade sends response and the prompt it answers to the provider. Scores
// are returned as parsed, without clamping to the band range.
func (m *GradingModule) Grade(ctx context.Context, kind Kind, response, prompt string, cred *credential.Credential) (GradeResult, error) {
	if !kind.Valid() {
		return GradeResult{}, errors.Validation("unknown grading kind: " + string(kind))
	}
	if strings.TrimSpace(response) == "" {
		return GradeResult{}, errors.Input(errors.ReasonEmptyResponse, "response to grade is empty")
	}
	if strings.TrimSpace(prompt) == "" {
		return GradeResult{}, errors.Input(errors.ReasonMissingPrompt, "prompt is required for grading")
	}
	key, ok := cred.TextGen()
	if !ok {
		return GradeResult{}, errors.Credential(errors.ReasonMissingKey, "text generation key is not configured")
	}

	template, schema, fallback := writingGradeTemplate, writingGradeSchema, FallbackWritingGrade
	if kind == Speaking {
		template, schema, fallback = speakingGradeTemplate, speakingGradeSchema, FallbackSpeakingGrade
	}

	raw, err := m.gen.Complete(ctx, key, client.ChatRequest{
		Model:       m.model,
		Messages:    []client.ChatMessage{{Role: client.RoleUser, Content: fmt.Sprintf(template, prompt, response)}},
		Temperature: temperatureFor(kind),
	})
	if err != nil {
		return GradeResult{}, err
	}

	result, err := contract.Parse(raw, schema)
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("schema", schema.Name).
			Str("raw", preview(raw)).
			Msg("Grade contract failed, using fallback")
		return cloneGrade(fallback), nil
	}

	m.log.Debug().
		Str("kind", string(kind)).
		Float64("score", result.OverallScore).
		Msg("Response graded")
	return result, nil
}
