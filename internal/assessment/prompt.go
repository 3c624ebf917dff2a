package assessment

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/contract"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
)

// PromptModule generates practice questions.
type PromptModule struct {
	gen   TextGenerator
	model string
	log   zerolog.Logger
}

// NewPromptModule creates a PromptModule over gen.
func NewPromptModule(gen TextGenerator, opts ...Option) *PromptModule {
	o := buildOptions(opts)
	return &PromptModule{gen: gen, model: o.model, log: o.log}
}

// Generate asks the provider for one question of kind. Transport failures
// are returned; an unusable answer yields the kind's fallback prompt.
func (m *PromptModule) Generate(ctx context.Context, kind Kind, cred *credential.Credential) (Prompt, error) {
	if !kind.Valid() {
		return Prompt{}, errors.Validation("unknown prompt kind: " + string(kind))
	}
	key, ok := cred.TextGen()
	if !ok {
		return Prompt{}, errors.Credential(errors.ReasonMissingKey, "text generation key is not configured")
	}

	template, schema, fallback := writingPromptTemplate, writingPromptSchema, FallbackWritingPrompt
	if kind == Speaking {
		template, schema, fallback = speakingPromptTemplate, speakingPromptSchema, FallbackSpeakingPrompt
	}

	raw, err := m.gen.Complete(ctx, key, client.ChatRequest{
		Model:       m.model,
		Messages:    []client.ChatMessage{{Role: client.RoleUser, Content: template}},
		Temperature: temperatureFor(kind),
	})
	if err != nil {
		return Prompt{}, err
	}

	prompt, err := contract.Parse(raw, schema)
	if err != nil {
		m.log.Warn().
			Err(err).
			Str("schema", schema.Name).
			Str("raw", preview(raw)).
			Msg("Prompt contract failed, using fallback")
		return fallback, nil
	}

	m.log.Debug().Str("kind", string(kind)).Msg("Prompt generated")
	return prompt, nil
}
