package assessment

import (
	"context"

	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
)

// Resolver resolves a user's credential. Implemented by credential.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, userID string) (*credential.Credential, error)
}

// Deps are the shared modules a facade is built from.
type Deps struct {
	Resolver   Resolver
	Prompts    *PromptModule
	Grader     *GradingModule
	OpenSpeech SpeechOpener
}

// WritingFacade runs writing practice for one user.
type WritingFacade struct {
	cred    *credential.Credential
	prompts *PromptModule
	grader  *GradingModule
}

func newWritingFacade(cred *credential.Credential, prompts *PromptModule, grader *GradingModule) *WritingFacade {
	return &WritingFacade{cred: cred, prompts: prompts, grader: grader}
}

// NewWritingFacade resolves userID's credential once and requires a
// text-generation key.
func NewWritingFacade(ctx context.Context, deps Deps, userID string) (*WritingFacade, error) {
	cred, err := deps.Resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := cred.TextGen(); !ok {
		return nil, errors.Credential(errors.ReasonMissingKey, "text generation key is not configured")
	}
	return newWritingFacade(cred, deps.Prompts, deps.Grader), nil
}

// UserID returns the user the facade is bound to.
func (f *WritingFacade) UserID() string {
	return f.cred.UserID
}

// GeneratePrompt returns a new writing question.
func (f *WritingFacade) GeneratePrompt(ctx context.Context) (Prompt, error) {
	return f.prompts.Generate(ctx, Writing, f.cred)
}

// Grade grades an essay against the question it answers.
func (f *WritingFacade) Grade(ctx context.Context, response, prompt string) (GradeResult, error) {
	return f.grader.Grade(ctx, Writing, response, prompt, f.cred)
}

// SpeakingFacade runs speaking practice for one user. Close releases its
// transcription module.
type SpeakingFacade struct {
	cred        *credential.Credential
	prompts     *PromptModule
	grader      *GradingModule
	transcriber *TranscriptionModule
}

func newSpeakingFacade(cred *credential.Credential, prompts *PromptModule, grader *GradingModule, transcriber *TranscriptionModule) *SpeakingFacade {
	return &SpeakingFacade{cred: cred, prompts: prompts, grader: grader, transcriber: transcriber}
}

// NewSpeakingFacade resolves userID's credential once and requires both keys
// before acquiring a speech client.
func NewSpeakingFacade(ctx context.Context, deps Deps, userID string) (*SpeakingFacade, error) {
	cred, err := deps.Resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := cred.TextGen(); !ok {
		return nil, errors.Credential(errors.ReasonMissingKey, "text generation key is not configured")
	}
	if _, ok := cred.Speech(); !ok {
		return nil, errors.Credential(errors.ReasonMissingKey, "speech-to-text key is not configured")
	}

	transcriber, err := NewTranscriptionModule(deps.OpenSpeech, WithLogger(deps.Prompts.log))
	if err != nil {
		return nil, err
	}
	return newSpeakingFacade(cred, deps.Prompts, deps.Grader, transcriber), nil
}

// UserID returns the user the facade is bound to.
func (f *SpeakingFacade) UserID() string {
	return f.cred.UserID
}

// GeneratePrompt returns a new speaking cue card.
func (f *SpeakingFacade) GeneratePrompt(ctx context.Context) (Prompt, error) {
	return f.prompts.Generate(ctx, Speaking, f.cred)
}

// Transcribe converts recorded audio to text.
func (f *SpeakingFacade) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f.transcriber.Transcribe(ctx, audio, f.cred)
}

// Grade grades a transcript against the cue card it answers.
func (f *SpeakingFacade) Grade(ctx context.Context, response, prompt string) (GradeResult, error) {
	return f.grader.Grade(ctx, Speaking, response, prompt, f.cred)
}

// Close releases the transcription module.
func (f *SpeakingFacade) Close() error {
	return f.transcriber.Close()
}
