package assessment

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/client"
	"github.com/windfall/ielts_service/internal/credential"
	"github.com/windfall/ielts_service/internal/errors"
)

// DefaultTranscribeOptions are the options every transcription uses.
var DefaultTranscribeOptions = client.TranscribeOptions{
	Model:       "nova-3",
	Language:    "en",
	SmartFormat: true,
	Paragraphs:  true,
	ContentType: "audio/wav",
}

// TranscriptionModule owns one speech client from construction until Close.
type TranscriptionModule struct {
	mu     sync.RWMutex
	client SpeechClient
	opts   client.TranscribeOptions
	log    zerolog.Logger
}

// NewTranscriptionModule acquires a speech client through open.
func NewTranscriptionModule(open SpeechOpener, opts ...Option) (*TranscriptionModule, error) {
	o := buildOptions(opts)
	c, err := open()
	if err != nil {
		return nil, errors.InternalWrap("failed to open speech client", err)
	}
	return &TranscriptionModule{client: c, opts: DefaultTranscribeOptions, log: o.log}, nil
}

// Transcribe returns the first channel's first alternative, which may be
// empty when the audio holds no speech.
func (m *TranscriptionModule) Transcribe(ctx context.Context, audio []byte, cred *credential.Credential) (string, error) {
	if len(audio) == 0 {
		return "", errors.Input(errors.ReasonEmptyAudio, "audio is empty")
	}
	key, ok := cred.Speech()
	if !ok {
		return "", errors.Credential(errors.ReasonMissingKey, "speech-to-text key is not configured")
	}

	// Close waits for in-flight calls.
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return "", errors.Internal("transcription module is closed")
	}

	resp, err := m.client.Transcribe(ctx, key, audio, m.opts)
	if err != nil {
		return "", err
	}

	if resp == nil {
		return "", errors.Provider(m.client.Name(), errors.ReasonInvalidResponse, fmt.Errorf("empty response"))
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		m.log.Debug().Int("audio_bytes", len(audio)).Msg("Transcription has no alternatives")
		return "", nil
	}

	transcript := resp.Results.Channels[0].Alternatives[0].Transcript
	m.log.Debug().
		Int("audio_bytes", len(audio)).
		Int("transcript_len", len(transcript)).
		Msg("Audio transcribed")
	return transcript, nil
}

// Close releases the speech client. It is safe to call more than once.
func (m *TranscriptionModule) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}
