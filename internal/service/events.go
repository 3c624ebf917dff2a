package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Archiver stores a recording and returns a URL for it.
// Implemented by client.CloudflareClient and client.StorageClient.
type Archiver interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// EventPublisher publishes practice events. Implemented by client.PubSubClient.
type EventPublisher interface {
	Publish(ctx context.Context, data interface{}, attrs map[string]string) error
}

// Practice event types.
const (
	EventWritingGraded  = "writing.graded"
	EventSpeakingGraded = "speaking.graded"
)

// AttemptEvent is published after an answer is graded and stored.
type AttemptEvent struct {
	Type       string             `json:"type"`
	UserID     string             `json:"user_id"`
	QuestionID int64              `json:"question_id"`
	AnswerID   int64              `json:"answer_id"`
	Score      float64            `json:"score"`
	SubScores  map[string]float64 `json:"sub_scores,omitempty"`
	AudioURL   string             `json:"audio_url,omitempty"`
	OccurredAt time.Time          `json:"occurred_at"`
}

const publishTimeout = 5 * time.Second

// publish sends event without failing the caller; the request context may
// already be done when grading finishes.
func publish(ctx context.Context, pub EventPublisher, log zerolog.Logger, event AttemptEvent) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := pub.Publish(ctx, event, map[string]string{"type": event.Type}); err != nil {
		log.Warn().Err(err).Str("type", event.Type).Int64("answer_id", event.AnswerID).Msg("Failed to publish attempt event")
	}
}

// recentLimit is how many past attempts the history views show.
const recentLimit = 5
