// Package ws drives speaking recordings over a WebSocket connection.
//
// Text frames carry JSON control messages ({"type": "start", "payload":
// {"question_id": 1}}, "stop", "ping"); binary frames carry raw 16-bit mono
// PCM at 44.1 kHz, appended to the recording in arrival order.
package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/capture"
	"github.com/windfall/ielts_service/internal/errors"
	"github.com/windfall/ielts_service/internal/service"
)

// MessageType constants
const (
	TypePing    = "ping"
	TypePong    = "pong"
	TypeStart   = "start"
	TypeStop    = "stop"
	TypeStarted = "started"
	TypeElapsed = "elapsed"
	TypeStopped = "stopped"
	TypeGraded  = "graded"
	TypeError   = "error"
)

// Recorder grades a finished recording. Implemented by service.SpeakingService.
type Recorder interface {
	SubmitRecording(ctx context.Context, userID string, questionID int64, path string) (*service.SpeakingSubmission, error)
}

// Handler creates per-connection recording sessions.
type Handler struct {
	recorder Recorder
	dir      string
	log      zerolog.Logger
	opts     []capture.SessionOption
}

// NewHandler creates a new WebSocket handler writing recordings into dir.
func NewHandler(recorder Recorder, dir string, log zerolog.Logger, opts ...capture.SessionOption) *Handler {
	return &Handler{recorder: recorder, dir: dir, log: log, opts: opts}
}

// Message is an incoming control message.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents a WebSocket response.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// StartPayload selects the cue card being answered.
type StartPayload struct {
	QuestionID int64 `json:"question_id"`
}

// ElapsedPayload is sent once per tick while recording.
type ElapsedPayload struct {
	Seconds float64 `json:"seconds"`
	Display string  `json:"display"`
}

// StoppedPayload describes the finished file.
type StoppedPayload struct {
	BytesWritten    int64   `json:"bytes_written"`
	DurationSeconds float64 `json:"duration_seconds"`
	Notice          string  `json:"notice,omitempty"`
}

// ErrorPayload mirrors the HTTP error body.
type ErrorPayload struct {
	Code    string                 `json:"code"`
	Reason  string                 `json:"reason,omitempty"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Conn is one client's recording state. HandleText, HandleBinary and Close
// are called from the connection's read loop; send must be safe for
// concurrent use.
type Conn struct {
	h      *Handler
	userID string
	send   func([]byte)
	log    zerolog.Logger

	device  *capture.ChannelDevice
	session *capture.Session

	questionID int64
	ticks      sync.WaitGroup
}

// NewConn creates the recording state for an authenticated connection.
func (h *Handler) NewConn(clientID, userID string, send func([]byte)) *Conn {
	log := h.log.With().Str("client_id", clientID).Str("user_id", userID).Logger()
	device := capture.NewChannelDevice(0)
	opts := append([]capture.SessionOption{capture.WithSessionLogger(log)}, h.opts...)
	return &Conn{
		h:       h,
		userID:  userID,
		send:    send,
		log:     log,
		device:  device,
		session: capture.NewSession(device, h.dir, opts...),
	}
}

// HandleText processes a control message.
func (c *Conn) HandleText(ctx context.Context, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError(errors.Validation("invalid message"))
		return
	}

	c.log.Debug().Str("type", msg.Type).Msg("Handling WebSocket message")

	switch msg.Type {
	case TypePing:
		c.reply(TypePong, map[string]string{"message": "pong"})
	case TypeStart:
		c.start(ctx, msg.Payload)
	case TypeStop:
		c.stop(ctx)
	default:
		c.sendError(errors.Validation("unknown message type: " + msg.Type))
	}
}

// HandleBinary appends a PCM frame to the current recording.
func (c *Conn) HandleBinary(data []byte) {
	if c.session.State() != capture.StateRecording {
		c.sendError(errors.Device(errors.ReasonInvalidState, "no recording in progress", nil))
		return
	}
	if err := c.device.Push(data); err != nil {
		c.sendError(errors.Device(errors.ReasonInvalidState, "recording is not accepting audio", err))
	}
}

// Close stops an unfinished recording. The partial file is kept but not graded.
func (c *Conn) Close(ctx context.Context) {
	if c.session.State() == capture.StateRecording {
		rec, err := c.session.Stop(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("Failed to stop recording on disconnect")
		} else {
			c.log.Info().Str("path", rec.Path).Msg("Recording abandoned on disconnect")
		}
	}
	c.ticks.Wait()
}

func (c *Conn) start(ctx context.Context, payload json.RawMessage) {
	var p StartPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			c.sendError(errors.Validation("invalid start payload"))
			return
		}
	}
	if p.QuestionID <= 0 {
		c.sendError(errors.Validation("question_id is required"))
		return
	}

	if err := c.session.Start(ctx); err != nil {
		c.sendError(err)
		return
	}
	c.questionID = p.QuestionID

	elapsed := c.session.Elapsed()
	c.ticks.Add(1)
	go func() {
		defer c.ticks.Done()
		for d := range elapsed {
			c.reply(TypeElapsed, ElapsedPayload{Seconds: d.Seconds(), Display: capture.FormatElapsed(d)})
		}
	}()

	c.reply(TypeStarted, StartPayload{QuestionID: p.QuestionID})
}

func (c *Conn) stop(ctx context.Context) {
	rec, err := c.session.Stop(ctx)
	if err != nil {
		c.sendError(err)
		return
	}
	c.ticks.Wait()

	stopped := StoppedPayload{BytesWritten: rec.BytesWritten, DurationSeconds: rec.Duration.Round(time.Millisecond).Seconds()}
	if rec.Notice != nil {
		stopped.Notice = rec.Notice.Error()
	}
	c.reply(TypeStopped, stopped)

	if rec.BytesWritten == 0 {
		c.sendError(errors.Input(errors.ReasonEmptyAudio, "no audio was captured"))
		return
	}

	sub, err := c.h.recorder.SubmitRecording(ctx, c.userID, c.questionID, rec.Path)
	if err != nil {
		c.sendError(err)
		return
	}
	c.reply(TypeGraded, sub)
}

func (c *Conn) reply(msgType string, payload interface{}) {
	data, err := json.Marshal(Response{Type: msgType, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("Failed to encode WebSocket response")
		return
	}
	c.send(data)
}

func (c *Conn) sendError(err error) {
	payload := ErrorPayload{Code: string(errors.ErrInternal), Message: "internal error"}
	if appErr, ok := errors.As(err); ok {
		payload = ErrorPayload{Code: string(appErr.Code), Reason: string(appErr.Reason), Message: appErr.Message, Details: appErr.Details}
	} else {
		c.log.Error().Err(err).Msg("Unhandled WebSocket error")
	}
	c.reply(TypeError, payload)
}
