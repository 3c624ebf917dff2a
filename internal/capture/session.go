// Package capture records microphone audio to timestamped WAV files.
package capture

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/ielts_service/internal/errors"
)

// State of a Session.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

// Recording describes a finished capture. Notice is set when the device or
// the writer failed; the file then holds everything captured before it.
type Recording struct {
	Path         string        `json:"path"`
	BytesWritten int64         `json:"bytes_written"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	Notice       error         `json:"-"`
}

// Session records one capture at a time: idle -> recording -> stopped,
// and stopped -> recording again with a new file.
type Session struct {
	device Device
	dir    string
	format Format
	tick   time.Duration
	now    func() time.Time
	log    zerolog.Logger

	mu      sync.Mutex
	state   State
	current *activeCapture
}

type activeCapture struct {
	path      string
	startedAt time.Time
	stream    Stream
	wav       *wavWriter
	elapsed   chan time.Duration
	quit      chan struct{}
	done      chan struct{}

	stopOnce sync.Once
	stopErr  error
	writeErr error
	result   Recording
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithFormat sets the capture format.
func WithFormat(f Format) SessionOption {
	return func(s *Session) { s.format = f }
}

// WithTick sets the elapsed-time tick interval.
func WithTick(d time.Duration) SessionOption {
	return func(s *Session) {
		if d > 0 {
			s.tick = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(s *Session) { s.log = log }
}

// NewSession creates an idle session writing into dir.
func NewSession(device Device, dir string, opts ...SessionOption) *Session {
	s := &Session{
		device: device,
		dir:    dir,
		format: DefaultFormat,
		tick:   time.Second,
		now:    time.Now,
		log:    zerolog.Nop(),
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the current capture's tick channel. It is closed when the
// capture ends; with no capture the returned channel is already closed.
func (s *Session) Elapsed() <-chan time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		ch := make(chan time.Duration)
		close(ch)
		return ch
	}
	return s.current.elapsed
}

// Start opens the device and then a new WAV file. No file is created when
// the device cannot be opened.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRecording {
		return errors.Device(errors.ReasonInvalidState, "recording already in progress", nil)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.InternalWrap("failed to create recordings directory", err)
	}

	stream, err := s.device.Open(ctx, s.format)
	if err != nil {
		return errors.Device(errors.ReasonOpenFailed, "failed to open capture device", err)
	}

	startedAt := s.now()
	f, path, err := createRecordingFile(s.dir, startedAt)
	if err != nil {
		_ = stream.Close()
		return errors.InternalWrap("failed to create recording file", err)
	}
	wav, err := newWAVWriter(f, s.format)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		_ = stream.Close()
		return errors.InternalWrap("failed to initialise recording file", err)
	}

	c := &activeCapture{
		path:      path,
		startedAt: startedAt,
		stream:    stream,
		wav:       wav,
		elapsed:   make(chan time.Duration, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.current = c
	s.state = StateRecording

	go s.pump(c)
	go s.ticker(c)

	s.log.Info().Str("path", path).Msg("Recording started")
	return nil
}

// Stop asks the device to stop and waits until every delivered buffer is
// written and both handles are closed. Calling Stop after a capture has
// ended returns the same Recording.
func (s *Session) Stop(ctx context.Context) (Recording, error) {
	s.mu.Lock()
	c := s.current
	s.mu.Unlock()

	if c == nil {
		return Recording{}, errors.Device(errors.ReasonInvalidState, "no recording in progress", nil)
	}

	select {
	case <-c.done:
		return c.result, nil
	default:
	}

	c.stopOnce.Do(func() {
		if err := c.stream.Stop(); err != nil {
			// The device may never send EventStopped; closing ends the stream.
			c.stopErr = err
			_ = c.stream.Close()
		}
	})

	select {
	case <-c.done:
		return c.result, nil
	case <-ctx.Done():
		return Recording{}, ctx.Err()
	}
}

func (s *Session) pump(c *activeCapture) {
	for ev := range c.stream.Events() {
		switch ev.Kind {
		case EventData:
			if len(ev.Data) == 0 || c.writeErr != nil {
				continue
			}
			if _, err := c.wav.Write(ev.Data); err != nil {
				c.writeErr = fmt.Errorf("failed to write recording: %w", err)
				s.log.Error().Err(err).Str("path", c.path).Msg("Recording write failed")
			}
		case EventStopped:
			s.finalize(c, ev.Err)
			return
		}
	}
	s.finalize(c, nil)
}

func (s *Session) finalize(c *activeCapture, deviceErr error) {
	close(c.quit)

	var devNotice error
	if deviceErr != nil {
		devNotice = errors.Device(errors.ReasonOpenFailed, "capture device failed", deviceErr)
	}
	var stopNotice error
	if c.stopErr != nil {
		stopNotice = errors.Device(errors.ReasonOpenFailed, "capture device failed to stop", c.stopErr)
	}

	wavErr := c.wav.Close()
	streamErr := c.stream.Close()

	notice := stderrors.Join(devNotice, stopNotice, c.writeErr, wrapNotice("failed to close recording", wavErr), wrapNotice("failed to close capture device", streamErr))

	c.result = Recording{
		Path:         c.path,
		BytesWritten: c.wav.dataBytes,
		StartedAt:    c.startedAt,
		Duration:     s.now().Sub(c.startedAt),
		Notice:       notice,
	}

	s.mu.Lock()
	if s.current == c {
		s.state = StateStopped
	}
	s.mu.Unlock()

	level := zerolog.InfoLevel
	if notice != nil {
		level = zerolog.WarnLevel
	}
	s.log.WithLevel(level).
		Err(notice).
		Str("path", c.path).
		Int64("bytes", c.result.BytesWritten).
		Dur("duration", c.result.Duration).
		Msg("Recording stopped")

	close(c.done)
}

func (s *Session) ticker(c *activeCapture) {
	defer close(c.elapsed)
	t := time.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-c.quit:
			return
		case <-t.C:
			select {
			case c.elapsed <- s.now().Sub(c.startedAt):
			default:
			}
		}
	}
}

func wrapNotice(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// createRecordingFile creates speaking_YYYYMMDD_HHMMSS.wav, adding a _N
// suffix when a file with that name already exists.
func createRecordingFile(dir string, at time.Time) (*os.File, string, error) {
	base := "speaking_" + at.Format("20060102_150405")
	for i := 0; i < 100; i++ {
		name := base + ".wav"
		if i > 0 {
			name = fmt.Sprintf("%s_%d.wav", base, i)
		}
		path := filepath.Join(dir, name)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
	return nil, "", fmt.Errorf("no free recording name for %s", base)
}

// FormatElapsed renders d as MM:SS.
func FormatElapsed(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
