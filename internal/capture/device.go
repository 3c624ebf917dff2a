package capture

import (
	"context"
	stderrors "errors"
	"sync"
)

// Format is the PCM format a device delivers.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16-bit mono at 44.1 kHz.
var DefaultFormat = Format{SampleRate: 44100, Channels: 1, BitsPerSample: 16}

// BytesPerSecond returns the data rate of f.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// EventKind distinguishes device events.
type EventKind int

const (
	// EventData carries one captured buffer.
	EventData EventKind = iota
	// EventStopped is the last event of a stream. Err is set when the
	// device stopped because of a hardware fault.
	EventStopped
)

// Event is delivered by a Stream in capture order.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Stream is one open capture. Events is closed after Close.
type Stream interface {
	Events() <-chan Event
	// Stop asks the device to flush and send EventStopped.
	Stop() error
	Close() error
}

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context, format Format) (Stream, error)
}

var (
	ErrNotOpen       = stderrors.New("capture device is not open")
	ErrStreamStopped = stderrors.New("capture stream is stopped")
)

// ChannelDevice is a Device fed by a producer such as a WebSocket reader.
// Each Open replaces the current stream.
type ChannelDevice struct {
	mu     sync.Mutex
	buffer int
	stream *ChannelStream
}

// NewChannelDevice creates a device whose streams buffer up to buffer frames.
func NewChannelDevice(buffer int) *ChannelDevice {
	if buffer <= 0 {
		buffer = 64
	}
	return &ChannelDevice{buffer: buffer}
}

// Open implements Device.
func (d *ChannelDevice) Open(_ context.Context, _ Format) (Stream, error) {
	st := newChannelStream(d.buffer)
	d.mu.Lock()
	d.stream = st
	d.mu.Unlock()
	return st, nil
}

// Push hands one frame to the current stream.
func (d *ChannelDevice) Push(data []byte) error {
	st := d.current()
	if st == nil {
		return ErrNotOpen
	}
	return st.Push(data)
}

// Fail ends the current stream with a device fault.
func (d *ChannelDevice) Fail(err error) {
	if st := d.current(); st != nil {
		st.Fail(err)
	}
}

func (d *ChannelDevice) current() *ChannelStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream
}

// ChannelStream turns pushed frames into Events from its own goroutine.
type ChannelStream struct {
	in      chan []byte
	fail    chan error
	events  chan Event
	stopReq chan struct{}
	closed  chan struct{}

	stopOnce  sync.Once
	closeOnce sync.Once
}

func newChannelStream(buffer int) *ChannelStream {
	st := &ChannelStream{
		in:      make(chan []byte, buffer),
		fail:    make(chan error, 1),
		events:  make(chan Event),
		stopReq: make(chan struct{}),
		closed:  make(chan struct{}),
	}
	go st.run()
	return st
}

// Events implements Stream.
func (st *ChannelStream) Events() <-chan Event {
	return st.events
}

// Push copies data into the stream. Frames pushed after Stop are rejected.
func (st *ChannelStream) Push(data []byte) error {
	select {
	case <-st.stopReq:
		return ErrStreamStopped
	case <-st.closed:
		return ErrStreamStopped
	default:
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case st.in <- buf:
		return nil
	case <-st.stopReq:
		return ErrStreamStopped
	case <-st.closed:
		return ErrStreamStopped
	}
}

// Fail ends the stream with err as a device fault.
func (st *ChannelStream) Fail(err error) {
	select {
	case st.fail <- err:
	default:
	}
}

// Stop implements Stream.
func (st *ChannelStream) Stop() error {
	st.stopOnce.Do(func() { close(st.stopReq) })
	return nil
}

// Close implements Stream.
func (st *ChannelStream) Close() error {
	st.closeOnce.Do(func() { close(st.closed) })
	return nil
}

func (st *ChannelStream) run() {
	defer close(st.events)
	for {
		select {
		case buf := <-st.in:
			if !st.emit(Event{Kind: EventData, Data: buf}) {
				return
			}
		case err := <-st.fail:
			st.drain()
			st.emit(Event{Kind: EventStopped, Err: err})
			return
		case <-st.stopReq:
			st.drain()
			// A fault reported before the stop still belongs to this stream.
			var err error
			select {
			case err = <-st.fail:
			default:
			}
			st.emit(Event{Kind: EventStopped, Err: err})
			return
		case <-st.closed:
			return
		}
	}
}

// drain forwards frames already buffered.
func (st *ChannelStream) drain() {
	for {
		select {
		case buf := <-st.in:
			if !st.emit(Event{Kind: EventData, Data: buf}) {
				return
			}
		default:
			return
		}
	}
}

func (st *ChannelStream) emit(ev Event) bool {
	select {
	case st.events <- ev:
		return true
	case <-st.closed:
		return false
	}
}
