package wordwire

import (
	"io"

	"github.com/pkg/errors"
)

// State is the position of a Receiver in its read/extract/dispatch cycle.
type State int

// Receiver states. StateDone and StateFailed are terminal.
const (
	StateReading State = iota
	StateExtracting
	StateDispatching
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateReading:     "reading",
	StateExtracting:  "extracting",
	StateDispatching: "dispatching",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// FrameHandler receives the payload of each reassembled frame in arrival order and
// returns true when no further frames are expected. The payload must not be
// retained after the call returns.
type FrameHandler func(payload []byte) bool

// UntilCount returns a FrameHandler that passes every payload to fn and reports
// done after n payloads. It encodes the one-response-per-request rule: a
// caller that sent n requests expects exactly n responses, in order.
func UntilCount(n int, fn func(payload []byte)) FrameHandler {
	seen := 0
	return func(payload []byte) bool {
		seen++
		if fn != nil {
			fn(payload)
		}
		return seen >= n
	}
}

const (
	// defaultReadSize is the minimum headroom offered to each read.
	defaultReadSize = 512
	// maxReadSize caps the headroom offered to each read. Large payloads
	// grow the buffer as their bytes arrive, not when the header does.
	maxReadSize = 64 * 1024
	// maxEmptyReads is how many consecutive (0, nil) reads are tolerated.
	maxEmptyReads = 100
)

// Receiver reassembles frames from a byte stream. Next pulls one frame at a
// time and only reads from the stream when no complete frame is buffered, so
// all frames delivered by a single read are returned before the next read.
// A Receiver owns its buffer and is meant for a single goroutine.
type Receiver struct {
	r      io.Reader
	buf    *Buffer
	ext    Extractor
	logger Logger

	cursor  int // bytes of buf already returned as frames
	state   State
	err     error
	readErr error // deferred until the bytes read alongside it are used up
	reads   int
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// ReceiverBufferSizeOption sets the initial capacity of the receive buffer.
func ReceiverBufferSizeOption(size int) ReceiverOption {
	return func(r *Receiver) {
		r.buf = NewBuffer(size)
	}
}

// ReceiverMaxPayloadOption bounds the payload length a frame may announce.
func ReceiverMaxPayloadOption(size int) ReceiverOption {
	return func(r *Receiver) {
		r.ext.MaxPayload = size
	}
}

// ReceiverDirectionOption selects request or response parsing.
func ReceiverDirectionOption(d Direction) ReceiverOption {
	return func(r *Receiver) {
		r.ext.Direction = d
	}
}

// ReceiverLoggerOption sets the logger.
func ReceiverLoggerOption(logger Logger) ReceiverOption {
	return func(r *Receiver) {
		r.logger = logger
	}
}

// NewReceiver returns a Receiver reading response frames from r.
func NewReceiver(r io.Reader, opts ...ReceiverOption) *Receiver {
	rc := &Receiver{r: r}
	for _, o := range opts {
		o(rc)
	}
	if rc.buf == nil {
		rc.buf = NewBuffer(defaultBufferCapacity)
	}
	if rc.logger == nil {
		rc.logger = defaultLogger()
	}
	return rc
}

// State returns the current state.
func (r *Receiver) State() State {
	return r.state
}

// Err returns the failure that ended the receiver, if any.
func (r *Receiver) Err() error {
	return r.err
}

// Buffered returns the number of received bytes not yet returned as frames.
func (r *Receiver) Buffered() int {
	return r.buf.Len() - r.cursor
}

// Reads returns the number of reads issued on the stream.
func (r *Receiver) Reads() int {
	return r.reads
}

// Next returns the next complete frame. It returns io.EOF once the receiver
// is done, ErrConnectionClosed if the peer closes the stream before another
// frame is complete, ErrMalformedFrame for an unusable header, and a
// *TransportError for any other read failure. After a failure every call
// returns the same error.
func (r *Receiver) Next() (Frame, error) {
	for {
		switch r.state {
		case StateDone:
			return Frame{}, io.EOF
		case StateFailed:
			return Frame{}, r.err
		}

		r.state = StateExtracting
		frame, n, err := r.ext.Next(r.buf.Bytes()[r.cursor:])
		if err != nil {
			return Frame{}, r.fail(err)
		}
		if n > 0 {
			r.cursor += n
			r.state = StateDispatching
			return frame, nil
		}

		if err := r.read(); err != nil {
			return Frame{}, r.fail(err)
		}
	}
}

// Receive dispatches frames to handler until it returns true, which ends the
// receiver in StateDone and drops anything still buffered. It returns nil on
// Done and the failure otherwise.
func (r *Receiver) Receive(handler FrameHandler) error {
	for {
		frame, err := r.Next()
		if err != nil {
			if r.state == StateDone {
				return nil
			}
			return err
		}

		if handler(frame.Payload) {
			r.Stop()
			return nil
		}
	}
}

// Stop moves the receiver to StateDone and discards buffered bytes.
func (r *Receiver) Stop() {
	if r.state == StateFailed {
		return
	}
	r.state = StateDone
	r.buf.Reset()
	r.cursor = 0
}

// read compacts away returned frames and performs one read on the stream.
func (r *Receiver) read() error {
	r.state = StateReading
	r.buf.Compact(r.cursor)
	r.cursor = 0

	for empty := 0; ; empty++ {
		if r.readErr != nil {
			return r.readErr
		}
		if empty >= maxEmptyReads {
			return &TransportError{Op: "read", Err: io.ErrNoProgress}
		}

		n, err := r.buf.Fill(r.r, r.headroom())
		r.reads++
		if err != nil {
			r.readErr = r.classify(err)
			r.logger.Debug("read error", "error", err, "buffered", r.buf.Len())
		}
		if n > 0 {
			return nil
		}
	}
}

// headroom is the number of free bytes to offer the next read: the rest of
// a frame whose header is already buffered, between defaultReadSize and
// maxReadSize.
func (r *Receiver) headroom() int {
	want := defaultReadSize
	if length, ok := DecodeHeader(r.buf.Bytes()); ok && int(length) <= r.ext.limit() {
		if missing := HeaderSize + int(length) - r.buf.Len(); missing > want {
			want = missing
		}
	}
	if want > maxReadSize {
		want = maxReadSize
	}
	return want
}

func (r *Receiver) classify(err error) error {
	if errors.Is(err, io.EOF) {
		return errors.Wrapf(ErrConnectionClosed, "%d bytes of partial frame buffered", r.buf.Len())
	}
	return &TransportError{Op: "read", Err: err}
}

func (r *Receiver) fail(err error) error {
	r.state = StateFailed
	r.err = err
	return err
}
