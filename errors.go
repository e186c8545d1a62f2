package wordwire

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by the framing engine.
var (
	// ErrInvalidAction is returned when an action is not one of the known codes.
	ErrInvalidAction = errors.New("invalid action")
	// ErrPayloadTooLarge is returned when a payload does not fit the 27-bit length field.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrMalformedFrame is returned when a decoded header cannot describe a valid frame.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrConnectionClosed is returned when the peer closes the stream, or when
	// operating on a connection that has already been closed.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrNoPending is returned by Client.Next when no request is awaiting a response.
	ErrNoPending = errors.New("no pending requests")
)

// TransportError reports a failed read or write on the underlying stream.
// Deadline expiries surface as a TransportError as well.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying I/O error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Cause implements the pkg/errors causer interface.
func (e *TransportError) Cause() error {
	return e.Err
}

// Timeout reports whether the transport failed because a deadline expired.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}
