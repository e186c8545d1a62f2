package wordwire

import "github.com/pkg/errors"

// Direction selects which side of the protocol an Extractor parses.
type Direction int

const (
	// Responses parses length-only response frames. Action bits are ignored.
	Responses Direction = iota
	// Requests parses action-carrying request frames and rejects unknown actions.
	Requests
)

func (d Direction) String() string {
	if d == Requests {
		return "requests"
	}
	return "responses"
}

// Extractor finds complete frames at the front of a byte sequence. The zero
// value parses responses with the full 27-bit length range.
type Extractor struct {
	Direction Direction
	// MaxPayload bounds the payload length a header may announce. Larger
	// values are reported as ErrMalformedFrame. Zero means MaxPayloadLength.
	MaxPayload int
}

func (e Extractor) limit() int {
	if e.MaxPayload <= 0 || e.MaxPayload > MaxPayloadLength {
		return MaxPayloadLength
	}
	return e.MaxPayload
}

// Next parses the frame at the start of data. It returns the frame and the
// number of bytes it occupies, or zero consumed bytes when data holds only a
// partial header or a partial payload. The payload is copied, so the frame
// stays valid after data is reused.
func (e Extractor) Next(data []byte) (Frame, int, error) {
	var (
		action Action
		length uint32
		ok     bool
	)
	if e.Direction == Requests {
		action, length, ok = DecodeRequestHeader(data)
	} else {
		length, ok = DecodeHeader(data)
	}
	if !ok {
		return Frame{}, 0, nil
	}

	if e.Direction == Requests && !action.Valid() {
		return Frame{}, 0, errors.Wrapf(ErrMalformedFrame, "%v: code %d", ErrInvalidAction, uint8(action))
	}
	if int(length) > e.limit() {
		return Frame{}, 0, errors.Wrapf(ErrMalformedFrame, "payload length %d exceeds limit %d", length, e.limit())
	}

	end := HeaderSize + int(length)
	if len(data) < end {
		return Frame{}, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, data[HeaderSize:end])
	return Frame{Action: action, Payload: payload}, end, nil
}

// ExtractAll is the push-style entry point for callers that fill their own
// Buffer, for example from a datagram or a file: it emits every complete
// frame buffered in b, in arrival order, and then compacts b so any trailing
// partial frame starts at offset 0. Receiver does the same walk through Next
// because it hands out one frame per call and keeps its cursor between calls. It stops
// early when emit returns true and reports that as stopped; the frames after
// the one that stopped the pass are left in b. On a malformed header the
// frames emitted so far are compacted away and the error is returned.
func (e Extractor) ExtractAll(b *Buffer, emit func(Frame) bool) (count int, stopped bool, err error) {
	data := b.Bytes()
	cursor := 0
	defer func() { b.Compact(cursor) }()

	for {
		frame, n, err := e.Next(data[cursor:])
		if err != nil {
			return count, false, err
		}
		if n == 0 {
			return count, false, nil
		}

		cursor += n
		count++
		if emit(frame) {
			return count, true, nil
		}
	}
}
