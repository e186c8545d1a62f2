// Package wordwire implements a length-framed request/response protocol for
// text transformations over TCP. A request carries an action and a payload,
// a response carries only a payload. The package provides the wire codec, a
// reassembly engine that rebuilds frames from arbitrary partial reads, a
// pipelining client, and a TCP server.
package wordwire

import (
	"encoding/binary"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Action selects the transformation the server applies to a request payload.
type Action uint8

// Known actions. The numeric value is the 5-bit code sent on the wire.
const (
	Uppercase Action = iota + 1
	Lowercase
	Reverse
	Shuffle
	Random
)

var actionNames = [...]string{
	Uppercase: "uppercase",
	Lowercase: "lowercase",
	Reverse:   "reverse",
	Shuffle:   "shuffle",
	Random:    "random",
}

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	return a >= Uppercase && a <= Random
}

func (a Action) String() string {
	if !a.Valid() {
		return "action(" + strconv.Itoa(int(a)) + ")"
	}
	return actionNames[a]
}

// Actions returns every known action in code order.
func Actions() []Action {
	return []Action{Uppercase, Lowercase, Reverse, Shuffle, Random}
}

// ParseAction maps a case-insensitive action name to its Action.
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, a := range Actions() {
		if actionNames[a] == name {
			return a, nil
		}
	}
	return 0, errors.Wrapf(ErrInvalidAction, "%q", name)
}

// Wire layout constants.
const (
	// HeaderSize is the size of the fixed frame header in bytes.
	HeaderSize = 4
	// MaxPayloadLength is the largest payload the 27-bit length field can carry.
	MaxPayloadLength = 1<<lengthBits - 1

	lengthBits = 27
	lengthMask = 1<<lengthBits - 1
)

// Frame is one complete unit of payload data. Request frames carry an
// Action; response frames leave it zero. A Frame owns its payload.
type Frame struct {
	Action  Action
	Payload []byte
}

// Length returns the payload length.
func (f Frame) Length() int {
	return len(f.Payload)
}

// Body returns the raw payload.
func (f Frame) Body() []byte {
	return f.Payload
}

// IsRequest reports whether the frame carries an action.
func (f Frame) IsRequest() bool {
	return f.Action != 0
}

// EncodeRequest builds the wire bytes of a request: a header holding the
// action code in the top five bits and the payload length in the rest,
// followed by the payload.
func EncodeRequest(action Action, payload []byte) ([]byte, error) {
	if !action.Valid() {
		return nil, errors.Wrapf(ErrInvalidAction, "code %d", uint8(action))
	}
	return encode(uint32(action)<<lengthBits, payload)
}

// EncodeResponse builds the wire bytes of a response. Responses have no
// action, so the top five bits of the header stay zero.
func EncodeResponse(payload []byte) ([]byte, error) {
	return encode(0, payload)
}

func encode(prefix uint32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(payload))
	}

	out := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(out, prefix|uint32(len(payload)))
	copy(out[HeaderSize:], payload)
	return out, nil
}

// DecodeHeader returns the payload length stored in the first four bytes of
// b. It reports false when b is shorter than a header, which only means more
// bytes are needed.
func DecodeHeader(b []byte) (uint32, bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return binary.BigEndian.Uint32(b) & lengthMask, true
}

// DecodeRequestHeader is DecodeHeader for the request direction: it also
// returns the action bits. The action is not validated.
func DecodeRequestHeader(b []byte) (Action, uint32, bool) {
	if len(b) < HeaderSize {
		return 0, 0, false
	}
	word := binary.BigEndian.Uint32(b)
	return Action(word >> lengthBits), word & lengthMask, true
}
