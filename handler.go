package wordwire

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/Zereker/wordwire/transform"
)

// TransformHandler serves the text transformations. Each accepted connection
// gets a Conn whose requests are answered, in order, with the transformed
// payload.
type TransformHandler struct {
	transformer *transform.Transformer
	opts        []Option
	logger      Logger
}

// NewTransformHandler returns a Handler that applies t to every request.
// opts are passed to each connection; OnRequestOption is set by the handler.
func NewTransformHandler(t *transform.Transformer, opts ...Option) *TransformHandler {
	h := &TransformHandler{transformer: t, opts: opts}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	h.logger = o.logger
	if h.logger == nil {
		h.logger = defaultLogger()
	}
	return h
}

// Handle runs the connection until the peer leaves or ctx is canceled.
func (h *TransformHandler) Handle(ctx context.Context, conn *net.TCPConn) {
	opts := append(h.opts[:len(h.opts):len(h.opts)], OnRequestOption(h.serve))

	c, err := NewConn(conn, opts...)
	if err != nil {
		h.logger.Error("connection setup failed", "addr", conn.RemoteAddr(), "error", err)
		_ = conn.Close()
		return
	}

	_ = c.Run(ctx)
}

func (h *TransformHandler) serve(ctx context.Context, c *Conn, request Frame) error {
	response, err := h.Apply(request.Action, request.Payload)
	if err != nil {
		return err
	}
	h.logger.Debug("request served", "addr", c.Addr(), "action", request.Action,
		"length", request.Length(), "response_length", len(response))
	return c.WriteBlocking(ctx, response)
}

// Apply runs the transformation selected by action.
func (h *TransformHandler) Apply(action Action, payload []byte) ([]byte, error) {
	switch action {
	case Uppercase:
		return h.transformer.Upper(payload), nil
	case Lowercase:
		return h.transformer.Lower(payload), nil
	case Reverse:
		return transform.Reverse(payload), nil
	case Shuffle:
		return h.transformer.Shuffle(payload), nil
	case Random:
		return h.transformer.Randomize(payload), nil
	default:
		return nil, errors.Wrapf(ErrInvalidAction, "code %d", uint8(action))
	}
}
