package wordwire

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Client sends requests over a stream connection and reads their responses.
// The server answers every request with exactly one response, in request
// order; the client relies on that and counts outstanding requests to know
// when to stop reading. Send, Next and Receive must be called from a single
// goroutine; Close may be called from any goroutine.
type Client struct {
	conn   net.Conn
	recv   *Receiver
	opts   clientOptions
	logger Logger

	pending int
	closed  atomic.Bool
}

// Dial connects to addr over TCP and returns a Client for the connection.
func Dial(ctx context.Context, addr string, opt ...ClientOption) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "dial", Err: err}
	}
	return NewClient(conn, opt...), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opt ...ClientOption) *Client {
	var opts clientOptions
	for _, o := range opt {
		o(&opts)
	}
	checkClientOptions(&opts)

	c := &Client{
		conn:   conn,
		opts:   opts,
		logger: opts.logger,
	}
	c.recv = NewReceiver(&deadlineReader{conn: conn, timeout: opts.readTimeout},
		ReceiverBufferSizeOption(opts.bufferSize),
		ReceiverMaxPayloadOption(opts.maxFrameSize),
		ReceiverLoggerOption(opts.logger),
	)
	return c
}

// Send encodes a request and writes it to the connection. Encoding errors
// leave the client untouched; a write failure is a *TransportError.
func (c *Client) Send(action Action, payload []byte) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.stopped(); err != nil {
		return err
	}

	data, err := EncodeRequest(action, payload)
	if err != nil {
		return err
	}

	if c.opts.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
	}
	if _, err = c.conn.Write(data); err != nil {
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		return &TransportError{Op: "write", Err: err}
	}

	c.pending++
	c.logger.Debug("request sent", "addr", c.Addr(), "action", action, "length", len(payload), "pending", c.pending)
	return nil
}

// Pending returns the number of requests still awaiting a response.
func (c *Client) Pending() int {
	return c.pending
}

// Next returns the response to the oldest outstanding request. It returns
// ErrNoPending when every request has been answered.
func (c *Client) Next() (Frame, error) {
	if err := c.stopped(); err != nil {
		return Frame{}, err
	}
	if c.pending == 0 {
		return Frame{}, ErrNoPending
	}

	frame, err := c.recv.Next()
	if err != nil {
		return Frame{}, err
	}

	c.pending--
	c.logger.Debug("response received", "addr", c.Addr(), "length", frame.Length(), "pending", c.pending)
	return frame, nil
}

// Receive passes each outstanding response to handler. It returns nil once
// all responses arrived or handler reports done. In the latter case any
// responses still in flight are abandoned and the client reads no more:
// later Send and Next calls return ErrConnectionClosed.
func (c *Client) Receive(handler FrameHandler) error {
	for c.pending > 0 {
		frame, err := c.Next()
		if err != nil {
			return err
		}
		if handler(frame.Payload) {
			c.recv.Stop()
			c.pending = 0
			return nil
		}
	}
	return nil
}

// Do sends one request and waits for its response.
func (c *Client) Do(action Action, payload []byte) ([]byte, error) {
	if c.pending != 0 {
		return nil, errors.Errorf("do: %d responses still pending", c.pending)
	}
	if err := c.Send(action, payload); err != nil {
		return nil, err
	}
	frame, err := c.Next()
	if err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

// stopped reports ErrConnectionClosed once Receive has abandoned the stream.
func (c *Client) stopped() error {
	if c.recv.State() == StateDone {
		return errors.Wrap(ErrConnectionClosed, "receive stopped early")
	}
	return nil
}

// Addr returns the remote address of the connection.
func (c *Client) Addr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the connection. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

// deadlineReader arms a read deadline before every read so a stalled peer
// surfaces as a timeout instead of blocking forever.
type deadlineReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if d.timeout > 0 {
		_ = d.conn.SetReadDeadline(time.Now().Add(d.timeout))
	}
	return d.conn.Read(p)
}
