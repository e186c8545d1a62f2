package wordwire

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnRequest is returned when no request handler is provided.
	ErrInvalidOnRequest = errors.New("invalid on request callback")
	// ErrBufferFull is returned when the send buffer is full and cannot accept
	// more responses. The peer is not reading fast enough.
	ErrBufferFull = errors.New("send buffer full")
)

// Conn is the server side of one client connection. It reassembles request
// frames from the stream, hands each to the request callback in order, and
// writes queued response frames from a separate goroutine.
type Conn struct {
	rawConn  *net.TCPConn
	receiver *Receiver
	logger   Logger

	opts options

	sendMsg  chan []byte
	readDone chan struct{} // closed when the peer ends the stream
	readErr  error         // set before readDone is closed
	closed   atomic.Bool
	cancel   context.CancelFunc
}

// Default configuration values.
const (
	// defaultSendBuffer is the default size of the response channel buffer.
	defaultSendBuffer = 1
	// defaultMaxFrameSize is the default largest request payload (1MB).
	defaultMaxFrameSize = 1024 * 1024
	// defaultHeartbeat is the default heartbeat interval.
	defaultHeartbeat = 30 * time.Second
)

// NewConn creates a new connection wrapper around the given TCP connection.
// It applies the provided options and validates them before returning.
// Returns ErrInvalidOnRequest if no request handler is set.
func NewConn(conn *net.TCPConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}

	if err := checkOptions(&opts); err != nil {
		return nil, err
	}

	return newConnWithOptions(conn, opts), nil
}

// checkOptions validates and sets default values for connection options.
func checkOptions(opts *options) error {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultSendBuffer
	}

	if opts.maxFrameSize <= 0 || opts.maxFrameSize > MaxPayloadLength {
		opts.maxFrameSize = defaultMaxFrameSize
	}

	if opts.onRequest == nil {
		return ErrInvalidOnRequest
	}

	if opts.heartbeat <= 0 {
		opts.heartbeat = defaultHeartbeat
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	return nil
}

func newConnWithOptions(c *net.TCPConn, opts options) *Conn {
	reader := &deadlineReader{conn: c, timeout: opts.heartbeat * 2}
	return &Conn{
		rawConn: c,
		receiver: NewReceiver(reader,
			ReceiverDirectionOption(Requests),
			ReceiverMaxPayloadOption(opts.maxFrameSize),
			ReceiverLoggerOption(opts.logger),
		),
		logger:   opts.logger,
		opts:     opts,
		sendMsg:  make(chan []byte, opts.bufferSize),
		readDone: make(chan struct{}),
	}
}

// Run starts the connection's read and write loops and blocks until either
// fails or ctx is canceled. The connection is closed when Run returns.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.Addr())
	c.logger.Debug("connection options", "addr", c.Addr(),
		"send_buffer", c.opts.bufferSize,
		"max_frame_size", c.opts.maxFrameSize,
		"heartbeat", c.opts.heartbeat)

	c.opts.metrics.connOpened()
	defer c.opts.metrics.connClosed()

	ctx, c.cancel = context.WithCancel(ctx)
	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	// A blocked read only returns once the socket is closed.
	group.Go(func() error {
		<-child.Done()
		c.closeConn()
		return child.Err()
	})

	err := group.Wait()
	c.closeConn()

	switch {
	case errors.Is(err, ErrConnectionClosed):
		c.logger.Info("connection closed by peer", "addr", c.Addr(), "reason", err)
	case err != nil && !errors.Is(err, context.Canceled):
		c.logger.Info("connection closed with error", "addr", c.Addr(), "error", err)
	default:
		c.logger.Info("connection closed", "addr", c.Addr())
	}

	return err
}

// Close gracefully closes the connection.
// It cancels the context and closes the underlying TCP connection.
// Safe to call multiple times.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	return c.rawConn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Write queues a response payload without blocking.
//
// Returns:
//   - nil: response was queued (not yet sent)
//   - ErrBufferFull: send buffer is full, response was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - ErrPayloadTooLarge: payload does not fit a frame
func (c *Conn) Write(payload []byte) error {
	data, err := c.encode(payload)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// WriteBlocking queues a response payload, blocking until there is room or
// ctx is canceled. Responses must go out in request order, so request
// handlers normally use this.
func (c *Conn) WriteBlocking(ctx context.Context, payload []byte) error {
	data, err := c.encode(payload)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteTimeout queues a response payload, waiting at most timeout for room.
// It returns ErrBufferFull when the timeout expires.
func (c *Conn) WriteTimeout(payload []byte, timeout time.Duration) error {
	data, err := c.encode(payload)
	if err != nil {
		return err
	}

	select {
	case c.sendMsg <- data:
		return nil
	case <-time.After(timeout):
		return ErrBufferFull
	}
}

func (c *Conn) encode(payload []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	return EncodeResponse(payload)
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop pulls request frames off the stream and dispatches them one at a
// time. Receive failures are sticky, so every read error ends the loop; the
// error callback only decides whether a failed request handler is fatal.
// When the peer ends the stream the loop hands over to writeLoop, which
// flushes queued responses before the connection shuts down.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		request, err := c.receiver.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.opts.metrics.failure(err)
			c.logger.Debug("read error", "addr", c.Addr(), "error", err)
			if errors.Is(err, ErrConnectionClosed) {
				c.readErr = err
				close(c.readDone)
				return nil
			}
			return err
		}

		c.opts.metrics.request(request)
		if err = c.opts.onRequest(ctx, c, request); err != nil {
			c.opts.metrics.failure(err)
			c.logger.Debug("request error", "addr", c.Addr(), "action", request.Action, "error", err)
			if c.opts.onError(err) == Disconnect {
				return err
			}
		}
	}
}

// writeLoop continuously sends responses from the send channel to the connection.
// Returns when the context is canceled, an unrecoverable error occurs, or the
// peer ended the stream and every queued response has been written.
func (c *Conn) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		case <-c.readDone:
			return c.flush()
		}
	}
}

// flush writes whatever is still queued. No request handler runs once the
// read loop is done, so the queue cannot refill.
func (c *Conn) flush() error {
	for {
		select {
		case data := <-c.sendMsg:
			if err := c.write(data); err != nil {
				return err
			}
		default:
			return c.readErr
		}
	}
}

// write sends data to the connection with a deadline.
// If an error occurs and onError returns Disconnect, the error is propagated.
// Otherwise, the error is suppressed and writing continues.
func (c *Conn) write(data []byte) error {
	_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.opts.heartbeat * 2))

	_, err := c.rawConn.Write(data)
	if err != nil {
		err = &TransportError{Op: "write", Err: err}
		c.opts.metrics.failure(err)
		c.logger.Debug("write error", "addr", c.Addr(), "error", err)
		if c.opts.onError(err) == Disconnect {
			return err
		}
		return nil
	}

	c.opts.metrics.response(len(data) - HeaderSize)
	return nil
}

// closeConn marks the connection as closed and closes the underlying TCP connection.
func (c *Conn) closeConn() {
	c.closed.Store(true)
	c.rawConn.Close()
}
