package wordwire

import (
	"context"
	"time"
)

// ErrorAction defines the action to take when an error occurs.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a server-side connection.
type options struct {
	logger  Logger
	metrics *Metrics

	onRequest func(ctx context.Context, conn *Conn, request Frame) error
	// onError is called when an error occurs.
	// Returns Disconnect to close the connection, Continue to suppress the error.
	onError func(error) ErrorAction

	bufferSize   int           // size of buffered send channel
	maxFrameSize int           // maximum payload of a single request
	heartbeat    time.Duration // read/write deadlines are heartbeat * 2
}

// Option is a function that configures connection options.
type Option func(*options)

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more responses to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// HeartbeatOption returns an Option that sets the heartbeat interval.
// This determines the read/write deadline timeout (heartbeat * 2).
func HeartbeatOption(heartbeat time.Duration) Option {
	return func(o *options) {
		o.heartbeat = heartbeat
	}
}

// MaxFrameSizeOption returns an Option that sets the largest request payload
// the connection accepts. Announcing a larger one is a malformed frame.
func MaxFrameSizeOption(size int) Option {
	return func(o *options) {
		o.maxFrameSize = size
	}
}

// OnErrorOption returns an Option that sets the error callback.
// The callback is invoked when a write or a request handler fails.
// Return Disconnect to close the connection, or Continue to suppress the error.
// Read errors, malformed frames included, always disconnect.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// OnRequestOption returns an Option that sets the request handler callback.
// This callback is required and is invoked for each reassembled request,
// one at a time, in arrival order. ctx is canceled when the connection stops.
func OnRequestOption(cb func(ctx context.Context, conn *Conn, request Frame) error) Option {
	return func(o *options) {
		o.onRequest = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records connection activity.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// clientOptions holds the configuration for a Client.
type clientOptions struct {
	logger Logger

	readTimeout  time.Duration
	writeTimeout time.Duration
	bufferSize   int // initial receive buffer capacity
	maxFrameSize int // largest response payload accepted
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// ReadTimeoutOption sets the deadline applied to each read. Zero disables it.
func ReadTimeoutOption(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.readTimeout = timeout
	}
}

// WriteTimeoutOption sets the deadline applied to each request write.
func WriteTimeoutOption(timeout time.Duration) ClientOption {
	return func(o *clientOptions) {
		o.writeTimeout = timeout
	}
}

// ClientBufferSizeOption sets the initial capacity of the receive buffer.
// The buffer grows as needed.
func ClientBufferSizeOption(size int) ClientOption {
	return func(o *clientOptions) {
		o.bufferSize = size
	}
}

// ClientMaxFrameSizeOption sets the largest response payload the client
// accepts before reporting a malformed frame.
func ClientMaxFrameSizeOption(size int) ClientOption {
	return func(o *clientOptions) {
		o.maxFrameSize = size
	}
}

// ClientLoggerOption sets the client logger.
func ClientLoggerOption(logger Logger) ClientOption {
	return func(o *clientOptions) {
		o.logger = logger
	}
}

func checkClientOptions(opts *clientOptions) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferCapacity
	}
	if opts.maxFrameSize <= 0 || opts.maxFrameSize > MaxPayloadLength {
		opts.maxFrameSize = MaxPayloadLength
	}
	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}
