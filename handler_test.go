package wordwire

import (
	"context"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/wordwire/transform"
)

// startServer runs a transform server on a loopback port until the test ends.
func startServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	server, err := New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, ServerLoggerOption(NopLogger()))
	require.NoError(t, err)

	opts = append([]Option{LoggerOption(NopLogger())}, opts...)
	handler := NewTransformHandler(transform.New(1), opts...)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return server
}

func TestTransformHandler_Apply(t *testing.T) {
	h := NewTransformHandler(transform.New(1), LoggerOption(NopLogger()))

	cases := []struct {
		action Action
		in     string
		want   string
	}{
		{Uppercase, "Hello World", "HELLO WORLD"},
		{Lowercase, "Hello World", "hello world"},
		{Reverse, "Hello World", "dlroW olleH"},
		{Uppercase, "", ""},
	}
	for _, c := range cases {
		got, err := h.Apply(c.action, []byte(c.in))
		require.NoError(t, err, c.action.String())
		assert.Equal(t, c.want, string(got), c.action.String())
	}

	got, err := h.Apply(Shuffle, []byte("abcde"))
	require.NoError(t, err)
	r := []rune(string(got))
	sort.Slice(r, func(i, j int) bool { return r[i] < r[j] })
	assert.Equal(t, "abcde", string(r))

	got, err = h.Apply(Random, []byte("abcde"))
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestTransformHandler_ApplyUnknownAction(t *testing.T) {
	h := NewTransformHandler(transform.New(1), LoggerOption(NopLogger()))

	_, err := h.Apply(Action(0), []byte("x"))
	assert.True(t, errors.Is(err, ErrInvalidAction), "got %v", err)
}

func TestTransformHandler_DoesNotMutateOptions(t *testing.T) {
	opts := make([]Option, 1, 4)
	opts[0] = LoggerOption(NopLogger())
	h := NewTransformHandler(transform.New(1), opts...)

	serverConn, clientConn := createTestTCPPair(t)
	clientConn.Close()
	h.Handle(context.Background(), serverConn)

	assert.Len(t, h.opts, 1)
	assert.Nil(t, opts[:2][1])
}

func TestTransformHandler_Serve(t *testing.T) {
	server := startServer(t)

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	writeRequest(t, conn, Uppercase, "make me loud")
	assert.Equal(t, "MAKE ME LOUD", string(readResponse(t, conn)))

	writeRequest(t, conn, Reverse, "stressed")
	assert.Equal(t, "desserts", string(readResponse(t, conn)))
}
