package wordwire

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"
)

// mockHandler implements Handler interface for testing
type mockHandler struct {
	mu       sync.Mutex
	conns    []*net.TCPConn
	handleCh chan *net.TCPConn
	block    bool // wait for ctx before returning
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		conns:    make([]*net.TCPConn, 0),
		handleCh: make(chan *net.TCPConn, 10),
	}
}

func (h *mockHandler) Handle(ctx context.Context, conn *net.TCPConn) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()

	select {
	case h.handleCh <- conn:
	default:
	}

	if h.block {
		<-ctx.Done()
		conn.Close()
	}
}

func (h *mockHandler) getConns() []*net.TCPConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns
}

func newTestServer(t *testing.T, opts ...ServerOption) *Server {
	t.Helper()
	opts = append([]ServerOption{ServerLoggerOption(NopLogger())}, opts...)
	server, err := New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return server
}

func dialServer(t *testing.T, server *Server) *net.TCPConn {
	t.Helper()
	conn, err := net.DialTCP("tcp", nil, server.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("client dial failed: %v", err)
	}
	return conn
}

func waitServe(t *testing.T, done <-chan error, within time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(within):
		t.Fatal("timeout waiting for Serve to return")
		return nil
	}
}

func TestNew(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if server.listener == nil {
		t.Error("listener is nil")
	}
}

func TestNew_InvalidAddr(t *testing.T) {
	server1 := newTestServer(t)
	defer server1.Close()

	// Try to listen on the same port - should fail
	occupiedAddr := server1.listener.Addr().(*net.TCPAddr)
	if _, err := New(occupiedAddr); err == nil {
		t.Error("expected error for occupied port")
	}
}

func TestServer_Close(t *testing.T) {
	server := newTestServer(t)

	if err := server.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if _, err := server.listener.AcceptTCP(); err == nil {
		t.Error("expected error after close")
	}
}

func TestServer_Addr(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	if server.Addr() == nil {
		t.Error("Addr returned nil")
	}
}

func TestServer_Serve(t *testing.T) {
	server := newTestServer(t)
	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	clientConn := dialServer(t, server)
	defer clientConn.Close()

	select {
	case conn := <-handler.handleCh:
		if conn == nil {
			t.Error("handler received nil connection")
		} else {
			conn.Close()
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for handler")
	}

	cancel()

	if err := waitServe(t, done, 5*time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestServer_Serve_MultipleConnections(t *testing.T) {
	server := newTestServer(t)
	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go server.Serve(ctx, handler)

	numClients := 5
	clients := make([]*net.TCPConn, numClients)
	for i := 0; i < numClients; i++ {
		clients[i] = dialServer(t, server)
	}

	for i := 0; i < numClients; i++ {
		select {
		case conn := <-handler.handleCh:
			if conn == nil {
				t.Errorf("handler %d received nil connection", i)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for handler %d", i)
		}
	}

	for _, conn := range clients {
		conn.Close()
	}

	conns := handler.getConns()
	if len(conns) != numClients {
		t.Errorf("handler received %d connections, want %d", len(conns), numClients)
	}
	for _, conn := range conns {
		conn.Close()
	}
}

func TestServer_Serve_ContextCanceled(t *testing.T) {
	server := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, newMockHandler())
	}()

	time.Sleep(time.Millisecond * 50)
	cancel()

	if err := waitServe(t, done, 5*time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestServer_Serve_CancelsHandlers(t *testing.T) {
	server := newTestServer(t)
	handler := newMockHandler()
	handler.block = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	clientConn := dialServer(t, server)
	defer clientConn.Close()
	<-handler.handleCh

	cancel()

	// Serve only returns once the blocked handler saw its context end.
	if err := waitServe(t, done, 5*time.Second); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestServer_Serve_ShutdownTimeout(t *testing.T) {
	server := newTestServer(t, ServerShutdownTimeoutOption(200*time.Millisecond))
	handler := newMockHandler()
	handler.block = true
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	clientConn := dialServer(t, server)
	defer clientConn.Close()
	<-handler.handleCh

	start := time.Now()
	cancel()
	waitServe(t, done, 5*time.Second)

	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("Serve returned after %v, before the shutdown timeout", elapsed)
	}
}

func TestServer_Close_BypassesShutdownTimeout(t *testing.T) {
	server := newTestServer(t, ServerShutdownTimeoutOption(time.Minute))
	handler := newMockHandler()
	handler.block = true
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, handler)
	}()

	clientConn := dialServer(t, server)
	defer clientConn.Close()
	<-handler.handleCh

	server.Close()

	if err := waitServe(t, done, 5*time.Second); err != nil {
		t.Errorf("expected nil after Close, got %v", err)
	}
}

func TestHandlerFunc(t *testing.T) {
	var got *net.TCPConn
	h := HandlerFunc(func(_ context.Context, conn *net.TCPConn) { got = conn })

	serverConn, clientConn := createTestTCPPair(t)
	defer serverConn.Close()
	defer clientConn.Close()

	h.Handle(context.Background(), serverConn)
	if got != serverConn {
		t.Error("HandlerFunc did not receive the connection")
	}
}
