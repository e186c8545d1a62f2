package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/Zereker/wordwire"
	"github.com/Zereker/wordwire/internal/config"
	"github.com/Zereker/wordwire/transform"
)

func startServer(t *testing.T) (host string, port int) {
	t.Helper()

	server, err := wordwire.New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		wordwire.ServerLoggerOption(wordwire.NopLogger()))
	require.NoError(t, err)

	handler := wordwire.NewTransformHandler(transform.New(1), wordwire.LoggerOption(wordwire.NopLogger()))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.Serve(ctx, handler)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	addr := server.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func testApp(stdout *bytes.Buffer) *cli.App {
	app := newApp(stdout, &bytes.Buffer{})
	// Keep cli.Exit errors from ending the test binary.
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	err := testApp(&stdout).Run(append([]string{"wordwire-client"}, args...))
	return stdout.String(), err
}

func parseConfig(t *testing.T, args ...string) config.Client {
	t.Helper()
	var cfg config.Client
	app := testApp(&bytes.Buffer{})
	app.Action = func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c)
		return err
	}
	require.NoError(t, app.Run(append([]string{"wordwire-client"}, args...)))
	return cfg
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	require.NoError(t, os.WriteFile(path, []byte("host = \"file.example\"\nport = 7000\nread_timeout = \"3s\"\n"), 0o600))

	cfg := parseConfig(t, "-c", path, "-p", "9000")
	assert.Equal(t, "file.example", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)

	cfg = parseConfig(t, "-h", "flag.example", "--timeout", "1s")
	assert.Equal(t, "flag.example", cfg.Host)
	assert.Equal(t, config.DefaultPort, cfg.Port)
	assert.Equal(t, time.Second, cfg.WriteTimeout)
}

func TestSend(t *testing.T) {
	host, port := startServer(t)

	out, err := run(t, "-h", host, "-p", strconv.Itoa(port), "send", "reverse", "hello", "there")
	require.NoError(t, err)
	assert.Equal(t, "ereht olleh\n", out)
}

func TestSend_Usage(t *testing.T) {
	_, err := run(t, "send", "uppercase")
	assert.Error(t, err)

	_, err = run(t, "send", "yell", "hi")
	assert.ErrorIs(t, err, wordwire.ErrInvalidAction)
}

func TestBatch(t *testing.T) {
	host, port := startServer(t)

	path := filepath.Join(t.TempDir(), "requests.txt")
	require.NoError(t, os.WriteFile(path, []byte("uppercase one\nbogus\nlowercase TWO\nreverse abc\n"), 0o600))

	out, err := run(t, "-h", host, "-p", strconv.Itoa(port), "batch", "--window", "1", path)
	assert.Error(t, err, "the bad line is reported")
	assert.Equal(t, "ONE\ntwo\ncba\n", out)
}
