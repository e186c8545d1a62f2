package wordwire

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
)

func TestLogger_Interface(t *testing.T) {
	var _ Logger = slog.Default()
	var _ Logger = NopLogger()
}

func TestDefaultLogger(t *testing.T) {
	logger := defaultLogger()
	if logger != slog.Default() {
		t.Error("defaultLogger did not return slog.Default()")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NopLogger()

	// Must not panic.
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "key", "value")
	logger.Error("error message", "key", "value")
}

// recordLogger keeps every message it is given.
type recordLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordLogger) record(level, msg string) {
	l.mu.Lock()
	l.msgs = append(l.msgs, level+" "+msg)
	l.mu.Unlock()
}

func (l *recordLogger) Debug(msg string, _ ...any) { l.record("DEBUG", msg) }
func (l *recordLogger) Info(msg string, _ ...any)  { l.record("INFO", msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.record("WARN", msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.record("ERROR", msg) }

func (l *recordLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == entry {
			return true
		}
	}
	return false
}

func TestReceiver_LogsConnectionClosed(t *testing.T) {
	logger := &recordLogger{}
	data, err := EncodeResponse([]byte("bye"))
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	r := NewReceiver(bytes.NewReader(data), ReceiverLoggerOption(logger))

	if _, err := r.Next(); err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if _, err := r.Next(); err == nil {
		t.Fatal("expected error at end of stream")
	}

	if len(logger.msgs) == 0 {
		t.Error("receiver logged nothing")
	}
}

func TestSlogLogger_TextOutput(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewReceiver(bytes.NewReader(nil), ReceiverLoggerOption(logger))
	_, _ = r.Next()

	if out.Len() == 0 {
		t.Error("expected slog output")
	}
}
