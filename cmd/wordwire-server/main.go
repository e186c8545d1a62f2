// wordwire-server answers text transformation requests until it receives
// SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/Zereker/wordwire"
	"github.com/Zereker/wordwire/internal/config"
	"github.com/Zereker/wordwire/transform"
)

func main() {
	if err := newApp(os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wordwire-server: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "wordwire-server",
		Usage:     "serve text transformation requests",
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "listen address (default \":8083\")"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "listen port on all interfaces"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file"},
			&cli.StringFlag{Name: "metrics", Usage: "serve Prometheus metrics on this address"},
			&cli.Uint64Flag{Name: "seed", Usage: "seed for shuffle and random, default is time based"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Action: serve,
	}
}

func loadConfig(c *cli.Context) (config.Server, error) {
	cfg := config.DefaultServer()
	cfg.Seed = uint64(time.Now().UnixNano())
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadServer(path)
		if err != nil {
			return config.Server{}, err
		}
		if loaded.Seed == 0 {
			loaded.Seed = cfg.Seed
		}
		cfg = loaded
	}

	if c.IsSet("port") {
		cfg.Listen = fmt.Sprintf(":%d", c.Int("port"))
	}
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("metrics") {
		cfg.MetricsListen = c.String("metrics")
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Uint64("seed")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}
	return cfg, nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))

	addr, err := net.ResolveTCPAddr("tcp", cfg.Listen)
	if err != nil {
		return errors.Wrapf(err, "resolve %q", cfg.Listen)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []wordwire.Option{
		wordwire.LoggerOption(logger),
		wordwire.HeartbeatOption(cfg.Heartbeat),
		wordwire.MaxFrameSizeOption(cfg.MaxFrameSize),
		wordwire.BufferSizeOption(cfg.SendBuffer),
	}

	if cfg.MetricsListen != "" {
		reg := prometheus.NewRegistry()
		metrics, err := wordwire.NewMetrics(reg)
		if err != nil {
			return err
		}
		opts = append(opts, wordwire.MetricsOption(metrics))

		stopMetrics, err := serveMetrics(cfg.MetricsListen, reg, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	server, err := wordwire.New(addr,
		wordwire.ServerLoggerOption(logger),
		wordwire.ServerShutdownTimeoutOption(cfg.ShutdownTimeout),
	)
	if err != nil {
		return errors.Wrap(err, "listen")
	}
	defer server.Close()

	handler := wordwire.NewTransformHandler(transform.New(cfg.Seed), opts...)
	logger.Debug("server config", "listen", server.Addr(), "heartbeat", cfg.Heartbeat,
		"max_frame_size", cfg.MaxFrameSize, "send_buffer", cfg.SendBuffer, "seed", cfg.Seed)

	err = server.Serve(ctx, handler)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry, logger wordwire.Logger) (func(), error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "metrics listen")
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("metrics listening", "addr", listener.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
