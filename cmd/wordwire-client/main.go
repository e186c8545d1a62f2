// wordwire-client sends text transformation requests to a wordwire server
// and prints the responses in request order.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Zereker/wordwire"
	"github.com/Zereker/wordwire/internal/batch"
	"github.com/Zereker/wordwire/internal/config"
)

func init() {
	// -h selects the host.
	cli.HelpFlag = &cli.BoolFlag{Name: "help", Usage: "show help"}
}

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "wordwire-client: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "wordwire-client",
		Usage:     "send text transformation requests",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Aliases: []string{"h"}, Value: config.DefaultHost, Usage: "server host"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: config.DefaultPort, Usage: "server port"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "TOML config file"},
			&cli.DurationFlag{Name: "timeout", Usage: "per-read and per-write timeout, 0 to disable"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "debug logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "send",
				Usage:     "send one request and print the response",
				ArgsUsage: "ACTION MESSAGE",
				Action:    sendCmd,
			},
			{
				Name:      "batch",
				Usage:     "send every \"ACTION MESSAGE\" line of FILE (or - for stdin)",
				ArgsUsage: "FILE",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "window", Value: 64, Usage: "maximum requests in flight, 0 for no limit"},
				},
				Action: batchCmd,
			},
		},
	}
}

func loadConfig(c *cli.Context) (config.Client, error) {
	cfg := config.DefaultClient()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadClient(path)
		if err != nil {
			return config.Client{}, err
		}
		cfg = loaded
	}

	if c.IsSet("host") {
		cfg.Host = c.String("host")
	}
	if c.IsSet("port") {
		cfg.Port = c.Int("port")
	}
	if c.IsSet("timeout") {
		cfg.ReadTimeout = c.Duration("timeout")
		cfg.WriteTimeout = c.Duration("timeout")
	}
	if c.IsSet("verbose") {
		cfg.Verbose = c.Bool("verbose")
	}

	return cfg, cfg.Validate()
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func connect(c *cli.Context) (*wordwire.Client, *slog.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(c.App.ErrWriter, cfg.Verbose)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("connecting", "addr", cfg.Addr())
	client, err := wordwire.Dial(ctx, cfg.Addr(),
		wordwire.ReadTimeoutOption(cfg.ReadTimeout),
		wordwire.WriteTimeoutOption(cfg.WriteTimeout),
		wordwire.ClientBufferSizeOption(cfg.BufferSize),
		wordwire.ClientMaxFrameSizeOption(cfg.MaxFrameSize),
		wordwire.ClientLoggerOption(logger),
	)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "connect %s", cfg.Addr())
	}
	return client, logger, nil
}

func sendCmd(c *cli.Context) error {
	if c.NArg() < 2 {
		return cli.Exit("usage: wordwire-client send ACTION MESSAGE", 2)
	}
	action, err := wordwire.ParseAction(c.Args().First())
	if err != nil {
		return err
	}
	message := strings.Join(c.Args().Tail(), " ")

	client, logger, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	response, err := client.Do(action, []byte(message))
	if err != nil {
		return err
	}

	logger.Debug("response", "bytes", humanize.Bytes(uint64(len(response))))
	fmt.Fprintf(c.App.Writer, "%s\n", response)
	return nil
}

func batchCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: wordwire-client batch FILE", 2)
	}

	in, err := batch.Open(c.Args().First())
	if err != nil {
		return err
	}
	requests, parseErr := batch.Parse(in)
	_ = in.Close()

	client, logger, err := connect(c)
	if err != nil {
		return err
	}
	defer client.Close()

	if parseErr != nil {
		var merr *multierror.Error
		if errors.As(parseErr, &merr) {
			for _, e := range merr.Errors {
				logger.Warn("skipping request", "error", e)
			}
		}
	}
	if len(requests) == 0 {
		logger.Warn("no messages were sent")
		return parseErr
	}

	var sent, received uint64
	emit := func(payload []byte) {
		received += uint64(len(payload))
		fmt.Fprintf(c.App.Writer, "%s\n", payload)
	}

	// Responses are read while sending once the window is full, so neither
	// side stalls on a full socket buffer.
	window := c.Int("window")
	for _, req := range requests {
		if window > 0 && client.Pending() >= window {
			frame, err := client.Next()
			if err != nil {
				return err
			}
			emit(frame.Payload)
		}
		if err := client.Send(req.Action, []byte(req.Message)); err != nil {
			return errors.Wrapf(err, "line %d", req.Line)
		}
		sent += uint64(len(req.Message))
	}
	logger.Debug("requests sent", "count", len(requests), "bytes", humanize.Bytes(sent))

	err = client.Receive(func(payload []byte) bool {
		emit(payload)
		return false
	})
	if err != nil {
		return err
	}
	logger.Info("batch complete", "requests", len(requests),
		"sent", humanize.Bytes(sent), "received", humanize.Bytes(received))

	return parseErr
}
