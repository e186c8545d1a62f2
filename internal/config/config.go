// Package config loads client and server settings from TOML files. Only keys
// present in a file override the defaults.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Defaults shared by the binaries.
const (
	DefaultHost = "localhost"
	DefaultPort = 8083
)

// Client holds client settings.
type Client struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	MaxFrameSize int
	Verbose      bool
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		Host: DefaultHost,
		Port: DefaultPort,
	}
}

// Addr returns host:port.
func (c Client) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the settings a connection needs.
func (c Client) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New("host is empty")
	}
	return validatePort(c.Port)
}

// Server holds server settings.
type Server struct {
	Listen          string
	Heartbeat       time.Duration
	MaxFrameSize    int
	SendBuffer      int
	ShutdownTimeout time.Duration
	MetricsListen   string
	Seed            uint64
	Verbose         bool
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Listen:          net.JoinHostPort("", strconv.Itoa(DefaultPort)),
		Heartbeat:       30 * time.Second,
		MaxFrameSize:    1024 * 1024,
		SendBuffer:      16,
		ShutdownTimeout: 5 * time.Second,
	}
}

type clientFile struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	ReadTimeout  string `toml:"read_timeout"`
	WriteTimeout string `toml:"write_timeout"`
	BufferSize   int    `toml:"buffer_size"`
	MaxFrameSize int    `toml:"max_frame_size"`
	Verbose      bool   `toml:"verbose"`
}

type serverFile struct {
	Listen          string `toml:"listen"`
	Heartbeat       string `toml:"heartbeat"`
	MaxFrameSize    int    `toml:"max_frame_size"`
	SendBuffer      int    `toml:"send_buffer"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	MetricsListen   string `toml:"metrics_listen"`
	Seed            int64  `toml:"seed"`
	Verbose         bool   `toml:"verbose"`
}

// LoadClient reads a client config file on top of DefaultClient.
func LoadClient(path string) (Client, error) {
	var raw clientFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Client{}, errors.Wrap(err, "load client config")
	}
	return clientFromFile(meta, raw)
}

// DecodeClient parses client config text on top of DefaultClient.
func DecodeClient(data string) (Client, error) {
	var raw clientFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Client{}, errors.Wrap(err, "decode client config")
	}
	return clientFromFile(meta, raw)
}

func clientFromFile(meta toml.MetaData, raw clientFile) (Client, error) {
	cfg := DefaultClient()

	if meta.IsDefined("host") {
		if host := strings.TrimSpace(raw.Host); host != "" {
			cfg.Host = host
		}
	}
	if meta.IsDefined("port") {
		if err := validatePort(raw.Port); err != nil {
			return Client{}, err
		}
		cfg.Port = raw.Port
	}
	if meta.IsDefined("read_timeout") {
		d, err := parseDuration("read_timeout", raw.ReadTimeout)
		if err != nil {
			return Client{}, err
		}
		cfg.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := parseDuration("write_timeout", raw.WriteTimeout)
		if err != nil {
			return Client{}, err
		}
		cfg.WriteTimeout = d
	}
	if meta.IsDefined("buffer_size") {
		cfg.BufferSize = raw.BufferSize
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	return cfg, nil
}

// LoadServer reads a server config file on top of DefaultServer.
func LoadServer(path string) (Server, error) {
	var raw serverFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Server{}, errors.Wrap(err, "load server config")
	}
	return serverFromFile(meta, raw)
}

// DecodeServer parses server config text on top of DefaultServer.
func DecodeServer(data string) (Server, error) {
	var raw serverFile
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Server{}, errors.Wrap(err, "decode server config")
	}
	return serverFromFile(meta, raw)
}

func serverFromFile(meta toml.MetaData, raw serverFile) (Server, error) {
	cfg := DefaultServer()

	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("heartbeat") {
		d, err := parseDuration("heartbeat", raw.Heartbeat)
		if err != nil {
			return Server{}, err
		}
		cfg.Heartbeat = d
	}
	if meta.IsDefined("max_frame_size") {
		cfg.MaxFrameSize = raw.MaxFrameSize
	}
	if meta.IsDefined("send_buffer") {
		cfg.SendBuffer = raw.SendBuffer
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := parseDuration("shutdown_timeout", raw.ShutdownTimeout)
		if err != nil {
			return Server{}, err
		}
		cfg.ShutdownTimeout = d
	}
	if meta.IsDefined("metrics_listen") {
		cfg.MetricsListen = strings.TrimSpace(raw.MetricsListen)
	}
	if meta.IsDefined("seed") {
		cfg.Seed = uint64(raw.Seed)
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	return d, nil
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.Errorf("port %d out of range", port)
	}
	return nil
}
