package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"

	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/protocol"
	"github.com/nczempin/httpxfer/sockbuf"
)

// Transports fetch can connect with.
const (
	TransportTCP   = "tcp"
	TransportUring = "uring"
	TransportUnix  = "unix"
)

// Config holds the knobs shared by clients, servers and the fetcher.
type Config struct {
	// Timeout bounds every socket operation; zero waits forever.
	Timeout time.Duration

	// BlockSize is the size of one transport read.
	BlockSize int

	// ChunkSize is the size of one upload send.
	ChunkSize int

	// MaxHeaderBytes caps a header block, terminator included.
	MaxHeaderBytes int

	// Throttle is slept between upload chunks. Zero disables it.
	Throttle time.Duration

	// RateLimit caps one upload at this many bytes per second. Zero
	// disables it.
	RateLimit int

	// Transport selects how fetch connects: "tcp", "uring" or "unix".
	Transport string

	// UnixSocket is the socket path dialed when Transport is "unix".
	UnixSocket string

	UserAgent  string
	ServerName string

	// Segments is the number of parallel ranged connections used by fetch.
	Segments int

	LogLevel zerolog.Level
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Timeout:        10 * time.Second,
		BlockSize:      sockbuf.DefaultBlockSize,
		ChunkSize:      16 * 1024,
		MaxHeaderBytes: 64 * 1024,
		Throttle:       0,
		RateLimit:      0,
		Transport:      TransportTCP,
		UserAgent:      protocol.DefaultUserAgent,
		ServerName:     protocol.DefaultServerName,
		Segments:       4,
		LogLevel:       zerolog.InfoLevel,
	}
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	switch {
	case c.Timeout < 0:
		return httperrors.NewInvalidArgumentError("timeout must not be negative")
	case c.BlockSize <= 0:
		return httperrors.NewInvalidArgumentError("block size must be positive")
	case c.ChunkSize <= 0:
		return httperrors.NewInvalidArgumentError("chunk size must be positive")
	case c.MaxHeaderBytes < 4:
		return httperrors.NewInvalidArgumentError("max header bytes must hold at least a blank line terminator")
	case c.Throttle < 0:
		return httperrors.NewInvalidArgumentError("throttle must not be negative")
	case c.Segments <= 0:
		return httperrors.NewInvalidArgumentError("segments must be positive")
	case c.RateLimit < 0:
		return httperrors.NewInvalidArgumentError("rate limit must not be negative")
	}
	switch c.Transport {
	case "", TransportTCP, TransportUring:
	case TransportUnix:
		if c.UnixSocket == "" {
			return httperrors.NewInvalidArgumentError("unix transport needs a socket path")
		}
	default:
		return httperrors.NewInvalidArgumentError("unknown transport " + strconv.Quote(c.Transport))
	}
	return nil
}

// FromEnv starts from Default and applies PREFIX_TIMEOUT, PREFIX_BLOCK_SIZE,
// PREFIX_CHUNK_SIZE, PREFIX_MAX_HEADER_BYTES, PREFIX_THROTTLE,
// PREFIX_RATE_LIMIT, PREFIX_TRANSPORT, PREFIX_UNIX_SOCKET,
// PREFIX_USER_AGENT, PREFIX_SERVER_NAME, PREFIX_SEGMENTS and
// PREFIX_LOG_LEVEL when set. Durations use time.ParseDuration syntax.
func FromEnv(prefix string) (Config, error) {
	return fromLookup(prefix, os.LookupEnv)
}

func fromLookup(prefix string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	key := func(name string) string {
		if prefix == "" {
			return name
		}
		return strings.ToUpper(prefix) + "_" + name
	}

	durations := map[string]*time.Duration{
		"TIMEOUT":  &cfg.Timeout,
		"THROTTLE": &cfg.Throttle,
	}
	for name, dst := range durations {
		if v, ok := lookup(key(name)); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, httperrors.NewInvalidArgumentError(key(name) + ": " + err.Error())
			}
			*dst = d
		}
	}

	ints := map[string]*int{
		"BLOCK_SIZE":       &cfg.BlockSize,
		"CHUNK_SIZE":       &cfg.ChunkSize,
		"MAX_HEADER_BYTES": &cfg.MaxHeaderBytes,
		"SEGMENTS":         &cfg.Segments,
		"RATE_LIMIT":       &cfg.RateLimit,
	}
	for name, dst := range ints {
		if v, ok := lookup(key(name)); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return cfg, httperrors.NewInvalidArgumentError(key(name) + ": " + err.Error())
			}
			*dst = n
		}
	}

	if v, ok := lookup(key("TRANSPORT")); ok {
		cfg.Transport = strings.ToLower(v)
	}
	if v, ok := lookup(key("UNIX_SOCKET")); ok {
		cfg.UnixSocket = v
	}
	if v, ok := lookup(key("USER_AGENT")); ok {
		cfg.UserAgent = v
	}
	if v, ok := lookup(key("SERVER_NAME")); ok {
		cfg.ServerName = v
	}
	if v, ok := lookup(key("LOG_LEVEL")); ok {
		lvl, err := zerolog.ParseLevel(v)
		if err != nil {
			return cfg, httperrors.NewInvalidArgumentError(key("LOG_LEVEL") + ": " + err.Error())
		}
		cfg.LogLevel = lvl
	}

	return cfg, cfg.Validate()
}

// SetupLogger builds the process logger: JSON lines on w at the
// configured level, with stack traces for errors wrapped by pkg/errors.
func SetupLogger(w io.Writer, cfg Config) zerolog.Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	return zerolog.New(w).Level(cfg.LogLevel).With().Timestamp().Logger()
}
