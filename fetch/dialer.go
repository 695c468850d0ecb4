package fetch

import (
	"strconv"

	"github.com/nczempin/httpxfer/config"
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/transport"
)

// DialerFor returns the dialer matching cfg.Transport. An unusable
// setting yields a dialer that fails on every call.
func DialerFor(cfg config.Config) Dialer {
	switch cfg.Transport {
	case "", config.TransportTCP:
		return TcpDialer
	case config.TransportUring:
		return UringDialer
	case config.TransportUnix:
		return UnixDialer(cfg.UnixSocket)
	default:
		err := httperrors.NewInvalidArgumentError("unknown transport " + strconv.Quote(cfg.Transport))
		return func() (transport.Transport, error) { return nil, err }
	}
}

// UnixDialer reaches the server through the Unix socket at path. The URL
// still supplies the Host header and resource; its host and port are not
// dialed.
func UnixDialer(path string) Dialer {
	return func() (transport.Transport, error) {
		return &unixSocket{UnixTransport: transport.NewUnixTransport(), path: path}, nil
	}
}

type unixSocket struct {
	*transport.UnixTransport
	path string
}

func (u *unixSocket) Connect(string, int) error {
	return u.UnixTransport.Connect(u.path, 0)
}
