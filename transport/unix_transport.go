package transport

import (
	"net"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// UnixTransport implements the Transport interface using Unix domain sockets
type UnixTransport struct {
	connTransport
}

// NewUnixTransport creates a new UnixTransport instance
func NewUnixTransport() *UnixTransport {
	return &UnixTransport{}
}

// Connect establishes a Unix domain socket connection to the specified path.
// The port parameter is ignored for Unix sockets.
func (t *UnixTransport) Connect(path string, port int) error {
	if t.conn != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	conn, err := net.DialTimeout("unix", path, t.timeout)
	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "failed to connect to unix socket", err)
	}

	t.conn = conn
	return nil
}
