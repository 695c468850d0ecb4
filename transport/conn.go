package transport

import (
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// connTransport carries the Read/Write/Close/SetTimeout logic shared by
// every net.Conn backed transport.
type connTransport struct {
	conn    net.Conn
	timeout time.Duration
}

// NewConnTransport wraps an already established connection, typically one
// returned by a listener's Accept.
func NewConnTransport(conn net.Conn) Transport {
	return &connTransport{conn: conn}
}

func (t *connTransport) Connect(host string, port int) error {
	return httperrors.NewTransportError(
		httperrors.TransportErrorSocketConnectFailure,
		"transport wraps an accepted connection",
		nil,
	)
}

func (t *connTransport) SetTimeout(d time.Duration) error {
	if d < 0 {
		return httperrors.NewInvalidArgumentError("negative timeout")
	}
	t.timeout = d
	return nil
}

func (t *connTransport) deadline() time.Time {
	if t.timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(t.timeout)
}

// Write sends data over the connection
func (t *connTransport) Write(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "not connected", nil)
	}

	if err := t.conn.SetWriteDeadline(t.deadline()); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "set write deadline", err)
	}

	n, err := t.conn.Write(buf)
	if err != nil {
		return n, classifyWriteError(err)
	}

	return n, nil
}

// Read receives data from the connection
func (t *connTransport) Read(buf []byte) (int, error) {
	if t.conn == nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "not connected", nil)
	}

	if err := t.conn.SetReadDeadline(t.deadline()); err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "set read deadline", err)
	}

	n, err := t.conn.Read(buf)
	if err != nil {
		if n > 0 {
			// Hand over what arrived; the error repeats on the next call.
			return n, nil
		}
		return 0, classifyReadError(err)
	}
	if n == 0 && len(buf) > 0 {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "zero-length read", nil)
	}

	return n, nil
}

// Close closes the connection
func (t *connTransport) Close() error {
	if t.conn == nil {
		return nil // Idempotent close
	}

	err := t.conn.Close()
	t.conn = nil

	if err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketCloseFailure, "close", err)
	}

	return nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyReadError(err error) error {
	switch {
	case isTimeout(err):
		return httperrors.NewTransportError(httperrors.TransportErrorTimeout, "read timed out", err)
	case errors.Is(err, io.EOF), errors.Is(err, syscall.ECONNRESET), errors.Is(err, net.ErrClosed):
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", err)
	default:
		return httperrors.NewTransportError(httperrors.TransportErrorSocketReadFailure, "read failed", err)
	}
}

func classifyWriteError(err error) error {
	switch {
	case isTimeout(err):
		return httperrors.NewTransportError(httperrors.TransportErrorTimeout, "write timed out", err)
	case errors.Is(err, syscall.EPIPE), errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrClosedPipe):
		// Check for broken pipe or connection reset
		return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "connection closed by peer", err)
	default:
		return httperrors.NewTransportError(httperrors.TransportErrorSocketWriteFailure, "write failed", err)
	}
}
