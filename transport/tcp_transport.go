package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// TcpTransport implements the Transport interface using TCP sockets
type TcpTransport struct {
	connTransport
}

// NewTcpTransport creates a new TcpTransport instance
func NewTcpTransport() *TcpTransport {
	return &TcpTransport{}
}

// Connect establishes a TCP connection to the specified host and port.
// The configured timeout also bounds the dial.
func (t *TcpTransport) Connect(host string, port int) error {
	if t.conn != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, "already connected", nil)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := net.DialTimeout("tcp", addr, t.timeout)
	if err != nil {
		// Classify network errors using type assertions
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return httperrors.NewTransportError(httperrors.TransportErrorDnsFailure, fmt.Sprintf("failed to resolve %s", host), err)
		}
		if isTimeout(err) {
			return httperrors.NewTransportError(httperrors.TransportErrorTimeout, fmt.Sprintf("connect to %s timed out", addr), err)
		}
		if errors.Is(err, syscall.ECONNREFUSED) {
			return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, fmt.Sprintf("connection to %s refused", addr), err)
		}
		return httperrors.NewTransportError(httperrors.TransportErrorSocketConnectFailure, fmt.Sprintf("failed to connect to %s", addr), err)
	}

	// Set TCP_NODELAY to disable Nagle's algorithm for lower latency
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			conn.Close()
			return httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "failed to set TCP_NODELAY", err)
		}
	}

	t.conn = conn
	return nil
}
