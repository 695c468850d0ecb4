//go:build linux

package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/iceber/iouring-go"
	"golang.org/x/sys/unix"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// UringTransport implements Transport over a blocking TCP socket whose
// send and receive operations are submitted through io_uring.
// A configured timeout is attached to each operation as a linked timeout.
type UringTransport struct {
	iour    *iouring.IOURing
	fd      int
	timeout time.Duration
}

// NewUringTransport creates a new TCP transport with io_uring
func NewUringTransport() (*UringTransport, error) {
	// Create io_uring instance with queue depth of 32
	iour, err := iouring.New(32)
	if err != nil {
		return nil, httperrors.NewTransportError(
			httperrors.TransportErrorIoUringInit,
			"failed to initialize io_uring",
			err,
		)
	}

	return &UringTransport{
		iour: iour,
		fd:   -1,
	}, nil
}

// Connect establishes a TCP connection
func (t *UringTransport) Connect(host string, port int) error {
	if t.fd >= 0 {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			"already connected",
			nil,
		)
	}

	// Resolve the address
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorDnsFailure,
			fmt.Sprintf("failed to resolve %s", addr),
			err,
		)
	}

	var sa unix.Sockaddr
	domain := unix.AF_INET
	if ip4 := tcpAddr.IP.To4(); ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: tcpAddr.Port}
		copy(sa4.Addr[:], ip4)
		sa = sa4
	} else {
		sa6 := &unix.SockaddrInet6{Port: tcpAddr.Port}
		copy(sa6.Addr[:], tcpAddr.IP)
		sa = sa6
		domain = unix.AF_INET6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketCreateFailure,
			"failed to create socket",
			err,
		)
	}

	if t.timeout > 0 {
		tv := unix.NsecToTimeval(t.timeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv); err != nil {
			unix.Close(fd)
			return httperrors.NewTransportError(
				httperrors.TransportErrorSocketCreateFailure,
				"failed to set connect timeout",
				err,
			)
		}
	}

	// Use blocking connect (io_uring connect support is limited)
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		if errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EAGAIN) {
			return httperrors.NewTransportError(
				httperrors.TransportErrorTimeout,
				fmt.Sprintf("connect to %s timed out", addr),
				err,
			)
		}
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketConnectFailure,
			fmt.Sprintf("failed to connect to %s", addr),
			err,
		)
	}

	// Set TCP_NODELAY
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
		unix.Close(fd)
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketCreateFailure,
			"failed to set TCP_NODELAY",
			err,
		)
	}

	t.fd = fd
	return nil
}

// SetTimeout bounds each subsequent send and receive
func (t *UringTransport) SetTimeout(d time.Duration) error {
	if d < 0 {
		return httperrors.NewInvalidArgumentError("negative timeout")
	}
	t.timeout = d
	return nil
}

// submit runs one request to completion and returns its result code.
func (t *UringTransport) submit(prep iouring.PrepRequest) (int, error) {
	if t.timeout <= 0 {
		ch := make(chan iouring.Result, 1)
		if _, err := t.iour.SubmitRequest(prep, ch); err != nil {
			return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit request", err)
		}
		result := <-ch
		return result.ReturnInt()
	}

	ch := make(chan iouring.Result, 2)
	set, err := t.iour.SubmitLinkRequests(prep.WithTimeout(t.timeout), ch)
	if err != nil {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorIoUringSubmit, "failed to submit linked request", err)
	}
	<-set.Done()

	n, err := set.Requests()[0].ReturnInt()
	if errors.Is(err, iouring.ErrRequestCanceled) {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorTimeout, fmt.Sprintf("no progress within %s", t.timeout), err)
	}
	return n, err
}

// Write sends data over the connection using io_uring
func (t *UringTransport) Write(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketWriteFailure,
			"not connected",
			nil,
		)
	}

	totalWritten := 0
	for totalWritten < len(buf) {
		n, err := t.submit(iouring.Send(t.fd, buf[totalWritten:], unix.MSG_NOSIGNAL))
		if err != nil {
			var httpErr *httperrors.HttpError
			if errors.As(err, &httpErr) {
				return totalWritten, err
			}
			if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
				return totalWritten, httperrors.NewTransportError(
					httperrors.TransportErrorConnectionClosed,
					"connection closed during write",
					err,
				)
			}
			return totalWritten, httperrors.NewTransportError(
				httperrors.TransportErrorSocketWriteFailure,
				"write failed",
				err,
			)
		}

		if n <= 0 {
			return totalWritten, httperrors.NewTransportError(
				httperrors.TransportErrorConnectionClosed,
				"connection closed during write",
				nil,
			)
		}

		totalWritten += n
	}

	return totalWritten, nil
}

// Read receives data from the connection using io_uring
func (t *UringTransport) Read(buf []byte) (int, error) {
	if t.fd < 0 {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketReadFailure,
			"not connected",
			nil,
		)
	}

	n, err := t.submit(iouring.Recv(t.fd, buf, 0))
	if err != nil {
		var httpErr *httperrors.HttpError
		if errors.As(err, &httpErr) {
			return 0, err
		}
		if errors.Is(err, unix.ECONNRESET) {
			return 0, httperrors.NewTransportError(
				httperrors.TransportErrorConnectionClosed,
				"connection reset by peer",
				err,
			)
		}
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorSocketReadFailure,
			"read failed",
			err,
		)
	}

	if n == 0 && len(buf) > 0 {
		return 0, httperrors.NewTransportError(
			httperrors.TransportErrorConnectionClosed,
			"connection closed by peer",
			nil,
		)
	}

	return n, nil
}

// Close closes the socket; the ring stays usable until Destroy.
func (t *UringTransport) Close() error {
	if t.fd < 0 {
		return nil // Already closed or never connected
	}

	fd := t.fd
	t.fd = -1
	if err := unix.Close(fd); err != nil {
		return httperrors.NewTransportError(
			httperrors.TransportErrorSocketCloseFailure,
			"failed to close socket",
			err,
		)
	}

	return nil
}

// Destroy cleans up resources including the io_uring instance
func (t *UringTransport) Destroy() {
	t.Close()
	if t.iour != nil {
		t.iour.Close()
		t.iour = nil
	}
}
