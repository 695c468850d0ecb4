//go:build !linux

package fetch

import (
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/transport"
)

// UringDialer fails: io_uring exists only on Linux.
func UringDialer() (transport.Transport, error) {
	return nil, httperrors.NewTransportError(httperrors.TransportErrorIoUringInit, "io_uring requires linux", nil)
}
