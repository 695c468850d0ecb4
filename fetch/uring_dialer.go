//go:build linux

package fetch

import "github.com/nczempin/httpxfer/transport"

// UringDialer gives every segment its own io_uring backed TCP transport.
// The ring is destroyed when the segment's connection is released.
func UringDialer() (transport.Transport, error) {
	t, err := transport.NewUringTransport()
	if err != nil {
		return nil, err
	}
	return t, nil
}
