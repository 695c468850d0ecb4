package transport

import "time"

// Transport defines the interface for network I/O operations.
// Implementations include TCP, Unix domain sockets, accepted server
// connections and an io_uring backed TCP transport.
type Transport interface {
	// Connect establishes a connection to the specified host and port.
	// For Unix sockets, the host parameter is the socket path and port is ignored.
	Connect(host string, port int) error

	// Write sends data to the connected peer.
	// Returns the number of bytes written or an error.
	Write(buf []byte) (int, error)

	// Read receives data from the connected peer.
	// A peer that closed the connection yields a ConnectionClosed error,
	// an expired timeout yields a Timeout error.
	Read(buf []byte) (int, error)

	// SetTimeout bounds every subsequent Read and Write. Zero disables it.
	SetTimeout(d time.Duration) error

	// Close closes the connection.
	Close() error
}
