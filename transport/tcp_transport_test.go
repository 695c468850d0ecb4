package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	httperrors "github.com/nczempin/httpxfer/errors"
)

func setupTcpTestServer(t *testing.T, serverLogic func(net.Conn)) (string, int, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}

	addr := listener.Addr().(*net.TCPAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverLogic(conn)
		conn.Close()
	}()

	cleanup := func() {
		listener.Close()
		<-done
	}

	return addr.IP.String(), addr.Port, cleanup
}

func expectTransportErr(t *testing.T, err error, want httperrors.TransportError) {
	t.Helper()

	if err == nil {
		t.Fatalf("Expected %v, got nil", want)
	}

	var httpErr *httperrors.HttpError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Expected *httperrors.HttpError, got %T", err)
	}

	if httpErr.Type != httperrors.ErrorTransport {
		t.Fatalf("Expected transport error, got %v", httpErr.Type)
	}

	if httpErr.TransportErr != want {
		t.Errorf("Expected %v, got %v", want, httpErr.TransportErr)
	}
}

func TestTcpTransport_Construction(t *testing.T) {
	transport := NewTcpTransport()
	if transport == nil {
		t.Fatal("NewTcpTransport returned nil")
	}
	if transport.conn != nil {
		t.Error("New transport should have nil connection")
	}
}

func TestTcpTransport_Connect_Success(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	transport := NewTcpTransport()
	if err := transport.Connect(host, port); err != nil {
		t.Errorf("Connect failed: %v", err)
	}

	if transport.conn == nil {
		t.Error("Connection should not be nil after successful connect")
	}

	transport.Close()
}

func TestTcpTransport_Connect_Failure_DnsError(t *testing.T) {
	transport := NewTcpTransport()
	err := transport.Connect("this-is-not-a-real-domain.invalid", 80)
	expectTransportErr(t, err, httperrors.TransportErrorDnsFailure)
}

func TestTcpTransport_Connect_Failure_ConnectionRefused(t *testing.T) {
	// Grab a free port and release it so nothing listens there
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to reserve port: %v", err)
	}
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	transport := NewTcpTransport()
	err = transport.Connect("127.0.0.1", port)
	expectTransportErr(t, err, httperrors.TransportErrorSocketConnectFailure)
}

func TestTcpTransport_WriteRead_Success(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		buf := make([]byte, 1024)
		n, _ := conn.Read(buf)
		conn.Write(buf[:n])
	})
	defer cleanup()

	transport := NewTcpTransport()
	if err := transport.Connect(host, port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer transport.Close()

	message := "hello server"
	n, err := transport.Write([]byte(message))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != len(message) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(message), n)
	}

	buf := make([]byte, 1024)
	n, err = transport.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got := string(buf[:n]); got != message {
		t.Errorf("Expected %q, got %q", message, got)
	}
}

func TestTcpTransport_Read_Failure_ConnectionClosed(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		// Server immediately closes
	})
	defer cleanup()

	transport := NewTcpTransport()
	if err := transport.Connect(host, port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer transport.Close()

	buf := make([]byte, 1024)
	_, err := transport.Read(buf)
	expectTransportErr(t, err, httperrors.TransportErrorConnectionClosed)

	if !errors.Is(err, httperrors.ErrConnectionClosed) {
		t.Error("Expected errors.Is to match ErrConnectionClosed")
	}
}

func TestTcpTransport_Read_Failure_Timeout(t *testing.T) {
	release := make(chan struct{})
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		<-release
	})
	defer cleanup()
	defer close(release)

	transport := NewTcpTransport()
	if err := transport.SetTimeout(50 * time.Millisecond); err != nil {
		t.Fatalf("SetTimeout failed: %v", err)
	}
	if err := transport.Connect(host, port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer transport.Close()

	start := time.Now()
	buf := make([]byte, 16)
	_, err := transport.Read(buf)
	expectTransportErr(t, err, httperrors.TransportErrorTimeout)

	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Read blocked for %v despite 50ms timeout", elapsed)
	}
	if !httperrors.IsResumable(err) {
		t.Error("Timeout should be resumable")
	}
}

func TestTcpTransport_SetTimeout_Negative(t *testing.T) {
	transport := NewTcpTransport()
	if err := transport.SetTimeout(-time.Second); err == nil {
		t.Fatal("Expected error for negative timeout")
	}
}

func TestTcpTransport_Close_Idempotent(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {})
	defer cleanup()

	transport := NewTcpTransport()
	if err := transport.Connect(host, port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close
	if err := transport.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}

	if transport.conn != nil {
		t.Error("Connection should be nil after close")
	}

	// Second close should also succeed
	if err := transport.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestTcpTransport_Write_Failure_ClosedConnection(t *testing.T) {
	host, port, cleanup := setupTcpTestServer(t, func(conn net.Conn) {
		// Set SO_LINGER to force RST on close
		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetLinger(0)
		}
	})
	defer cleanup()

	transport := NewTcpTransport()
	if err := transport.Connect(host, port); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer transport.Close()

	// Wait for server to close with RST
	time.Sleep(50 * time.Millisecond)

	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = transport.Write([]byte("this should fail"))
	}
	expectTransportErr(t, err, httperrors.TransportErrorConnectionClosed)
}

func TestTcpTransport_NoConnection(t *testing.T) {
	transport := NewTcpTransport()

	_, err := transport.Write([]byte("test"))
	expectTransportErr(t, err, httperrors.TransportErrorSocketWriteFailure)

	_, err = transport.Read(make([]byte, 8))
	expectTransportErr(t, err, httperrors.TransportErrorSocketReadFailure)
}

func TestConnTransport_Pipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	transport := NewConnTransport(server)
	go func() {
		client.Write([]byte("ping"))
		client.Close()
	}()

	buf := make([]byte, 8)
	n, err := transport.Read(buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("Expected ping, got %q", buf[:n])
	}

	_, err = transport.Read(buf)
	expectTransportErr(t, err, httperrors.TransportErrorConnectionClosed)

	if err := transport.Connect("127.0.0.1", 80); err == nil {
		t.Error("Connect on an accepted connection should fail")
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
