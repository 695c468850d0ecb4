// Package server serves files below a root directory with byte range
// support, one exchange per connection.
package server

import (
	"context"
	"net"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/nczempin/httpxfer/config"
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/protocol"
	"github.com/nczempin/httpxfer/sockbuf"
	"github.com/nczempin/httpxfer/transfer"
	"github.com/nczempin/httpxfer/transport"
)

// Server answers GET and HEAD for files below Root.
type Server struct {
	root string
	cfg  config.Config
	log  zerolog.Logger
	wg   sync.WaitGroup
}

// New creates a server for the directory root.
func New(root string, cfg config.Config, log zerolog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, httperrors.NewIOError("resolve root "+root, err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, httperrors.NewIOError("stat root "+abs, err)
	}
	if !fi.IsDir() {
		return nil, httperrors.NewInvalidArgumentError("root is not a directory: " + abs)
	}
	return &Server{root: abs, cfg: cfg, log: log.With().Str("root", abs).Logger()}, nil
}

// Serve accepts connections from ln until ctx is done, handling each on
// its own goroutine. It closes ln and waits for open connections before
// returning. Cancellation is not an error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	s.log.Info().Str("addr", ln.Addr().String()).Msg("serving")
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("shutting down")
				return nil
			}
			return errors.Wrap(err, "accept")
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(conn)
		}()
	}
}

// Listen opens a listener on addr. An address of the form unix:/path
// listens on that Unix socket, anything else is a TCP host:port.
func Listen(addr string) (net.Listener, error) {
	network := "tcp"
	if p, ok := strings.CutPrefix(addr, "unix:"); ok {
		network, addr = "unix", p
	}
	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, httperrors.NewTransportError(httperrors.TransportErrorSocketCreateFailure, "listen on "+network+" "+addr, err)
	}
	return ln, nil
}

// ServeConn runs one exchange on conn and closes it.
func (s *Server) ServeConn(conn net.Conn) {
	t := transport.NewConnTransport(conn)
	defer t.Close()

	peer := ""
	if a := conn.RemoteAddr(); a != nil {
		peer = a.String()
	}
	log := s.log.With().
		Str("transfer_id", uuid.NewString()).
		Str("peer", peer).
		Logger()

	if err := s.handle(t, log); err != nil {
		ev := log.Error()
		if httperrors.IsResumable(err) {
			ev = log.Warn()
		}
		ev.Stack().Err(err).Msg("exchange failed")
	}
}

func (s *Server) handle(t transport.Transport, log zerolog.Logger) error {
	if err := t.SetTimeout(s.cfg.Timeout); err != nil {
		return err
	}
	engine := transfer.New(s.cfg, log)
	r := sockbuf.NewReader(t, s.cfg.BlockSize)

	block, err := engine.ReceiveHeaderBlock(r)
	if err != nil {
		if errors.Is(err, httperrors.ErrProtocol) {
			s.reply(t, 400, "Bad Request")
		}
		return errors.Wrap(err, "receive request")
	}
	req, err := protocol.ParseRequest(block)
	if err != nil {
		s.reply(t, 400, "Bad Request")
		return errors.Wrap(err, "parse request")
	}
	log = log.With().Str("method", req.Line.Method).Str("resource", req.Line.Resource).Logger()

	if req.Line.Method != protocol.MethodGet && req.Line.Method != protocol.MethodHead {
		log.Info().Int("status", 405).Msg("method not allowed")
		return s.reply(t, 405, "Method Not Allowed")
	}

	name, err := s.resolve(req.Line.Resource)
	if err != nil {
		log.Info().Int("status", 400).Err(err).Msg("bad resource")
		return s.reply(t, 400, "Bad Request")
	}
	f, err := os.Open(name)
	if err != nil {
		log.Info().Int("status", 404).Msg("not found")
		return s.reply(t, 404, "Not Found")
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil || !fi.Mode().IsRegular() {
		log.Info().Int("status", 404).Msg("not a regular file")
		return s.reply(t, 404, "Not Found")
	}
	size := fi.Size()

	var rng *protocol.ByteRange
	if v, ok := req.Headers.Lookup("Range"); ok {
		parsed, err := protocol.ParseRangeFor(v, size)
		if err != nil {
			log.Info().Int("status", 416).Str("range", v).Msg("range not satisfiable")
			return s.reply(t, 416, "Range Not Satisfiable")
		}
		rng = &parsed
	}

	head := protocol.GenerateResponseAs(s.cfg.ServerName, size, 200, "OK", nil)
	window := protocol.ByteRange{Start: 0, End: size - 1}
	if rng != nil {
		head = protocol.GenerateResponseAs(s.cfg.ServerName, size, 206, "Partial Content", rng)
		window = *rng
	}
	if _, err := t.Write(head); err != nil {
		return errors.Wrap(err, "send response header")
	}
	if req.Line.Method == protocol.MethodHead || size == 0 {
		log.Debug().Int64("size", size).Msg("header only")
		return nil
	}

	res, err := engine.UploadRange(t, f, window.Start, window.End)
	if err != nil {
		return errors.Wrapf(err, "send range %s", window)
	}
	log.Info().Str("range", window.String()).Int64("bytes", res.Bytes).Msg("served")
	return nil
}

// reply sends a body-less response.
func (s *Server) reply(t transport.Transport, code int, text string) error {
	_, err := t.Write(protocol.GenerateResponseAs(s.cfg.ServerName, 0, code, text, nil))
	return err
}

// resolve maps a request target to a path below root. The path is cleaned
// as if rooted at "/" so ".." can never climb out of root.
func (s *Server) resolve(resource string) (string, error) {
	p, _, _ := strings.Cut(resource, "?")
	p, err := url.PathUnescape(p)
	if err != nil {
		return "", httperrors.NewInvalidArgumentError("bad escape in " + resource)
	}
	if strings.ContainsRune(p, 0) {
		return "", httperrors.NewInvalidArgumentError("NUL in resource")
	}
	clean := path.Clean("/" + p)
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}
