// Package transfer drives the phases of an exchange that move bytes:
// receiving a header block, streaming a body into a file and sending a
// byte range of a file to the peer.
package transfer

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nczempin/httpxfer/config"
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/protocol"
	"github.com/nczempin/httpxfer/sockbuf"
)

const headerTerminator = protocol.CRLF + protocol.CRLF

// Sender is the part of a transport an upload writes to.
type Sender interface {
	Write(buf []byte) (int, error)
}

// Result reports how far a body transfer got. A transfer that stopped
// early because the peer went away or timed out is not an error: Cause
// records why, and the caller can resume from Bytes with a range request.
type Result struct {
	Bytes    int64
	Expected int64
	Cause    error
}

// Short reports whether fewer bytes than expected were moved.
func (r Result) Short() bool {
	return r.Expected >= 0 && r.Bytes < r.Expected
}

// Complete reports whether the transfer reached its expected length.
func (r Result) Complete() bool {
	return !r.Short() && r.Cause == nil
}

// Engine moves header blocks and bodies for one connection at a time.
// It holds no per-connection state and may be shared between goroutines.
type Engine struct {
	cfg config.Config
	log zerolog.Logger
}

// New creates an engine. Zero sizes in cfg fall back to the defaults.
func New(cfg config.Config, log zerolog.Logger) *Engine {
	def := config.Default()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxHeaderBytes <= 0 {
		cfg.MaxHeaderBytes = def.MaxHeaderBytes
	}
	return &Engine{cfg: cfg, log: log}
}

// ReceiveHeaderBlock reads lines until the blank line ending a header
// block and returns the block, terminator included. Any body bytes that
// arrived with it stay in the reader's backlog. Blank lines ahead of the
// block are skipped but still count toward MaxHeaderBytes.
func (e *Engine) ReceiveHeaderBlock(r *sockbuf.Reader) (string, error) {
	var b strings.Builder
	skipped := 0
	for {
		remaining := e.cfg.MaxHeaderBytes - skipped - b.Len()
		if remaining <= 0 {
			return "", httperrors.NewProtocolError(httperrors.ProtocolErrorHeaderTooLarge, "header block exceeds limit", b.String())
		}

		line, err := r.ReadLineLimit(remaining)
		if err != nil {
			if errors.Is(err, httperrors.ErrHeaderTooLarge) {
				return "", httperrors.NewProtocolError(httperrors.ProtocolErrorHeaderTooLarge, "header block exceeds limit", b.String())
			}
			return "", err
		}
		b.Write(line)

		if b.Len() == len(protocol.CRLF) {
			// A blank first line is not a header block; skip it like
			// stray CRLF between messages.
			skipped += b.Len()
			b.Reset()
			continue
		}
		if strings.HasSuffix(b.String(), headerTerminator) {
			return b.String(), nil
		}
	}
}

// DownloadBody copies the body from r into dst until expected bytes have
// been written. Bytes already buffered behind the header block are
// written first. A negative expected length reads until the peer closes.
//
// A timeout or closure before expected bytes is reported as a short
// Result with a nil error; only write failures and other transport errors
// are returned as errors.
func (e *Engine) DownloadBody(r *sockbuf.Reader, dst io.Writer, expected int64) (Result, error) {
	res := Result{Expected: expected}

	write := func(chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		n, err := dst.Write(chunk)
		res.Bytes += int64(n)
		if err != nil {
			return httperrors.NewIOError("write body", err)
		}
		return nil
	}

	for expected < 0 || res.Bytes < expected {
		if r.Buffered() == 0 {
			if _, err := r.Fill(); err != nil {
				if httperrors.IsResumable(err) {
					if expected >= 0 || !errors.Is(err, httperrors.ErrConnectionClosed) {
						res.Cause = err
					}
					break
				}
				return res, err
			}
		}

		limit := r.Buffered()
		if expected >= 0 && int64(limit) > expected-res.Bytes {
			limit = int(expected - res.Bytes)
		}
		if err := write(r.DrainUpTo(limit)); err != nil {
			return res, err
		}
	}

	ev := e.log.Debug()
	if res.Short() {
		ev = e.log.Warn().AnErr("cause", res.Cause)
	}
	ev.Int64("bytes", res.Bytes).Int64("expected", expected).Msg("body received")
	return res, nil
}

// DownloadToFile is DownloadBody into the file at path. With resume the
// file is appended to, otherwise it is truncated. The file is synced and
// closed on every path out, including short transfers.
func (e *Engine) DownloadToFile(r *sockbuf.Reader, path string, expected int64, resume bool) (res Result, err error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return Result{Expected: expected}, httperrors.NewIOError("open "+path, err)
	}
	defer func() {
		syncErr := f.Sync()
		closeErr := f.Close()
		if err == nil && syncErr != nil {
			err = httperrors.NewIOError("sync "+path, syncErr)
		}
		if err == nil && closeErr != nil {
			err = httperrors.NewIOError("close "+path, closeErr)
		}
	}()

	return e.DownloadBody(r, f, expected)
}

// UploadRange sends bytes start through end of src, inclusive, to w in
// chunks of the configured size. Partial writes are retried until the
// chunk is sent or the connection fails. A source shorter than the range
// ends the upload early with a short Result. A configured RateLimit caps
// the bytes per second of this upload; Throttle adds a fixed pause after
// every chunk but the last.
func (e *Engine) UploadRange(w Sender, src io.ReadSeeker, start, end int64) (Result, error) {
	rng := protocol.ByteRange{Start: start, End: end}
	if err := rng.Validate(); err != nil {
		return Result{}, err
	}
	res := Result{Expected: rng.Len()}

	if _, err := src.Seek(start, io.SeekStart); err != nil {
		return res, httperrors.NewIOError("seek to "+rng.String(), err)
	}

	var limiter *rate.Limiter
	if e.cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.cfg.RateLimit), e.cfg.ChunkSize)
	}

	buf := make([]byte, e.cfg.ChunkSize)
	for pos := start; pos <= end; {
		want := int64(len(buf))
		if left := end - pos + 1; left < want {
			want = left
		}

		n, rerr := io.ReadFull(src, buf[:want])
		if n > 0 {
			if limiter != nil {
				if err := limiter.WaitN(context.Background(), n); err != nil {
					return res, httperrors.NewInvalidArgumentError("rate limit: " + err.Error())
				}
			}
			if err := sendAll(w, buf[:n]); err != nil {
				return res, err
			}
			res.Bytes += int64(n)
			pos += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
				res.Cause = httperrors.NewTransportError(httperrors.TransportErrorShortRead, "source ended inside range "+rng.String(), rerr)
				break
			}
			return res, httperrors.NewIOError("read source", rerr)
		}

		if e.cfg.Throttle > 0 && pos <= end {
			time.Sleep(e.cfg.Throttle)
		}
	}

	ev := e.log.Debug()
	if res.Short() {
		ev = e.log.Warn().AnErr("cause", res.Cause)
	}
	ev.Str("range", rng.String()).Int64("bytes", res.Bytes).Msg("range sent")
	return res, nil
}

// UploadFile opens path and sends the inclusive range start through end.
func (e *Engine) UploadFile(w Sender, path string, start, end int64) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, httperrors.NewIOError("open "+path, err)
	}
	defer f.Close()
	return e.UploadRange(w, f, start, end)
}

func sendAll(w Sender, chunk []byte) error {
	for len(chunk) > 0 {
		n, err := w.Write(chunk)
		if err != nil {
			return err
		}
		if n <= 0 {
			return httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "peer accepted no bytes", nil)
		}
		chunk = chunk[n:]
	}
	return nil
}
