// Package sockbuf turns a raw byte transport into line-oriented and
// length-bounded reads.
//
// The transport delivers bytes in blocks of arbitrary size. Reader keeps
// whatever a block carried beyond the current read in a backlog, so a
// header terminator split across two deliveries, or body bytes arriving
// in the same block as the header block, are neither lost nor duplicated.
package sockbuf

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// DefaultBlockSize is the size of one transport read.
const DefaultBlockSize = 2048

var crlf = []byte("\r\n")

// Source is the part of a transport the reader consumes.
type Source interface {
	Read(buf []byte) (int, error)
}

// Reader owns the backlog of one connection. It is not safe for
// concurrent use.
type Reader struct {
	src     Source
	block   []byte
	backlog []byte

	// scanned is how much of the backlog is known to hold no CRLF.
	scanned int

	received int64
	consumed int64
}

// NewReader creates a reader pulling blockSize bytes per transport read.
// A non-positive blockSize selects DefaultBlockSize.
func NewReader(src Source, blockSize int) *Reader {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	return &Reader{
		src:   src,
		block: make([]byte, blockSize),
	}
}

// Fill reads one block from the transport into the backlog and returns
// the number of bytes added. A zero-length read is reported as
// ConnectionClosed; io.EOF from plain readers is mapped the same way.
func (r *Reader) Fill() (int, error) {
	n, err := r.src.Read(r.block)
	if n > 0 {
		r.backlog = append(r.backlog, r.block[:n]...)
		r.received += int64(n)
		return n, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return 0, httperrors.NewTransportError(httperrors.TransportErrorConnectionClosed, "transport returned no data", err)
	}
	return 0, err
}

// ReadLine returns the next CRLF terminated line, terminator included.
func (r *Reader) ReadLine() ([]byte, error) {
	return r.ReadLineLimit(0)
}

// ReadLineLimit is ReadLine with a bound on the line length, terminator
// included. Once more than limit bytes are seen without a terminator it
// fails with HeaderTooLarge, independent of how the transport chunked
// them. A limit of zero means unbounded.
//
// If the transport closes before a terminator arrives the error is
// MalformedLine carrying the partial line, which stays in the backlog.
func (r *Reader) ReadLineLimit(limit int) ([]byte, error) {
	for {
		// Back up one byte so a '\r' ending the previous block still pairs
		// with a '\n' starting this one.
		from := r.scanned - 1
		if from < 0 {
			from = 0
		}
		if i := bytes.Index(r.backlog[from:], crlf); i >= 0 {
			end := from + i + len(crlf)
			if limit > 0 && end > limit {
				return nil, r.tooLarge(limit)
			}
			return r.consume(end), nil
		}
		r.scanned = len(r.backlog)

		if limit > 0 && len(r.backlog) > limit {
			return nil, r.tooLarge(limit)
		}

		if _, err := r.Fill(); err != nil {
			if errors.Is(err, httperrors.ErrConnectionClosed) {
				e := httperrors.NewProtocolError(
					httperrors.ProtocolErrorMalformedLine,
					"connection closed before line terminator",
					string(r.backlog),
				)
				e.UnderlyingErr = err
				return nil, e
			}
			return nil, err
		}
	}
}

func (r *Reader) tooLarge(limit int) error {
	frag := r.backlog
	if len(frag) > 64 {
		frag = frag[:64]
	}
	return httperrors.NewProtocolError(
		httperrors.ProtocolErrorHeaderTooLarge,
		"line exceeds limit of "+strconv.Itoa(limit)+" bytes",
		string(frag),
	)
}

// ReadExact returns exactly n bytes. If the transport closes first it
// returns the bytes that did arrive together with a ShortRead error
// wrapping the closure, mirroring io.ReadFull's io.ErrUnexpectedEOF.
func (r *Reader) ReadExact(n int) ([]byte, error) {
	if n < 0 {
		return nil, httperrors.NewInvalidArgumentError("negative read length")
	}
	for len(r.backlog) < n {
		if _, err := r.Fill(); err != nil {
			if errors.Is(err, httperrors.ErrConnectionClosed) {
				got := r.consume(len(r.backlog))
				return got, httperrors.NewTransportError(
					httperrors.TransportErrorShortRead,
					"got "+strconv.Itoa(len(got))+" of "+strconv.Itoa(n)+" bytes",
					err,
				)
			}
			return nil, err
		}
	}
	return r.consume(n), nil
}

// DrainAvailable returns and clears the backlog without touching the
// transport. It returns nil when nothing is buffered.
func (r *Reader) DrainAvailable() []byte {
	return r.DrainUpTo(len(r.backlog))
}

// DrainUpTo is DrainAvailable capped at limit bytes; the rest stays buffered.
func (r *Reader) DrainUpTo(limit int) []byte {
	if limit > len(r.backlog) {
		limit = len(r.backlog)
	}
	if limit <= 0 {
		return nil
	}
	return r.consume(limit)
}

// Buffered returns the number of backlog bytes.
func (r *Reader) Buffered() int {
	return len(r.backlog)
}

// Received returns the number of bytes pulled from the transport so far.
// It always equals Consumed plus Buffered.
func (r *Reader) Received() int64 {
	return r.received
}

// Consumed returns the number of bytes handed out to callers so far.
func (r *Reader) Consumed() int64 {
	return r.consumed
}

// consume removes the first n backlog bytes and returns a copy of them.
func (r *Reader) consume(n int) []byte {
	out := make([]byte, n)
	copy(out, r.backlog[:n])

	rest := len(r.backlog) - n
	if rest == 0 {
		r.backlog = r.backlog[:0]
	} else {
		copy(r.backlog, r.backlog[n:])
		r.backlog = r.backlog[:rest]
	}

	r.scanned -= n
	if r.scanned < 0 {
		r.scanned = 0
	}
	r.consumed += int64(n)
	return out
}
