package protocol

import (
	"strconv"
	"strings"
	"time"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// DefaultServerName is sent in the Server header.
const DefaultServerName = "httpxfer/1.0"

// DateFormat is the RFC 1123 layout of the Date header, always in GMT.
const DateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// now is swapped in tests.
var now = time.Now

// GenerateResponse renders a response header block with the default
// Server name. See GenerateResponseAs.
func GenerateResponse(total int64, code int, text string, contentRange *ByteRange) []byte {
	return GenerateResponseAs(DefaultServerName, total, code, text, contentRange)
}

// GenerateResponseAs renders "HTTP/1.1 {code} {text}" followed by Server,
// Content-Length, Content-Range (only with a range), Accept-Ranges and
// Date, then the blank line. With a range, Content-Length is the
// inclusive byte count of the range and Content-Range reports total.
func GenerateResponseAs(server string, total int64, code int, text string, contentRange *ByteRange) []byte {
	length := total
	if contentRange != nil {
		length = contentRange.Len()
	}

	h := NewHeaderMap()
	h.Set("Server", server)
	h.Set("Content-Length", strconv.FormatInt(length, 10))
	if contentRange != nil {
		h.Set("Content-Range", contentRange.ContentRangeHeader(total))
	}
	h.Set("Accept-Ranges", bytesUnit)
	h.Set("Date", now().UTC().Format(DateFormat))

	var sb strings.Builder
	sb.WriteString(Version)
	sb.WriteString(" ")
	sb.WriteString(strconv.Itoa(code))
	sb.WriteString(" ")
	sb.WriteString(text)
	sb.WriteString(CRLF)
	sb.WriteString(h.Serialize())
	sb.WriteString(CRLF)
	return []byte(sb.String())
}

// ParseResponse parses a response header block. The first line is the
// status line: version, code and text, where the text keeps its spaces.
func ParseResponse(block string) (*HttpResponse, error) {
	lines := splitLines(block)
	if len(lines) == 0 {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedStatusLine, "empty response", block)
	}

	parts := strings.SplitN(lines[0], " ", 3)
	if len(parts) < 3 {
		return nil, httperrors.NewProtocolError(
			httperrors.ProtocolErrorMalformedStatusLine,
			"expected version, code and text",
			lines[0],
		)
	}

	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return nil, httperrors.NewProtocolError(
			httperrors.ProtocolErrorMalformedStatusLine,
			"invalid status code",
			lines[0],
		)
	}

	headers, err := ParseHeaders(strings.Join(lines[1:], CRLF))
	if err != nil {
		return nil, err
	}

	return &HttpResponse{
		Status: StatusLine{
			Version: parts[0],
			Code:    code,
			Text:    parts[2],
		},
		Headers: headers,
	}, nil
}

// ContentLength returns the Content-Length value, -1 when absent.
func (r *HttpResponse) ContentLength() (int64, error) {
	v, ok := r.Headers.Lookup("Content-Length")
	if !ok {
		return -1, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1, httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedHeaderLine, "invalid Content-Length", v)
	}
	return n, nil
}

// ContentRange returns the Content-Range window and total, nil when absent.
func (r *HttpResponse) ContentRange() (*ByteRange, int64, error) {
	v, ok := r.Headers.Lookup("Content-Range")
	if !ok {
		return nil, -1, nil
	}
	rng, total, err := ParseContentRange(v)
	if err != nil {
		return nil, -1, err
	}
	return &rng, total, nil
}

// AcceptsRanges reports whether the peer advertised byte range support.
func (r *HttpResponse) AcceptsRanges() bool {
	v, _ := r.Headers.Lookup("Accept-Ranges")
	return strings.EqualFold(strings.TrimSpace(v), bytesUnit)
}
