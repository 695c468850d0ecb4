package protocol

import (
	"strings"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// DefaultUserAgent is sent when the caller does not pick one.
const DefaultUserAgent = "httpxfer/1.0"

// GenerateRequest renders a request header block with the default
// User-Agent. See GenerateRequestAs.
func GenerateRequest(method, resource, host string, rng *ByteRange) []byte {
	return GenerateRequestAs(DefaultUserAgent, method, resource, host, rng)
}

// GenerateRequestAs renders "{method} /{resource} HTTP/1.1" followed by
// User-Agent, Host, Accept and, when rng is set, Range, then the blank
// line. The resource gets exactly one leading slash.
func GenerateRequestAs(userAgent, method, resource, host string, rng *ByteRange) []byte {
	h := NewHeaderMap()
	h.Set("User-Agent", userAgent)
	h.Set("Host", host)
	h.Set("Accept", "*/*")
	if rng != nil {
		h.Set("Range", rng.RangeHeader())
	}

	var sb strings.Builder
	sb.WriteString(method)
	sb.WriteString(" /")
	sb.WriteString(strings.TrimLeft(resource, "/"))
	sb.WriteString(" ")
	sb.WriteString(Version)
	sb.WriteString(CRLF)
	sb.WriteString(h.Serialize())
	sb.WriteString(CRLF)
	return []byte(sb.String())
}

// ParseRequest parses a request header block. The request line is the
// line without a ": " separator at either end of the block: first, as
// sent on the wire, or last, as some peers assemble it. It must split on
// whitespace into exactly method, resource and version. Every other line
// goes through ParseHeaders.
func ParseRequest(block string) (*HttpRequest, error) {
	lines := splitLines(block)
	if len(lines) == 0 {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedRequestLine, "empty request", block)
	}

	lineIdx := 0
	if strings.Contains(lines[0], headerSeparator) && len(lines) > 1 && !strings.Contains(lines[len(lines)-1], headerSeparator) {
		lineIdx = len(lines) - 1
	}

	fields := strings.Fields(lines[lineIdx])
	if len(fields) != 3 {
		return nil, httperrors.NewProtocolError(
			httperrors.ProtocolErrorMalformedRequestLine,
			"expected method, resource and version",
			lines[lineIdx],
		)
	}

	rest := make([]string, 0, len(lines)-1)
	rest = append(rest, lines[:lineIdx]...)
	rest = append(rest, lines[lineIdx+1:]...)

	headers, err := ParseHeaders(strings.Join(rest, CRLF))
	if err != nil {
		return nil, err
	}

	return &HttpRequest{
		Line: RequestLine{
			Method:   fields[0],
			Resource: fields[1],
			Version:  fields[2],
		},
		Headers: headers,
	}, nil
}

// Range returns the request's byte range, nil when the whole resource is
// wanted.
func (r *HttpRequest) Range() (*ByteRange, error) {
	v, ok := r.Headers.Lookup("Range")
	if !ok {
		return nil, nil
	}
	rng, err := ParseRange(v)
	if err != nil {
		return nil, err
	}
	return &rng, nil
}
