package protocol

import (
	"strconv"
	"strings"

	httperrors "github.com/nczempin/httpxfer/errors"
)

const bytesUnit = "bytes"

// ByteRange is an inclusive window [Start, End] of a resource's bytes.
type ByteRange struct {
	Start int64
	End   int64
}

// Len returns the number of bytes covered, End-Start+1.
func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// Validate checks 0 <= Start <= End.
func (r ByteRange) Validate() error {
	if r.Start < 0 || r.End < r.Start {
		return httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedRange, "need 0 <= start <= end", r.String())
	}
	return nil
}

// String formats the range as "start-end"
func (r ByteRange) String() string {
	return strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}

// RangeHeader formats the value of a Range request header
func (r ByteRange) RangeHeader() string {
	return bytesUnit + "=" + r.String()
}

// ContentRangeHeader formats the value of a Content-Range response header
func (r ByteRange) ContentRangeHeader(total int64) string {
	return bytesUnit + " " + r.String() + "/" + strconv.FormatInt(total, 10)
}

// ParseRange parses a closed "bytes=start-end" Range value.
func ParseRange(value string) (ByteRange, error) {
	spec, err := rangeSpec(value)
	if err != nil {
		return ByteRange{}, err
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, malformedRange(value, "missing '-'")
	}
	start, ok1 := parseNumber(first)
	end, ok2 := parseNumber(last)
	if !ok1 || !ok2 {
		return ByteRange{}, malformedRange(value, "expected start-end")
	}
	r := ByteRange{Start: start, End: end}
	if r.End < r.Start {
		return ByteRange{}, malformedRange(value, "end before start")
	}
	return r, nil
}

// ParseRangeFor parses a Range value against a resource of the given size,
// resolving the open "start-" and suffix "-n" forms and clamping End to
// the last byte. A start at or beyond size is unsatisfiable.
func ParseRangeFor(value string, size int64) (ByteRange, error) {
	spec, err := rangeSpec(value)
	if err != nil {
		return ByteRange{}, err
	}
	if size <= 0 {
		return ByteRange{}, malformedRange(value, "empty resource")
	}
	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, malformedRange(value, "missing '-'")
	}

	var r ByteRange
	switch {
	case first == "":
		n, ok := parseNumber(last)
		if !ok || n == 0 {
			return ByteRange{}, malformedRange(value, "bad suffix length")
		}
		if n > size {
			n = size
		}
		r = ByteRange{Start: size - n, End: size - 1}
	case last == "":
		start, ok := parseNumber(first)
		if !ok {
			return ByteRange{}, malformedRange(value, "bad start")
		}
		r = ByteRange{Start: start, End: size - 1}
	default:
		start, ok1 := parseNumber(first)
		end, ok2 := parseNumber(last)
		if !ok1 || !ok2 || end < start {
			return ByteRange{}, malformedRange(value, "expected start-end")
		}
		if end >= size {
			end = size - 1
		}
		r = ByteRange{Start: start, End: end}
	}

	if r.Start >= size || r.End < r.Start {
		return ByteRange{}, malformedRange(value, "unsatisfiable for size "+strconv.FormatInt(size, 10))
	}
	return r, nil
}

// ParseContentRange parses "bytes start-end/total". A "*" total is
// reported as -1.
func ParseContentRange(value string) (ByteRange, int64, error) {
	unit, rest, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || unit != bytesUnit {
		return ByteRange{}, 0, malformedRange(value, "expected bytes unit")
	}
	spec, totalStr, ok := strings.Cut(rest, "/")
	if !ok {
		return ByteRange{}, 0, malformedRange(value, "missing '/'")
	}
	r, err := ParseRange(bytesUnit + "=" + spec)
	if err != nil {
		return ByteRange{}, 0, malformedRange(value, "bad range")
	}
	total := int64(-1)
	if totalStr != "*" {
		n, ok := parseNumber(totalStr)
		if !ok || n <= r.End {
			return ByteRange{}, 0, malformedRange(value, "bad total")
		}
		total = n
	}
	return r, total, nil
}

func rangeSpec(value string) (string, error) {
	unit, spec, ok := strings.Cut(strings.TrimSpace(value), "=")
	if !ok || unit != bytesUnit {
		return "", malformedRange(value, "expected bytes unit")
	}
	if strings.Contains(spec, ",") {
		return "", malformedRange(value, "multiple ranges not supported")
	}
	return strings.TrimSpace(spec), nil
}

func parseNumber(s string) (int64, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func malformedRange(value, why string) error {
	return httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedRange, why, value)
}
