package protocol

import (
	"strings"

	httperrors "github.com/nczempin/httpxfer/errors"
)

const headerSeparator = ": "

// HeaderMap maps header names to values, keeping insertion order for
// serialization. Names are case-sensitive and unique: setting an existing
// name replaces its value in place.
type HeaderMap struct {
	entries []HttpHeader
	index   map[string]int
}

// NewHeaderMap creates an empty HeaderMap
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{index: make(map[string]int)}
}

// Set adds key or replaces its value, keeping the original position.
func (h *HeaderMap) Set(key, value string) {
	if i, ok := h.index[key]; ok {
		h.entries[i].Value = value
		return
	}
	h.index[key] = len(h.entries)
	h.entries = append(h.entries, HttpHeader{Key: key, Value: value})
}

// Get returns the value for key
func (h *HeaderMap) Get(key string) (string, bool) {
	i, ok := h.index[key]
	if !ok {
		return "", false
	}
	return h.entries[i].Value, true
}

// Lookup finds key ignoring ASCII case. Peers do not always use the
// canonical spelling.
func (h *HeaderMap) Lookup(key string) (string, bool) {
	if v, ok := h.Get(key); ok {
		return v, true
	}
	for _, e := range h.entries {
		if strings.EqualFold(e.Key, key) {
			return e.Value, true
		}
	}
	return "", false
}

// Del removes key
func (h *HeaderMap) Del(key string) {
	i, ok := h.index[key]
	if !ok {
		return
	}
	h.entries = append(h.entries[:i], h.entries[i+1:]...)
	delete(h.index, key)
	for j := i; j < len(h.entries); j++ {
		h.index[h.entries[j].Key] = j
	}
}

// Len returns the number of headers
func (h *HeaderMap) Len() int {
	return len(h.entries)
}

// Headers returns a copy of the entries in insertion order
func (h *HeaderMap) Headers() []HttpHeader {
	out := make([]HttpHeader, len(h.entries))
	copy(out, h.entries)
	return out
}

// Serialize renders "name: value\r\n" per entry in insertion order. The
// blank line ending a header block is not included.
func (h *HeaderMap) Serialize() string {
	var sb strings.Builder
	for _, e := range h.entries {
		sb.WriteString(e.Key)
		sb.WriteString(headerSeparator)
		sb.WriteString(e.Value)
		sb.WriteString(CRLF)
	}
	return sb.String()
}

// ParseHeaders parses CRLF separated "name: value" lines. Trailing CRLFs,
// including the blank line of the block terminator, are ignored. A line
// without the ": " separator fails with MalformedHeaderLine naming it.
func ParseHeaders(raw string) (*HeaderMap, error) {
	h := NewHeaderMap()
	raw = trimTerminator(raw)
	if raw == "" {
		return h, nil
	}
	for _, line := range strings.Split(raw, CRLF) {
		if err := h.parseLine(line); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *HeaderMap) parseLine(line string) error {
	key, value, ok := strings.Cut(line, headerSeparator)
	if !ok || key == "" {
		return httperrors.NewProtocolError(
			httperrors.ProtocolErrorMalformedHeaderLine,
			"expected \"name: value\"",
			line,
		)
	}
	h.Set(key, value)
	return nil
}

func trimTerminator(raw string) string {
	for strings.HasSuffix(raw, CRLF) {
		raw = strings.TrimSuffix(raw, CRLF)
	}
	return raw
}

func splitLines(raw string) []string {
	raw = trimTerminator(raw)
	if raw == "" {
		return nil
	}
	return strings.Split(raw, CRLF)
}
