package protocol

import (
	"errors"
	"strings"
	"testing"

	httperrors "github.com/nczempin/httpxfer/errors"
)

func TestParseHeaders_RoundTrip(t *testing.T) {
	blocks := []string{
		"",
		"Content-Length: 1024\r\n",
		"User-Agent: x\r\nHost: example.com:80\r\nAccept: */*\r\nRange: bytes=0-1023\r\n",
		"X-Empty: \r\nX-Colon: a: b\r\n",
	}
	for _, raw := range blocks {
		h, err := ParseHeaders(raw)
		if err != nil {
			t.Fatalf("ParseHeaders(%q) failed: %v", raw, err)
		}
		if got := h.Serialize(); got != raw {
			t.Errorf("round trip: got %q want %q", got, raw)
		}
	}
}

func TestParseHeaders_TrailingBlankLine(t *testing.T) {
	h, err := ParseHeaders("A: 1\r\nB: 2\r\n\r\n")
	if err != nil {
		t.Fatalf("ParseHeaders failed: %v", err)
	}
	if h.Len() != 2 {
		t.Fatalf("Len=%d", h.Len())
	}
	if v, _ := h.Get("B"); v != "2" {
		t.Errorf("B=%q", v)
	}
}

func TestParseHeaders_MalformedLine(t *testing.T) {
	_, err := ParseHeaders("Good: yes\r\nno separator here\r\n")
	if !errors.Is(err, httperrors.ErrMalformedHeader) {
		t.Fatalf("expected MalformedHeaderLine, got %v", err)
	}
	var httpErr *httperrors.HttpError
	if !errors.As(err, &httpErr) || httpErr.Fragment != "no separator here" {
		t.Errorf("fragment should name the offending line: %v", err)
	}
}

func TestParseHeaders_ColonWithoutSpace(t *testing.T) {
	if _, err := ParseHeaders("Host:example.com"); err == nil {
		t.Fatal("expected error for missing \": \" separator")
	}
}

func TestHeaderMap_OrderAndReplace(t *testing.T) {
	h := NewHeaderMap()
	h.Set("B", "1")
	h.Set("A", "2")
	h.Set("B", "3")

	if got := h.Serialize(); got != "B: 3\r\nA: 2\r\n" {
		t.Errorf("Serialize=%q", got)
	}

	h.Del("B")
	h.Set("C", "4")
	if got := h.Serialize(); got != "A: 2\r\nC: 4\r\n" {
		t.Errorf("after Del=%q", got)
	}
	if _, ok := h.Get("B"); ok {
		t.Error("B should be gone")
	}
	if v, ok := h.Lookup("c"); !ok || v != "4" {
		t.Errorf("Lookup(c)=%q,%v", v, ok)
	}
}

func TestHeaderMap_HeadersIsCopy(t *testing.T) {
	h := NewHeaderMap()
	h.Set("A", "1")
	hs := h.Headers()
	hs[0].Value = "changed"
	if v, _ := h.Get("A"); v != "1" {
		t.Errorf("Headers leaked internal state: %q", v)
	}
	if !strings.HasPrefix(h.Serialize(), "A: 1") {
		t.Errorf("Serialize=%q", h.Serialize())
	}
}
