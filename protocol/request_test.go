package protocol

import (
	"errors"
	"strings"
	"testing"

	httperrors "github.com/nczempin/httpxfer/errors"
)

func TestGenerateRequest_WithRange(t *testing.T) {
	rng, err := ParseRange("bytes=0-1023")
	if err != nil {
		t.Fatal(err)
	}
	got := string(GenerateRequest("GET", "file.txt", "example.com:80", &rng))

	want := "GET /file.txt HTTP/1.1\r\n" +
		"User-Agent: " + DefaultUserAgent + "\r\n" +
		"Host: example.com:80\r\n" +
		"Accept: */*\r\n" +
		"Range: bytes=0-1023\r\n" +
		"\r\n"
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestGenerateRequest_NoRange(t *testing.T) {
	got := string(GenerateRequest("HEAD", "/a/b", "h", nil))
	if !strings.HasPrefix(got, "HEAD /a/b HTTP/1.1\r\n") {
		t.Errorf("request line: %q", got)
	}
	if strings.Contains(got, "Range") {
		t.Errorf("unexpected Range header: %q", got)
	}
	if !strings.HasSuffix(got, "Accept: */*\r\n\r\n") {
		t.Errorf("block end: %q", got)
	}
}

func TestGenerateRequest_SlashNormalized(t *testing.T) {
	for _, res := range []string{"x", "/x", "//x"} {
		got := string(GenerateRequestAs("agent", "GET", res, "h", nil))
		if !strings.HasPrefix(got, "GET /x HTTP/1.1\r\nUser-Agent: agent\r\n") {
			t.Errorf("resource %q: %q", res, got)
		}
	}
}

func TestParseRequest_GeneratedBlock(t *testing.T) {
	rng := ByteRange{Start: 10, End: 19}
	block := string(GenerateRequest("GET", "file.bin", "example.com", &rng))

	req, err := ParseRequest(block)
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if req.Line != (RequestLine{Method: "GET", Resource: "/file.bin", Version: "HTTP/1.1"}) {
		t.Errorf("line=%+v", req.Line)
	}
	if v, _ := req.Headers.Get("Host"); v != "example.com" {
		t.Errorf("Host=%q", v)
	}
	got, err := req.Range()
	if err != nil || got == nil || *got != rng {
		t.Errorf("Range=%v,%v", got, err)
	}
}

func TestParseRequest_RequestLineLast(t *testing.T) {
	req, err := ParseRequest("Host: h\r\nAccept: */*\r\nGET /x HTTP/1.1\r\n\r\n")
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	if req.Line.Method != "GET" || req.Line.Resource != "/x" {
		t.Errorf("line=%+v", req.Line)
	}
	if req.Headers.Len() != 2 {
		t.Errorf("headers=%d", req.Headers.Len())
	}
	if r, err := req.Range(); r != nil || err != nil {
		t.Errorf("Range=%v,%v", r, err)
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	cases := []string{
		"",
		"GET /x\r\nHost: h\r\n\r\n",
		"GET /x HTTP/1.1 extra\r\n\r\n",
	}
	for _, c := range cases {
		_, err := ParseRequest(c)
		if !errors.Is(err, httperrors.ErrMalformedRequest) {
			t.Errorf("ParseRequest(%q): expected MalformedRequestLine, got %v", c, err)
		}
	}

	_, err := ParseRequest("GET /x HTTP/1.1\r\nbroken header\r\n\r\n")
	if !errors.Is(err, httperrors.ErrMalformedHeader) {
		t.Errorf("expected MalformedHeaderLine, got %v", err)
	}
}
