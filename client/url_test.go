package client

import (
	"errors"
	"testing"

	httperrors "github.com/nczempin/httpxfer/errors"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{"http://example.com", Target{"example.com", 80, "/"}},
		{"http://example.com:8080/file.txt", Target{"example.com", 8080, "/file.txt"}},
		{"HTTP://example.com/a/b?x=1", Target{"example.com", 80, "/a/b?x=1"}},
		{"http://[::1]:81/z", Target{"::1", 81, "/z"}},
	}
	for _, tt := range tests {
		got, err := ParseURL(tt.in)
		if err != nil {
			t.Errorf("ParseURL(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseURL(%q)=%+v want %+v", tt.in, got, tt.want)
		}
	}
}

func TestParseURL_Rejects(t *testing.T) {
	for _, in := range []string{"https://example.com/", "ftp://x/", "http:///nohost", "http://h:0/", "http://h:99999/", "::bad"} {
		if _, err := ParseURL(in); !errors.Is(err, httperrors.ErrInvalidArgument) {
			t.Errorf("ParseURL(%q): expected invalid argument, got %v", in, err)
		}
	}
}

func TestTarget_HostHeader(t *testing.T) {
	if got := (Target{Host: "example.com", Port: 80}).HostHeader(); got != "example.com:80" {
		t.Errorf("HostHeader=%q", got)
	}
	if got := (Target{Host: "::1", Port: 8080}).HostHeader(); got != "[::1]:8080" {
		t.Errorf("HostHeader=%q", got)
	}
}
