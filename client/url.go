package client

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	httperrors "github.com/nczempin/httpxfer/errors"
)

// DefaultPort is used when a URL names no port.
const DefaultPort = 80

// Target is where a URL points: the host and port to dial and the
// resource to request.
type Target struct {
	Host     string
	Port     int
	Resource string
}

// HostHeader formats the Host header value, "host:port".
func (t Target) HostHeader() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// ParseURL splits an http URL into a Target. The resource defaults to "/"
// and keeps the query string.
func ParseURL(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Target{}, httperrors.NewInvalidArgumentError("invalid URL " + strconv.Quote(raw) + ": " + err.Error())
	}
	if !strings.EqualFold(u.Scheme, "http") {
		return Target{}, httperrors.NewInvalidArgumentError("unsupported scheme " + strconv.Quote(u.Scheme))
	}
	host := u.Hostname()
	if host == "" {
		return Target{}, httperrors.NewInvalidArgumentError("URL has no host: " + strconv.Quote(raw))
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, httperrors.NewInvalidArgumentError("invalid port " + strconv.Quote(p))
		}
	}

	resource := u.EscapedPath()
	if resource == "" {
		resource = "/"
	}
	if u.RawQuery != "" {
		resource += "?" + u.RawQuery
	}
	return Target{Host: host, Port: port, Resource: resource}, nil
}
