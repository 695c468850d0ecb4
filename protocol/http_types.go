package protocol

// CRLF terminates every line of a header block.
const CRLF = "\r\n"

// Version is the only protocol version generated.
const Version = "HTTP/1.1"

// Method names understood by the transfer stack
const (
	MethodGet  = "GET"
	MethodHead = "HEAD"
)

// HttpHeader represents an HTTP header key-value pair
type HttpHeader struct {
	Key   string
	Value string
}

// RequestLine is the first line of a request: "GET /file HTTP/1.1"
type RequestLine struct {
	Method   string
	Resource string
	Version  string
}

// StatusLine is the first line of a response: "HTTP/1.1 206 Partial Content"
type StatusLine struct {
	Version string
	Code    int
	Text    string
}

// HttpRequest is a parsed request header block
type HttpRequest struct {
	Line    RequestLine
	Headers *HeaderMap
}

// HttpResponse is a parsed response header block
type HttpResponse struct {
	Status  StatusLine
	Headers *HeaderMap
}
