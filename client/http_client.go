package client

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/nczempin/httpxfer/config"
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/protocol"
	"github.com/nczempin/httpxfer/sockbuf"
	"github.com/nczempin/httpxfer/transfer"
	"github.com/nczempin/httpxfer/transport"
)

// Options configures an HttpClient.
type Options struct {
	Config config.Config
	Logger zerolog.Logger
}

// DefaultOptions uses the default configuration and discards logs.
func DefaultOptions() Options {
	return Options{Config: config.Default(), Logger: zerolog.Nop()}
}

// HttpClient performs one exchange per connection over a Transport.
type HttpClient struct {
	transport transport.Transport
	cfg       config.Config
	log       zerolog.Logger
	reader    *sockbuf.Reader
}

// NewHttpClient creates a new HTTP client on the given transport
func NewHttpClient(t transport.Transport, opts Options) *HttpClient {
	return &HttpClient{
		transport: t,
		cfg:       opts.Config,
		log:       opts.Logger,
	}
}

// Connect establishes a connection to the specified host and port
func (c *HttpClient) Connect(host string, port int) error {
	if err := c.transport.SetTimeout(c.cfg.Timeout); err != nil {
		return err
	}
	if err := c.transport.Connect(host, port); err != nil {
		return errors.Wrapf(err, "connect %s:%d", host, port)
	}
	c.reader = sockbuf.NewReader(c.transport, c.cfg.BlockSize)
	return nil
}

// Disconnect closes the connection
func (c *HttpClient) Disconnect() error {
	c.reader = nil
	return c.transport.Close()
}

// ProbeResult describes a resource as reported by a HEAD exchange.
type ProbeResult struct {
	StatusCode    int
	Size          int64
	AcceptsRanges bool
	Headers       *protocol.HeaderMap
}

// Probe sends HEAD for resource and reports its size and whether the
// server honours byte ranges. The connection is spent afterwards.
func (c *HttpClient) Probe(ctx context.Context, host, resource string) (*ProbeResult, error) {
	log := c.exchangeLogger(host, resource)

	resp, err := c.exchange(ctx, log, protocol.MethodHead, host, resource, nil)
	if err != nil {
		return nil, err
	}
	if resp.Status.Code != 200 {
		return nil, unexpectedStatus(resp)
	}
	size, err := resp.ContentLength()
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMissingContentLength, "HEAD response has no length", resource)
	}

	log.Debug().Int64("size", size).Bool("ranges", resp.AcceptsRanges()).Msg("probed")
	return &ProbeResult{
		StatusCode:    resp.Status.Code,
		Size:          size,
		AcceptsRanges: resp.AcceptsRanges(),
		Headers:       resp.Headers,
	}, nil
}

// DownloadResult is the outcome of a Download. A short transfer is a
// result, not an error: Short reports it and Cause says why.
type DownloadResult struct {
	transfer.Result
	StatusCode int
	// Range is the window the server sent, nil for a whole resource.
	Range *protocol.ByteRange
	// Total is the resource size when the server reported one, else -1.
	Total int64
}

// Download requests resource, optionally restricted to rng, and writes
// the body to dest. With resume the body is appended to dest. A server
// that ignores the range and answers 200 makes dest start over.
func (c *HttpClient) Download(ctx context.Context, host, resource, dest string, rng *protocol.ByteRange, resume bool) (*DownloadResult, error) {
	log := c.exchangeLogger(host, resource)
	if rng != nil {
		if err := rng.Validate(); err != nil {
			return nil, err
		}
		log = log.With().Str("range", rng.String()).Logger()
	}

	resp, err := c.exchange(ctx, log, protocol.MethodGet, host, resource, rng)
	if err != nil {
		return nil, err
	}

	out := &DownloadResult{StatusCode: resp.Status.Code, Total: -1}
	switch resp.Status.Code {
	case 200:
		if rng != nil {
			log.Warn().Msg("server ignored range, restarting from zero")
			resume = false
		}
	case 206:
		if rng == nil {
			return nil, unexpectedStatus(resp)
		}
		got, total, err := resp.ContentRange()
		if err != nil {
			return nil, err
		}
		// A window ending early only leaves the range incomplete; one
		// starting elsewhere or running past the request would corrupt dest.
		if got == nil || got.Start != rng.Start || got.End > rng.End {
			return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedRange, "Content-Range does not match request "+rng.String(), headerValue(resp, "Content-Range"))
		}
		out.Range = got
		out.Total = total
	default:
		return nil, unexpectedStatus(resp)
	}

	length, err := resp.ContentLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMissingContentLength, "response has no length", resp.Status.Text)
	}
	if out.Range != nil && length != out.Range.Len() {
		return nil, httperrors.NewProtocolError(httperrors.ProtocolErrorMalformedRange, "Content-Length disagrees with Content-Range "+out.Range.String(), strconv.FormatInt(length, 10))
	}
	if out.Total < 0 && resp.Status.Code == 200 {
		out.Total = length
	}

	res, err := transfer.New(c.cfg, log).DownloadToFile(c.reader, dest, length, resume)
	out.Result = res
	if err != nil {
		return out, errors.Wrapf(err, "download %s", resource)
	}

	ev := log.Info()
	if res.Short() {
		ev = log.Warn().AnErr("cause", res.Cause)
	}
	ev.Int64("bytes", res.Bytes).Int64("expected", res.Expected).Msg("download finished")
	return out, nil
}

// exchange sends one request and parses the response header block. Body
// bytes that arrived with the header block stay in c.reader.
func (c *HttpClient) exchange(ctx context.Context, log zerolog.Logger, method, host, resource string, rng *protocol.ByteRange) (*protocol.HttpResponse, error) {
	if c.reader == nil {
		return nil, httperrors.NewInvalidArgumentError("not connected")
	}
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}

	req := protocol.GenerateRequestAs(c.cfg.UserAgent, method, resource, host, rng)
	if _, err := c.transport.Write(req); err != nil {
		return nil, errors.Wrapf(err, "send %s %s", method, resource)
	}
	log.Debug().Str("method", method).Msg("request sent")

	block, err := transfer.New(c.cfg, log).ReceiveHeaderBlock(c.reader)
	if err != nil {
		return nil, errors.Wrapf(err, "receive response to %s %s", method, resource)
	}
	resp, err := protocol.ParseResponse(block)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("status", resp.Status.Code).Msg("response received")
	return resp, nil
}

// applyDeadline shortens the transport timeout to the context deadline.
func (c *HttpClient) applyDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return httperrors.NewTransportError(httperrors.TransportErrorTimeout, "context done before request", err)
	}
	timeout := c.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		left := time.Until(deadline)
		if left <= 0 {
			return httperrors.NewTransportError(httperrors.TransportErrorTimeout, "context deadline passed", context.DeadlineExceeded)
		}
		if timeout == 0 || left < timeout {
			timeout = left
		}
	}
	return c.transport.SetTimeout(timeout)
}

func (c *HttpClient) exchangeLogger(host, resource string) zerolog.Logger {
	return c.log.With().
		Str("transfer_id", uuid.NewString()).
		Str("host", host).
		Str("resource", resource).
		Logger()
}

func unexpectedStatus(resp *protocol.HttpResponse) error {
	return httperrors.NewProtocolError(
		httperrors.ProtocolErrorUnexpectedStatus,
		"status "+strconv.Itoa(resp.Status.Code),
		resp.Status.Version+" "+strconv.Itoa(resp.Status.Code)+" "+resp.Status.Text,
	)
}

func headerValue(resp *protocol.HttpResponse, key string) string {
	v, _ := resp.Headers.Lookup(key)
	return v
}
