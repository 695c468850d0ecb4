// Package fetch downloads a resource over several parallel ranged
// connections and resumes interrupted downloads from a manifest.
package fetch

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nczempin/httpxfer/client"
	"github.com/nczempin/httpxfer/config"
	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/transport"
)

// ManifestSuffix is appended to the destination path to name the manifest.
const ManifestSuffix = ".xfer.json"

// Dialer creates a fresh, unconnected transport for one segment.
type Dialer func() (transport.Transport, error)

// TcpDialer dials plain TCP sockets.
func TcpDialer() (transport.Transport, error) {
	return transport.NewTcpTransport(), nil
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithDialer replaces the transport used for every connection.
func WithDialer(d Dialer) Option {
	return func(f *Fetcher) { f.dial = d }
}

// Fetcher runs segmented downloads. Each segment gets its own transport,
// reader and part file; segments share nothing while they run.
type Fetcher struct {
	cfg  config.Config
	log  zerolog.Logger
	dial Dialer
}

// New creates a fetcher. Unless WithDialer says otherwise, connections
// use the transport named by cfg.Transport.
func New(cfg config.Config, log zerolog.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{cfg: cfg, log: log}
	for _, opt := range opts {
		opt(f)
	}
	if f.dial == nil {
		f.dial = DialerFor(cfg)
	}
	return f
}

// Result is the outcome of Fetch. An incomplete result leaves the part
// files and manifest behind; calling Fetch again resumes it.
type Result struct {
	ID       string
	Size     int64
	Bytes    int64
	Complete bool
	Segments []Segment
}

// ManifestPath returns where Fetch keeps progress for dest.
func ManifestPath(dest string) string {
	return dest + ManifestSuffix
}

// PartPath returns the part file of segment i for dest.
func PartPath(dest string, i int) string {
	return dest + ".part" + strconv.Itoa(i)
}

// Fetch downloads rawURL into dest. Segments cut short by a timeout or
// a closed connection do not make Fetch fail: the result is incomplete
// and the progress is saved for the next call.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) (*Result, error) {
	if err := f.cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := client.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}

	m, err := f.loadOrProbe(ctx, rawURL, target, dest)
	if err != nil {
		return nil, err
	}
	log := f.log.With().Str("transfer_id", m.ID).Str("host", target.Host).Str("resource", target.Resource).Logger()
	log.Info().Int64("size", m.Size).Int("segments", len(m.Segments)).Int64("done", m.Done()).Msg("fetch started")

	// No shared context: a failed segment must not cut its siblings
	// short, their progress is worth saving.
	var g errgroup.Group
	for i := range m.Segments {
		seg := &m.Segments[i]
		if seg.Complete() {
			continue
		}
		g.Go(func() error {
			err := f.fetchSegment(ctx, log, target, m.Ranges, dest, seg)
			if err != nil && !httperrors.IsResumable(err) {
				return err
			}
			return nil
		})
	}
	segErr := g.Wait()

	if err := m.Save(ManifestPath(dest)); err != nil {
		return nil, err
	}

	res := &Result{ID: m.ID, Size: m.Size, Bytes: m.Done(), Segments: m.Segments}
	if segErr != nil {
		return res, segErr
	}
	if !m.Complete() {
		log.Warn().Int64("bytes", res.Bytes).Int64("expected", m.Size).Msg("fetch incomplete, progress saved")
		return res, nil
	}

	if err := assemble(log, dest, m); err != nil {
		return res, err
	}
	res.Complete = true
	log.Info().Int64("bytes", res.Bytes).Msg("fetch complete")
	return res, nil
}

// loadOrProbe resumes from an existing manifest for the same URL, or
// probes the resource and starts a new one.
func (f *Fetcher) loadOrProbe(ctx context.Context, rawURL string, target client.Target, dest string) (*Manifest, error) {
	m, err := LoadManifest(ManifestPath(dest))
	switch {
	case err == nil && m.URL == rawURL:
		syncParts(f.log, dest, m)
		return m, nil
	case err == nil:
		f.log.Warn().Str("manifest_url", m.URL).Msg("manifest belongs to another URL, starting over")
		removeParts(f.log, dest, len(m.Segments))
	case !errors.Is(err, os.ErrNotExist):
		f.log.Warn().Err(err).Msg("unreadable manifest, starting over")
	}

	c, closeConn, err := f.connect(target)
	if err != nil {
		return nil, err
	}
	defer closeConn()

	probe, err := c.Probe(ctx, target.HostHeader(), target.Resource)
	if err != nil {
		return nil, errors.Wrapf(err, "probe %s", rawURL)
	}

	m = NewManifest(rawURL, probe.Size, probe.AcceptsRanges, f.cfg.Segments)
	removeParts(f.log, dest, len(m.Segments))
	if err := m.Save(ManifestPath(dest)); err != nil {
		return nil, err
	}
	return m, nil
}

// fetchSegment downloads what is missing from one segment into its part
// file and records the progress in seg.
func (f *Fetcher) fetchSegment(ctx context.Context, log zerolog.Logger, target client.Target, ranges bool, dest string, seg *Segment) error {
	part := PartPath(dest, seg.Index)
	log = log.With().Int("segment", seg.Index).Logger()

	rng := seg.Remaining()
	resume := true
	if !ranges {
		// Without range support the whole resource comes again.
		rng = nil
		resume = false
		seg.Done = 0
	}

	c, closeConn, err := f.connect(target)
	if err != nil {
		log.Warn().Err(err).Msg("segment connect failed")
		return err
	}
	defer closeConn()

	res, err := c.Download(ctx, target.HostHeader(), target.Resource, part, rng, resume)
	if err != nil {
		log.Warn().Err(err).Msg("segment failed")
		return err
	}
	if rng != nil && res.StatusCode != 206 {
		// The part now holds the resource from byte zero.
		removeFile(log, part)
		seg.Done = 0
		return httperrors.NewProtocolError(httperrors.ProtocolErrorUnexpectedStatus, "segment "+strconv.Itoa(seg.Index)+" got no partial content", strconv.Itoa(res.StatusCode))
	}

	seg.Done += res.Bytes
	if res.Short() {
		log.Warn().AnErr("cause", res.Cause).Int64("bytes", seg.Done).Int64("expected", seg.Len()).Msg("segment short")
		return res.Cause
	}
	return nil
}

// connect dials a new transport and returns a connected client together
// with the function that tears both down.
func (f *Fetcher) connect(target client.Target) (*client.HttpClient, func(), error) {
	t, err := f.dial()
	if err != nil {
		return nil, nil, err
	}
	c := client.NewHttpClient(t, client.Options{Config: f.cfg, Logger: f.log})
	release := func() {
		c.Disconnect()
		if d, ok := t.(interface{ Destroy() }); ok {
			d.Destroy()
		}
	}
	if err := c.Connect(target.Host, target.Port); err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

// syncParts trusts the part files over the manifest: a part may have
// grown after the last save, and one larger than its segment is redone.
func syncParts(log zerolog.Logger, dest string, m *Manifest) {
	for i := range m.Segments {
		seg := &m.Segments[i]
		fi, err := os.Stat(PartPath(dest, seg.Index))
		switch {
		case err != nil:
			seg.Done = 0
		case fi.Size() > seg.Len():
			log.Warn().Int("segment", seg.Index).Int64("size", fi.Size()).Msg("part larger than its segment, redoing it")
			removeFile(log, PartPath(dest, seg.Index))
			seg.Done = 0
		default:
			seg.Done = fi.Size()
		}
	}
}

// assemble concatenates the part files into dest and removes the parts
// and the manifest.
func assemble(log zerolog.Logger, dest string, m *Manifest) (err error) {
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return httperrors.NewIOError("create "+dest, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = httperrors.NewIOError("close "+dest, cerr)
		}
	}()

	for _, seg := range m.Segments {
		if err := appendPart(out, PartPath(dest, seg.Index), seg.Len()); err != nil {
			return err
		}
	}
	if err := out.Sync(); err != nil {
		return httperrors.NewIOError("sync "+dest, err)
	}

	removeParts(log, dest, len(m.Segments))
	removeFile(log, ManifestPath(dest))
	return nil
}

func appendPart(out io.Writer, part string, want int64) error {
	in, err := os.Open(part)
	if err != nil {
		if want == 0 && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return httperrors.NewIOError("open "+part, err)
	}
	defer in.Close()

	n, err := io.Copy(out, in)
	if err != nil {
		return httperrors.NewIOError("copy "+part, err)
	}
	if n != want {
		return httperrors.NewIOError("part "+part+" has "+strconv.FormatInt(n, 10)+" bytes, want "+strconv.FormatInt(want, 10), nil)
	}
	return nil
}

func removeParts(log zerolog.Logger, dest string, n int) {
	for i := 0; i < n; i++ {
		removeFile(log, PartPath(dest, i))
	}
}

// removeFile deletes path. A file that is already gone is fine; any other
// failure is logged since a stale part would be picked up on resume.
func removeFile(log zerolog.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug().Err(err).Str("path", path).Msg("remove failed")
	}
}
