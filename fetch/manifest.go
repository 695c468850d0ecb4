package fetch

import (
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	httperrors "github.com/nczempin/httpxfer/errors"
	"github.com/nczempin/httpxfer/protocol"
)

// Segment is one inclusive slice of the resource, downloaded into its own
// part file. Done counts the bytes already in the part file.
type Segment struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Done  int64 `json:"done"`
}

// Len returns the number of bytes the segment covers.
func (s Segment) Len() int64 {
	return s.End - s.Start + 1
}

// Complete reports whether the part file holds the whole segment.
func (s Segment) Complete() bool {
	return s.Done >= s.Len()
}

// Remaining returns the range still missing, nil when complete.
func (s Segment) Remaining() *protocol.ByteRange {
	if s.Complete() {
		return nil
	}
	return &protocol.ByteRange{Start: s.Start + s.Done, End: s.End}
}

// Manifest records the progress of one fetch so an interrupted run can
// pick up where it stopped.
type Manifest struct {
	ID       string    `json:"id"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	Ranges   bool      `json:"ranges"`
	Segments []Segment `json:"segments"`
	Updated  time.Time `json:"updated"`
}

// NewManifest splits size bytes into n segments of near equal length.
// The last segment takes the remainder. Without range support, or for a
// resource too small to split, there is a single segment.
func NewManifest(url string, size int64, ranges bool, n int) *Manifest {
	if !ranges || n < 1 {
		n = 1
	}
	if int64(n) > size {
		n = int(size)
	}
	if n < 1 {
		n = 1
	}

	m := &Manifest{ID: uuid.NewString(), URL: url, Size: size, Ranges: ranges}
	base := size / int64(n)
	for i := 0; i < n; i++ {
		seg := Segment{Index: i, Start: int64(i) * base, End: int64(i+1)*base - 1}
		if i == n-1 {
			seg.End = size - 1
		}
		m.Segments = append(m.Segments, seg)
	}
	return m
}

// Complete reports whether every segment is complete.
func (m *Manifest) Complete() bool {
	for _, s := range m.Segments {
		if !s.Complete() {
			return false
		}
	}
	return true
}

// Done returns the bytes downloaded across all segments.
func (m *Manifest) Done() int64 {
	var n int64
	for _, s := range m.Segments {
		n += s.Done
	}
	return n
}

// LoadManifest reads a manifest written by Save. A missing file is
// reported with an error satisfying errors.Is(err, os.ErrNotExist).
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := sonic.Unmarshal(data, &m); err != nil {
		return nil, httperrors.NewIOError("decode manifest "+path, err)
	}
	if m.Size < 0 || len(m.Segments) == 0 {
		return nil, httperrors.NewIOError("manifest "+path+" has no segments", nil)
	}
	for i, s := range m.Segments {
		if s.Index != i || s.Start < 0 || s.End < s.Start-1 || s.Done < 0 {
			return nil, httperrors.NewIOError("manifest "+path+" has a bad segment "+strconv.Itoa(i), nil)
		}
	}
	return &m, nil
}

// Save writes the manifest atomically by renaming a temporary file.
func (m *Manifest) Save(path string) error {
	m.Updated = time.Now().UTC()
	data, err := sonic.Marshal(m)
	if err != nil {
		return httperrors.NewIOError("encode manifest", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return httperrors.NewIOError("write manifest "+tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return httperrors.NewIOError("rename manifest "+tmp, err)
	}
	return nil
}
