package fetch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestNewManifest_CoversResource(t *testing.T) {
	tests := []struct {
		size   int64
		ranges bool
		n      int
		want   int
	}{
		{100, true, 4, 4},
		{10, true, 3, 3},
		{2, true, 4, 2},
		{100, false, 4, 1},
		{0, true, 4, 1},
		{7, true, 0, 1},
	}
	for _, tt := range tests {
		m := NewManifest("http://h/x", tt.size, tt.ranges, tt.n)
		if len(m.Segments) != tt.want {
			t.Errorf("size %d n %d: %d segments, want %d", tt.size, tt.n, len(m.Segments), tt.want)
			continue
		}
		var next, total int64
		for i, s := range m.Segments {
			if s.Index != i || s.Start != next {
				t.Errorf("size %d: segment %d = %+v, want start %d", tt.size, i, s, next)
			}
			next = s.End + 1
			total += s.Len()
		}
		if total != tt.size {
			t.Errorf("size %d: segments cover %d bytes", tt.size, total)
		}
		if m.ID == "" {
			t.Error("manifest has no id")
		}
	}
}

func TestSegment_Remaining(t *testing.T) {
	s := Segment{Start: 10, End: 19, Done: 4}
	r := s.Remaining()
	if r == nil || r.Start != 14 || r.End != 19 {
		t.Fatalf("Remaining=%+v", r)
	}
	s.Done = 10
	if s.Remaining() != nil || !s.Complete() {
		t.Errorf("segment should be complete: %+v", s)
	}
}

func TestManifest_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x"+ManifestSuffix)
	m := NewManifest("http://h/x", 50, true, 2)
	m.Segments[1].Done = 7

	if err := m.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest failed: %v", err)
	}
	if got.ID != m.ID || got.URL != m.URL || got.Size != 50 || !got.Ranges {
		t.Errorf("loaded %+v", got)
	}
	if len(got.Segments) != 2 || got.Segments[1].Done != 7 || got.Done() != 7 {
		t.Errorf("segments %+v", got.Segments)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Error("temporary manifest left behind")
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadManifest(filepath.Join(dir, "none")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}

	bad := filepath.Join(dir, "bad")
	os.WriteFile(bad, []byte("{not json"), 0o644)
	if _, err := LoadManifest(bad); err == nil {
		t.Error("expected decode error")
	}

	empty := filepath.Join(dir, "empty")
	os.WriteFile(empty, []byte(`{"id":"x","size":3,"segments":[]}`), 0o644)
	if _, err := LoadManifest(empty); err == nil {
		t.Error("expected error for a manifest without segments")
	}
}
