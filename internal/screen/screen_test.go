package screen

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

var t0 = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

// split returns a 20x10 image: left half red, right half (0, 100, 200).
func split() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			if x < 10 {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 100, 200, 255})
			}
		}
	}
	return img
}

func grabber(img image.Image) Grabber {
	return func() (image.Image, time.Time, error) { return img, time.Time{}, nil }
}

func TestAreaCaptureAverages(t *testing.T) {
	tests := []struct {
		name    string
		rect    image.Rectangle
		r, g, b float64
	}{
		{"whole screen", image.Rectangle{}, 127.5, 50, 100},
		{"left half", image.Rect(0, 0, 10, 10), 255, 0, 0},
		{"right strip", image.Rect(15, 2, 20, 4), 0, 100, 200},
		{"straddling", image.Rect(5, 0, 15, 1), 127.5, 50, 100},
		{"clipped", image.Rect(18, 8, 40, 40), 0, 100, 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &AreaCapture{Grab: grabber(split()), Rect: tt.rect, Now: func() time.Time { return t0 }}
			got, err := a.Sample()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.R != tt.r || got.G != tt.g || got.B != tt.b {
				t.Errorf("got (%v, %v, %v), want (%v, %v, %v)", got.R, got.G, got.B, tt.r, tt.g, tt.b)
			}
			if !got.Timestamp.Equal(t0) {
				t.Errorf("timestamp: got %v, want %v", got.Timestamp, t0)
			}
		})
	}
}

func TestAreaCaptureOffscreen(t *testing.T) {
	a := &AreaCapture{Grab: grabber(split()), Rect: image.Rect(100, 100, 110, 110)}
	if _, err := a.Sample(); !errors.Is(err, ErrNoArea) {
		t.Errorf("expected ErrNoArea, got %v", err)
	}
}

func TestAreaCaptureGrabError(t *testing.T) {
	boom := errors.New("compositor gone")
	a := &AreaCapture{Grab: func() (image.Image, time.Time, error) { return nil, time.Time{}, boom }}
	if _, err := a.Sample(); !errors.Is(err, boom) {
		t.Errorf("expected wrapped grab error, got %v", err)
	}
}

func TestFileGrabber(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, split()); err != nil {
		t.Fatal(err)
	}
	f.Close()

	a := &AreaCapture{Grab: FileGrabber(path), Rect: image.Rect(12, 0, 20, 10)}
	got, err := a.Sample()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.R != 0 || got.G != 100 || got.B != 200 {
		t.Errorf("got %+v", got)
	}

	if _, _, err := FileGrabber(filepath.Join(t.TempDir(), "missing.png"))(); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAreaCaptureUsesGrabTime(t *testing.T) {
	taken := t0.Add(-time.Minute)
	a := &AreaCapture{
		Grab: func() (image.Image, time.Time, error) { return split(), taken, nil },
		Now:  func() time.Time { return t0 },
	}
	got, err := a.Sample()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Timestamp.Equal(taken) {
		t.Errorf("timestamp: got %v, want %v", got.Timestamp, taken)
	}
}

func writeShot(t *testing.T, modTime time.Time) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shot.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, split()); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if err := os.Chtimes(path, modTime, modTime); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileGrabberModTime(t *testing.T) {
	path := writeShot(t, t0)
	_, ts, err := FileGrabber(path)()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ts.Equal(t0) {
		t.Errorf("capture time: got %v, want %v", ts, t0)
	}
}

func TestStaleScreenshotFileIsDropped(t *testing.T) {
	now := t0.Add(2 * time.Hour)
	path := writeShot(t, t0)
	a := &AreaCapture{Grab: FileGrabber(path), Now: func() time.Time { return now }}
	e, err := correction.New(correction.DefaultConfig(false), correction.WithProvider(a))
	if err != nil {
		t.Fatalf("correction.New: %v", err)
	}

	before := e.State()
	out := e.Process(correction.Event{Raw: 500}, 1023, now)
	if out.Kind != correction.Dropped || out.Reason != correction.ReasonStaleCapture {
		t.Fatalf("got %v/%s, want DROPPED/%s", out.Kind, out.Reason, correction.ReasonStaleCapture)
	}
	if e.State() != before {
		t.Error("stale capture must not change engine state")
	}

	// the compositor writes a new screenshot
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatal(err)
	}
	if out := e.Process(correction.Event{Raw: 500}, 1023, now); out.Reason != correction.ReasonAccepted {
		t.Errorf("fresh screenshot: got %s, want %s", out.Reason, correction.ReasonAccepted)
	}
}

func TestParseRect(t *testing.T) {
	r, err := ParseRect("10, 20,30,40")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r != image.Rect(10, 20, 30, 40) {
		t.Errorf("got %v", r)
	}
	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "5,5,5,9"} {
		if _, err := ParseRect(bad); err == nil {
			t.Errorf("ParseRect(%q): expected error", bad)
		}
	}
}

func TestCachedRefreshInterval(t *testing.T) {
	now := t0
	src := &Fake{Samples: []correction.ScreenColor{
		{R: 1, Timestamp: t0},
		{R: 2, Timestamp: t0.Add(time.Second)},
	}}
	c := &Cached{Source: src, MinInterval: 500 * time.Millisecond, Now: func() time.Time { return now }}

	s, _ := c.Sample()
	if s.R != 1 {
		t.Fatalf("first sample: got %v", s.R)
	}

	now = now.Add(400 * time.Millisecond)
	s, _ = c.Sample()
	if s.R != 1 || !s.Timestamp.Equal(t0) {
		t.Errorf("cached sample: got %+v", s)
	}
	if src.CallCount() != 1 {
		t.Errorf("source calls: got %d, want 1", src.CallCount())
	}

	now = now.Add(100 * time.Millisecond)
	s, _ = c.Sample()
	if s.R != 2 {
		t.Errorf("refreshed sample: got %v", s.R)
	}
	if src.CallCount() != 2 {
		t.Errorf("source calls: got %d, want 2", src.CallCount())
	}
}

func TestCachedSourceError(t *testing.T) {
	src := &Fake{Err: errors.New("busy")}
	c := &Cached{Source: src}
	if _, err := c.Sample(); err == nil {
		t.Fatal("expected error with empty cache")
	}

	src.Err = nil
	src.Samples = []correction.ScreenColor{{G: 9, Timestamp: t0}}
	if _, err := c.Sample(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	src.Err = errors.New("busy")
	s, err := c.Sample()
	if err != nil {
		t.Fatalf("expected cached sample, got %v", err)
	}
	if s.G != 9 || !s.Timestamp.Equal(t0) {
		t.Errorf("got %+v", s)
	}
}

func TestFake(t *testing.T) {
	f := &Fake{}
	if _, err := f.Sample(); !errors.Is(err, correction.ErrUnavailable) {
		t.Errorf("empty script: got %v", err)
	}
	f.Samples = []correction.ScreenColor{{R: 1}, {R: 2}}
	for _, want := range []float64{1, 2, 2} {
		s, _ := f.Sample()
		if s.R != want {
			t.Errorf("got %v, want %v", s.R, want)
		}
	}
	if f.CallCount() != 4 {
		t.Errorf("calls: got %d, want 4", f.CallCount())
	}
}
