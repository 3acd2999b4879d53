// Package screen provides the screen color samples the correction engine
// needs: the average color of the display area above the light sensor.
package screen

import (
	"errors"
	"fmt"
	"image"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/sweeney/als-corrector/internal/correction"
)

// ErrNoArea is returned when the capture area does not overlap the screenshot.
var ErrNoArea = errors.New("screen: capture area outside screenshot")

// Grabber returns a screenshot of the whole display and the time it was
// taken. A zero time means the screenshot is live.
type Grabber func() (image.Image, time.Time, error)

// AreaCapture averages the color of Rect in each screenshot returned by
// Grab. An empty Rect averages the whole screenshot. Samples carry the
// grabber's capture time, or Now for live screenshots.
type AreaCapture struct {
	Grab Grabber
	Rect image.Rectangle
	Now  func() time.Time
}

// Sample implements correction.ScreenColorProvider.
func (a *AreaCapture) Sample() (correction.ScreenColor, error) {
	img, ts, err := a.Grab()
	if err != nil {
		return correction.ScreenColor{}, fmt.Errorf("grab screenshot: %w", err)
	}
	if ts.IsZero() {
		ts = time.Now()
		if a.Now != nil {
			ts = a.Now()
		}
	}

	rect := img.Bounds()
	if !a.Rect.Empty() {
		rect = a.Rect.Intersect(rect)
	}
	if rect.Empty() {
		return correction.ScreenColor{}, ErrNoArea
	}

	r, g, b := average(imaging.Crop(img, rect))
	return correction.ScreenColor{R: r, G: g, B: b, Timestamp: ts}, nil
}

// average returns the mean 8-bit channel values of img.
func average(img *image.NRGBA) (r, g, b float64) {
	bounds := img.Bounds()
	var sr, sg, sb uint64
	for y := 0; y < bounds.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+bounds.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			sr += uint64(row[x])
			sg += uint64(row[x+1])
			sb += uint64(row[x+2])
		}
	}
	n := float64(bounds.Dx() * bounds.Dy())
	return float64(sr) / n, float64(sg) / n, float64(sb) / n
}

// FileGrabber decodes the screenshot the compositor writes to path. The
// capture time is the file's modification time.
func FileGrabber(path string) Grabber {
	return func() (image.Image, time.Time, error) {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, time.Time{}, err
		}
		img, err := imaging.Open(path)
		if err != nil {
			return nil, time.Time{}, err
		}
		return img, fi.ModTime(), nil
	}
}

// ParseRect parses "x0,y0,x1,y1".
func ParseRect(s string) (image.Rectangle, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("rect %q: want x0,y0,x1,y1", s)
	}
	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("rect %q: %w", s, err)
		}
		v[i] = n
	}
	r := image.Rect(v[0], v[1], v[2], v[3])
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("rect %q is empty", s)
	}
	return r, nil
}

// Cached refreshes Source at most once per MinInterval and otherwise
// returns the previous sample with its original timestamp, leaving the
// engine to reject it once it is too old.
type Cached struct {
	Source      correction.ScreenColorProvider
	MinInterval time.Duration
	Now         func() time.Time

	mu      sync.Mutex
	last    correction.ScreenColor
	fetched time.Time
	have    bool
}

// Sample implements correction.ScreenColorProvider.
func (c *Cached) Sample() (correction.ScreenColor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	if c.have && now.Sub(c.fetched) < c.MinInterval {
		return c.last, nil
	}
	s, err := c.Source.Sample()
	if err != nil {
		if c.have {
			return c.last, nil
		}
		return correction.ScreenColor{}, err
	}
	c.last, c.fetched, c.have = s, now, true
	return s, nil
}

// Fake returns scripted samples. The last sample repeats once the
// script is exhausted.
type Fake struct {
	mu      sync.Mutex
	Samples []correction.ScreenColor
	Err     error
	Calls   int
}

// Sample implements correction.ScreenColorProvider.
func (f *Fake) Sample() (correction.ScreenColor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return correction.ScreenColor{}, f.Err
	}
	if len(f.Samples) == 0 {
		return correction.ScreenColor{}, correction.ErrUnavailable
	}
	s := f.Samples[0]
	if len(f.Samples) > 1 {
		f.Samples = f.Samples[1:]
	}
	return s, nil
}

// CallCount returns the number of Sample calls.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls
}
