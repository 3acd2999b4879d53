package sensor

import (
	"errors"

	"github.com/sweeney/als-corrector/internal/correction"
)

// FakeReader is a test double that returns scripted events.
type FakeReader struct {
	// Samples contains scripted readings. Each call to Read() consumes the
	// next sample; the last one repeats.
	Samples []Sample

	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample is a single scripted reading.
type Sample struct {
	Raw, Aux float64
	// NotReady simulates a read with no new conversion.
	NotReady bool
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeReader) Read() (correction.Event, bool, error) {
	if f.ReadError != nil {
		return correction.Event{}, false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return correction.Event{}, false, errors.New("no samples configured")
	}

	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	if s.NotReady {
		return correction.Event{}, false, nil
	}
	return correction.Event{Raw: s.Raw, Aux: s.Aux}, true, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// FakeReadyLine scripts the data-ready line.
type FakeReadyLine struct {
	Values []bool
	Err    error
	Closed bool
	index  int
}

// Ready returns the next scripted value; the last one repeats.
func (l *FakeReadyLine) Ready() (bool, error) {
	if l.Err != nil {
		return false, l.Err
	}
	if len(l.Values) == 0 {
		return true, nil
	}
	v := l.Values[l.index]
	if l.index < len(l.Values)-1 {
		l.index++
	}
	return v, nil
}

// Close marks the line as closed.
func (l *FakeReadyLine) Close() error {
	l.Closed = true
	return nil
}
