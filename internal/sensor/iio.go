package sensor

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/als-corrector/internal/correction"
)

// ReadyLine reports whether a new conversion is available.
type ReadyLine interface {
	Ready() (bool, error)
	Close() error
}

// IIOReader reads the raw and auxiliary channels of an IIO device.
type IIOReader struct {
	Dir        string
	RawChannel string
	AuxChannel string
	// Ready gates reads on the data-ready line; nil reads every time.
	Ready ReadyLine
}

// NewIIOReader returns a reader for the default channels of dir.
func NewIIOReader(dir, auxChannel string, ready ReadyLine) *IIOReader {
	if auxChannel == "" {
		auxChannel = DefaultAuxChannel
	}
	return &IIOReader{
		Dir:        dir,
		RawChannel: DefaultRawChannel,
		AuxChannel: auxChannel,
		Ready:      ready,
	}
}

// Read implements Reader.
func (r *IIOReader) Read() (correction.Event, bool, error) {
	if r.Ready != nil {
		ready, err := r.Ready.Ready()
		if err != nil {
			return correction.Event{}, false, fmt.Errorf("read data-ready line: %w", err)
		}
		if !ready {
			return correction.Event{}, false, nil
		}
	}

	raw, err := readChannel(filepath.Join(r.Dir, r.RawChannel))
	if err != nil {
		return correction.Event{}, false, err
	}
	aux, err := readChannel(filepath.Join(r.Dir, r.AuxChannel))
	if err != nil {
		return correction.Event{}, false, err
	}
	return correction.Event{Raw: raw, Aux: aux}, true, nil
}

// Close releases the data-ready line.
func (r *IIOReader) Close() error {
	if r.Ready == nil {
		return nil
	}
	return r.Ready.Close()
}

func readChannel(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read channel: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
