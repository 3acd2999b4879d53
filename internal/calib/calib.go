// Package calib assembles a correction.Config from layered calibration
// sources: hardcoded fallback, engineering defaults, factory calibration,
// backlight limits and device overrides, in increasing precedence.
package calib

import (
	"errors"
	"fmt"

	"github.com/sweeney/als-corrector/internal/correction"
)

// Error reports a calibration value that could not be applied.
type Error struct {
	Source string
	Key    string
	Value  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("calib: %s: %s=%q: %v", e.Source, e.Key, e.Value, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Source applies one calibration layer on top of cfg.
type Source interface {
	Name() string
	Apply(cfg *correction.Config) error
}

// Loader produces the effective configuration.
type Loader interface {
	Load() (correction.Config, error)
}

// Layered applies Sources in order, lowest precedence first, on top of the
// hardcoded fallback for HBR. A failing source does not stop the remaining
// ones; all errors are joined.
type Layered struct {
	HBR     bool
	Sources []Source
}

// Load implements Loader.
func (l Layered) Load() (correction.Config, error) {
	var cfg correction.Config
	Fallback{HBR: l.HBR}.Apply(&cfg)

	var errs []error
	for _, s := range l.Sources {
		if err := s.Apply(&cfg); err != nil {
			errs = append(errs, err)
		}
	}
	return cfg, errors.Join(errs...)
}

// Fallback resets the configuration to the compiled-in defaults.
type Fallback struct {
	HBR bool
}

func (Fallback) Name() string { return "fallback" }

// Apply implements Source.
func (f Fallback) Apply(cfg *correction.Config) error {
	*cfg = correction.DefaultConfig(f.HBR)
	return nil
}
