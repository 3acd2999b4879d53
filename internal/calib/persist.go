package calib

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/als-corrector/internal/backlight"
	"github.com/sweeney/als-corrector/internal/correction"
)

// DefaultPersistDir holds the factory calibration of the sensor.
const DefaultPersistDir = "/mnt/vendor/persist/engineermode"

// panelLifetimeHours is the on-time after which the panel is assumed dark.
const panelLifetimeHours = 87600.0

// maxBias is the largest sensor bias accepted from the factory data.
const maxBias = 4.0

var maxLuxFiles = [4]string{"red_max_lux", "green_max_lux", "blue_max_lux", "white_max_lux"}

// PersistDir applies factory calibration files, one value per file.
// Missing files are skipped.
type PersistDir struct {
	Dir string
}

func (p PersistDir) Name() string { return "persist " + p.Dir }

// Apply implements Source.
func (p PersistDir) Apply(cfg *correction.Config) error {
	var errs []error
	read := func(name string) (float64, bool) {
		v, ok, err := readFirstFloat(filepath.Join(p.Dir, name))
		if err != nil {
			errs = append(errs, &Error{Source: p.Name(), Key: name, Err: err})
		}
		return v, ok
	}

	for i, name := range maxLuxFiles {
		if v, ok := read(name); ok && v != 0 {
			cfg.RGBWMaxLux[i] = v
		}
	}
	if h, ok := read("screenontimebyhours"); ok {
		cfg.ScreenAging = 1 - h/panelLifetimeHours
	}
	if v, ok := read("row_coe"); ok && v != 0 {
		cfg.InverseGain[0] = v / 1000
		cfg.AGCThreshold = 0
	}
	if v, ok := read("cali_coe"); ok && v > 0 {
		cfg.CalibGain = v / 1000
	}
	if v, ok := read("als_bias"); ok {
		if v <= maxBias {
			cfg.Bias = v
		} else {
			cfg.Bias = 0
		}
	}
	return errors.Join(errs...)
}

// readFirstFloat parses the first whitespace-separated token of a file.
func readFirstFloat(path string) (float64, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, false, fmt.Errorf("empty file")
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

// BacklightMax applies max_brightness from a backlight class directory
// when it reports a positive value.
type BacklightMax struct {
	Dir string
}

func (b BacklightMax) Name() string { return "backlight " + b.Dir }

// Apply implements Source.
func (b BacklightMax) Apply(cfg *correction.Config) error {
	v, err := backlight.ReadMax(b.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &Error{Source: b.Name(), Key: "max_brightness", Err: err}
	}
	if v > 0 {
		cfg.MaxBrightness = v
	}
	return nil
}
