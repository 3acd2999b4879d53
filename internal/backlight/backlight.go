// Package backlight reads the display brightness from the Linux backlight
// class. The fake implementation allows testing without a panel.
package backlight

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultDir is the backlight device of the internal panel.
const DefaultDir = "/sys/class/backlight/panel0-backlight"

// Reader reads the current display brightness.
type Reader interface {
	// Brightness returns the current level in the units of max_brightness.
	Brightness() (float64, error)
}

// Sysfs reads brightness from a backlight class directory.
type Sysfs struct {
	Dir string
}

// NewSysfs returns a reader for dir.
func NewSysfs(dir string) *Sysfs {
	return &Sysfs{Dir: dir}
}

// Brightness reads <dir>/brightness.
func (s *Sysfs) Brightness() (float64, error) {
	return readValue(filepath.Join(s.Dir, "brightness"))
}

// ReadMax reads <dir>/max_brightness.
func ReadMax(dir string) (float64, error) {
	return readValue(filepath.Join(dir, "max_brightness"))
}

func readValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}

// Fake returns a scripted brightness.
type Fake struct {
	Level float64
	Err   error
	Calls int
}

// Brightness returns Level or Err.
func (f *Fake) Brightness() (float64, error) {
	f.Calls++
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Level, nil
}
