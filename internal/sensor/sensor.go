// Package sensor reads raw ambient light samples with hardware abstraction.
// The real implementation reads a Linux IIO device, optionally gated by a
// data-ready GPIO line. The fake implementation allows testing without
// hardware.
package sensor

import (
	"errors"

	"github.com/sweeney/als-corrector/internal/correction"
)

// ErrNotSupported is returned by hardware constructors on platforms
// without the Linux GPIO character device.
var ErrNotSupported = errors.New("sensor: not supported on this platform")

// Defaults for the light sensor on the panel's IIO bus.
const (
	DefaultIIODir     = "/sys/bus/iio/devices/iio:device0"
	DefaultRawChannel = "in_illuminance_raw"
	DefaultAuxChannel = "in_intensity_ir_raw"
	DefaultChip       = "gpiochip0"
)

// Reader reads sensor events.
type Reader interface {
	// Read returns the latest event. ok is false when the sensor has no
	// new conversion since the previous read.
	Read() (ev correction.Event, ok bool, err error)

	// Close releases sensor resources.
	Close() error
}
