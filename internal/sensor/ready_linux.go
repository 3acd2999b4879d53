//go:build linux

package sensor

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// GPIOReadyLine is the sensor's active-low interrupt line.
type GPIOReadyLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// OpenReadyLine requests pin on chip as an active-low input with pull-up.
func OpenReadyLine(chipName string, pin int) (*GPIOReadyLine, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.AsActiveLow, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request ready pin %d: %w", pin, err)
	}
	return &GPIOReadyLine{chip: chip, line: line}, nil
}

// Ready reports whether the sensor is asserting data-ready.
func (g *GPIOReadyLine) Ready() (bool, error) {
	v, err := g.line.Value()
	if err != nil {
		return false, err
	}
	return v == 1, nil
}

// Close releases the line and chip.
func (g *GPIOReadyLine) Close() error {
	var errs []error
	if g.line != nil {
		if err := g.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ready pin: %w", err))
		}
	}
	if g.chip != nil {
		if err := g.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
