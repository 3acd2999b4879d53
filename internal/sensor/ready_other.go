//go:build !linux

package sensor

// GPIOReadyLine is unavailable off Linux.
type GPIOReadyLine struct{}

// OpenReadyLine always fails with ErrNotSupported.
func OpenReadyLine(chipName string, pin int) (*GPIOReadyLine, error) {
	return nil, ErrNotSupported
}

func (g *GPIOReadyLine) Ready() (bool, error) { return false, ErrNotSupported }

func (g *GPIOReadyLine) Close() error { return nil }
