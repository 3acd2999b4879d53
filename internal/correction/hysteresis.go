package correction

import (
	"errors"
	"fmt"
	"math"
)

// HysteresisRange is one lux band. A corrected value v belongs to the first
// range with v <= Middle; Min and Max bound the raw readings for which the
// cached correction is reused afterwards.
type HysteresisRange struct {
	Middle float64
	Min    float64
	Max    float64
}

// DefaultHysteresis returns the unscaled band table.
func DefaultHysteresis() []HysteresisRange {
	inf := math.Inf(1)
	return []HysteresisRange{
		{0, 0, 4},
		{7, 1, 12},
		{15, 5, 30},
		{30, 10, 50},
		{360, 25, 700},
		{1200, 300, 1600},
		{2250, 1000, 2940},
		{4600, 2000, 5900},
		{10000, 4000, 80000},
		{inf, 8000, inf},
	}
}

// ValidateHysteresis checks that the middles ascend to +Inf and that
// neighbouring bands overlap, so the bands cover [0, +Inf) without gaps.
func ValidateHysteresis(ranges []HysteresisRange) error {
	if len(ranges) == 0 {
		return errors.New("hysteresis: empty table")
	}
	for i, r := range ranges {
		if math.IsNaN(r.Middle) || math.IsNaN(r.Min) || math.IsNaN(r.Max) {
			return fmt.Errorf("hysteresis: range %d has NaN", i)
		}
		if r.Min > r.Max {
			return fmt.Errorf("hysteresis: range %d min %.2f > max %.2f", i, r.Min, r.Max)
		}
		if i == 0 {
			if r.Middle < 0 {
				return fmt.Errorf("hysteresis: first middle %.2f is negative", r.Middle)
			}
			continue
		}
		prev := ranges[i-1]
		if r.Middle <= prev.Middle {
			return fmt.Errorf("hysteresis: range %d middle %.2f not above %.2f", i, r.Middle, prev.Middle)
		}
		if prev.Max < r.Min {
			return fmt.Errorf("hysteresis: gap between range %d and %d", i-1, i)
		}
	}
	last := ranges[len(ranges)-1]
	if !math.IsInf(last.Middle, 1) || !math.IsInf(last.Max, 1) {
		return errors.New("hysteresis: last range must be unbounded")
	}
	return nil
}

// HysteresisTable is a validated, pre-scaled band table.
type HysteresisTable struct {
	ranges []HysteresisRange
}

// NewHysteresisTable divides every Min and Max by scale and forces the first
// Min to -1 so near-zero readings always fall inside the lowest band.
func NewHysteresisTable(ranges []HysteresisRange, scale float64) (HysteresisTable, error) {
	if err := ValidateHysteresis(ranges); err != nil {
		return HysteresisTable{}, err
	}
	if scale == 0 || math.IsNaN(scale) {
		return HysteresisTable{}, fmt.Errorf("hysteresis: invalid scale %v", scale)
	}
	out := make([]HysteresisRange, len(ranges))
	for i, r := range ranges {
		out[i] = HysteresisRange{
			Middle: r.Middle,
			Min:    r.Min / scale,
			Max:    r.Max / scale,
		}
	}
	out[0].Min = -1
	return HysteresisTable{ranges: out}, nil
}

// Band returns the first range whose Middle is >= v.
func (t HysteresisTable) Band(v float64) HysteresisRange {
	for _, r := range t.ranges {
		if v <= r.Middle {
			return r
		}
	}
	return t.ranges[len(t.ranges)-1]
}

// Ranges returns a copy of the scaled ranges.
func (t HysteresisTable) Ranges() []HysteresisRange {
	out := make([]HysteresisRange, len(t.ranges))
	copy(out, t.ranges)
	return out
}
