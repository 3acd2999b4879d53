package correction

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// defaultAGCCounts is the raw count above which the gain selector runs,
// before division by the first inverse gain.
const defaultAGCCounts = 800.0

// Tuning holds the numeric constants that differ between device revisions.
type Tuning struct {
	RateLimit         time.Duration // minimum spacing of processed events
	ForceInterval     time.Duration // forced resample period while the display is lit
	MaxSampleAge      time.Duration // screen samples older than this are rejected
	OvershootFactor   float64       // correction may exceed raw by this factor before rejection
	OvershootLuxLimit float64       // estimates below this are never rejected
	OutputOffset      float64       // subtracted from every accepted value
	CacheLuxLow       float64       // calibrated estimate window in which the cache is kept
	CacheLuxHigh      float64
	GrayGamma         float64
	ChannelMax        float64 // full-scale value of a screen color channel
}

// Config is the calibration set for one sensor/display pairing.
// It is immutable once passed to New.
type Config struct {
	HBR              bool
	RGBWMaxLux       [4]float64
	RGBWMaxLuxDiv    [4]float64
	RGBWPoly         [4][4]float64 // highest degree first
	GrayscaleWeights [3]float64
	GaincalPoints    [4]float64 // ascending
	InverseGain      [4]float64
	// AGCThreshold of 0 derives 800/InverseGain[0].
	AGCThreshold  float64
	CalibGain     float64
	Bias          float64
	MaxBrightness float64
	// ScreenAging scales RGBWMaxLux to account for panel wear.
	ScreenAging float64
	Hysteresis  []HysteresisRange
	Tuning      Tuning
}

// DefaultTuning returns the constants of the most complete device revision.
func DefaultTuning() Tuning {
	return Tuning{
		RateLimit:         100 * time.Millisecond,
		ForceInterval:     3 * time.Second,
		MaxSampleAge:      time.Second,
		OvershootFactor:   1.35,
		OvershootLuxLimit: 10000,
		OutputOffset:      14,
		CacheLuxLow:       10,
		CacheLuxHigh:      5 / .07,
		GrayGamma:         2.2,
		ChannelMax:        255,
	}
}

// DefaultGaincalPoints returns the gain estimate breakpoints for the mode.
// Non-HBR points are 1000 over the corrected/aux ratios 85, 39 and 29.
// Ratios of 39 and 29 select the higher stage; a ratio of exactly 85
// stays on inverse[0].
func DefaultGaincalPoints(hbr bool) [4]float64 {
	if hbr {
		return [4]float64{0, 450, 800, 1050}
	}
	return [4]float64{0, 1000.0 / 85, 1000.0 / 39, 1000.0 / 29}
}

// DefaultConfig returns an uncalibrated configuration with a linear panel
// response. Real devices override it through the calibration loader.
func DefaultConfig(hbr bool) Config {
	linear := [4]float64{0, 0, 1, 0}
	return Config{
		HBR:              hbr,
		RGBWMaxLux:       [4]float64{1800, 2900, 1100, 4400},
		RGBWMaxLuxDiv:    [4]float64{255, 255, 255, 255},
		RGBWPoly:         [4][4]float64{linear, linear, linear, linear},
		GrayscaleWeights: [3]float64{0.2126, 0.7152, 0.0722},
		GaincalPoints:    DefaultGaincalPoints(hbr),
		InverseGain:      [4]float64{1, 2, 4, 8},
		CalibGain:        1,
		MaxBrightness:    1023,
		ScreenAging:      1,
		Hysteresis:       DefaultHysteresis(),
		Tuning:           DefaultTuning(),
	}
}

// ConfigError lists the calibration values that were rejected.
type ConfigError struct {
	Fields []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("correction: invalid config: %s", strings.Join(e.Fields, ", "))
}

// Validate reports every invalid value in c.
func (c Config) Validate() error {
	_, err := sanitize(c)
	return err
}

// sanitize replaces each invalid value with its default and reports it.
func sanitize(c Config) (Config, error) {
	def := DefaultConfig(c.HBR)
	var bad []string
	reject := func(name string) { bad = append(bad, name) }

	for i, d := range c.RGBWMaxLuxDiv {
		if d == 0 || !finite(d) {
			reject(fmt.Sprintf("rgbw_max_lux_div[%d]", i))
			c.RGBWMaxLuxDiv[i] = def.RGBWMaxLuxDiv[i]
		}
	}
	for i, v := range c.RGBWMaxLux {
		if !finite(v) {
			reject(fmt.Sprintf("rgbw_max_lux[%d]", i))
			c.RGBWMaxLux[i] = def.RGBWMaxLux[i]
		}
	}
	if c.InverseGain[0] == 0 || !finite(c.InverseGain[0]) {
		reject("sensor_inverse_gain[0]")
		c.InverseGain[0] = def.InverseGain[0]
	}
	if c.CalibGain == 0 || !finite(c.CalibGain) {
		reject("calib_gain")
		c.CalibGain = def.CalibGain
	}
	if !(c.MaxBrightness > 0) || !finite(c.MaxBrightness) {
		reject("max_brightness")
		c.MaxBrightness = def.MaxBrightness
	}
	if !(c.ScreenAging > 0) || !finite(c.ScreenAging) {
		reject("screen_aging")
		c.ScreenAging = def.ScreenAging
	}
	if !finite(c.Bias) {
		reject("bias")
		c.Bias = 0
	}
	for i := 1; i < len(c.GaincalPoints); i++ {
		if c.GaincalPoints[i] < c.GaincalPoints[i-1] {
			reject("sensor_gaincal_points")
			c.GaincalPoints = def.GaincalPoints
			break
		}
	}
	for _, w := range c.GrayscaleWeights {
		if !(w >= 0) || !finite(w) {
			reject("grayscale_weights")
			c.GrayscaleWeights = def.GrayscaleWeights
			break
		}
	}
	for i, coefs := range c.RGBWPoly {
		for _, v := range coefs {
			if !finite(v) {
				reject(fmt.Sprintf("rgbw_poly[%d]", i))
				c.RGBWPoly[i] = def.RGBWPoly[i]
				break
			}
		}
	}
	if c.Tuning == (Tuning{}) {
		c.Tuning = def.Tuning
	} else {
		c.Tuning = sanitizeTuning(c.Tuning, def.Tuning, reject)
	}
	if len(c.Hysteresis) == 0 {
		c.Hysteresis = def.Hysteresis
	} else if err := ValidateHysteresis(c.Hysteresis); err != nil {
		reject("hysteresis_ranges")
		c.Hysteresis = def.Hysteresis
	}

	if len(bad) > 0 {
		return c, &ConfigError{Fields: bad}
	}
	return c, nil
}

// sanitizeTuning replaces each invalid tuning constant with its default.
func sanitizeTuning(t, def Tuning, reject func(string)) Tuning {
	durations := []struct {
		name string
		v    *time.Duration
		def  time.Duration
	}{
		{"rate_limit", &t.RateLimit, def.RateLimit},
		{"force_interval", &t.ForceInterval, def.ForceInterval},
		{"max_sample_age", &t.MaxSampleAge, def.MaxSampleAge},
	}
	for _, d := range durations {
		if *d.v <= 0 {
			reject(d.name)
			*d.v = d.def
		}
	}

	positive := []struct {
		name string
		v    *float64
		def  float64
	}{
		{"overshoot_factor", &t.OvershootFactor, def.OvershootFactor},
		{"gray_gamma", &t.GrayGamma, def.GrayGamma},
		{"channel_max", &t.ChannelMax, def.ChannelMax},
	}
	for _, f := range positive {
		if !(*f.v > 0) || !finite(*f.v) {
			reject(f.name)
			*f.v = f.def
		}
	}

	nonNegative := []struct {
		name string
		v    *float64
		def  float64
	}{
		{"overshoot_lux_limit", &t.OvershootLuxLimit, def.OvershootLuxLimit},
		{"output_offset", &t.OutputOffset, def.OutputOffset},
		{"cache_lux_low", &t.CacheLuxLow, def.CacheLuxLow},
		{"cache_lux_high", &t.CacheLuxHigh, def.CacheLuxHigh},
	}
	for _, f := range nonNegative {
		if !(*f.v >= 0) || !finite(*f.v) {
			reject(f.name)
			*f.v = f.def
		}
	}
	if t.CacheLuxLow > t.CacheLuxHigh {
		reject("cache_lux_window")
		t.CacheLuxLow, t.CacheLuxHigh = def.CacheLuxLow, def.CacheLuxHigh
	}
	return t
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
