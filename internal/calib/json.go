package calib

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

// DefaultsPath is the engineering defaults file shipped with the daemon.
const DefaultsPath = "config/als.defaults.json"

const maxDefaultsSize = 1 * 1024 * 1024 // 1MB

// Defaults is the JSON schema of the engineering defaults file. Omitted
// fields keep the value of the layer below.
type Defaults struct {
	HBR                 *bool          `json:"hbr,omitempty"`
	RGBWMaxLux          *[4]float64    `json:"rgbw_max_lux,omitempty"`
	RGBWMaxLuxDiv       *[4]float64    `json:"rgbw_max_lux_div,omitempty"`
	RGBWPoly            *[4][4]float64 `json:"rgbw_poly,omitempty"`
	GrayscaleWeights    *[3]float64    `json:"grayscale_weights,omitempty"`
	SensorGaincalPoints *[4]float64    `json:"sensor_gaincal_points,omitempty"`
	SensorInverseGain   *[4]float64    `json:"sensor_inverse_gain,omitempty"`
	AGCThreshold        *float64       `json:"agc_threshold,omitempty"`
	CalibGain           *float64       `json:"calib_gain,omitempty"`
	Bias                *float64       `json:"bias,omitempty"`
	MaxBrightness       *float64       `json:"max_brightness,omitempty"`
	HysteresisRanges    []Band         `json:"hysteresis_ranges,omitempty"`

	RateLimit         *string  `json:"rate_limit,omitempty"`     // duration string like "100ms"
	ForceInterval     *string  `json:"force_interval,omitempty"` // duration string like "3s"
	MaxSampleAge      *string  `json:"max_sample_age,omitempty"`
	OvershootFactor   *float64 `json:"overshoot_factor,omitempty"`
	OvershootLuxLimit *float64 `json:"overshoot_lux_limit,omitempty"`
	OutputOffset      *float64 `json:"output_offset,omitempty"`
	CacheLuxLow       *float64 `json:"cache_lux_low,omitempty"`
	CacheLuxHigh      *float64 `json:"cache_lux_high,omitempty"`
	GrayGamma         *float64 `json:"gray_gamma,omitempty"`
	ChannelMax        *float64 `json:"channel_max,omitempty"`
}

// Band is a hysteresis range in JSON form. A nil Middle or Max stands for
// an unbounded value, which JSON cannot encode.
type Band struct {
	Middle *float64 `json:"middle,omitempty"`
	Min    float64  `json:"min"`
	Max    *float64 `json:"max,omitempty"`
}

// JSONFile applies an engineering defaults file.
type JSONFile struct {
	Path string
}

func (f JSONFile) Name() string { return "defaults " + f.Path }

// Apply implements Source.
func (f JSONFile) Apply(cfg *correction.Config) error {
	d, err := LoadDefaults(f.Path)
	if err != nil {
		return &Error{Source: f.Name(), Key: "file", Value: f.Path, Err: err}
	}
	if err := d.apply(cfg); err != nil {
		if ce, ok := err.(*Error); ok {
			ce.Source = f.Name()
		}
		return err
	}
	return nil
}

// LoadDefaults reads and parses a defaults file. The file must have a
// .json extension and be at most 1MB.
func LoadDefaults(path string) (*Defaults, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("defaults file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat defaults file: %w", err)
	}
	if info.Size() > maxDefaultsSize {
		return nil, fmt.Errorf("defaults file too large: %d bytes (max %d)", info.Size(), maxDefaultsSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read defaults file: %w", err)
	}
	d := &Defaults{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse defaults JSON: %w", err)
	}
	return d, nil
}

func (d *Defaults) apply(cfg *correction.Config) error {
	if d.HBR != nil && *d.HBR != cfg.HBR {
		cfg.HBR = *d.HBR
		cfg.GaincalPoints = correction.DefaultGaincalPoints(cfg.HBR)
	}
	setArray(d.RGBWMaxLux, &cfg.RGBWMaxLux)
	setArray(d.RGBWMaxLuxDiv, &cfg.RGBWMaxLuxDiv)
	if d.RGBWPoly != nil {
		cfg.RGBWPoly = *d.RGBWPoly
	}
	if d.GrayscaleWeights != nil {
		cfg.GrayscaleWeights = *d.GrayscaleWeights
	}
	setArray(d.SensorGaincalPoints, &cfg.GaincalPoints)
	setArray(d.SensorInverseGain, &cfg.InverseGain)
	setFloat(d.AGCThreshold, &cfg.AGCThreshold)
	setFloat(d.CalibGain, &cfg.CalibGain)
	setFloat(d.Bias, &cfg.Bias)
	setFloat(d.MaxBrightness, &cfg.MaxBrightness)

	if len(d.HysteresisRanges) > 0 {
		ranges := make([]correction.HysteresisRange, len(d.HysteresisRanges))
		for i, b := range d.HysteresisRanges {
			ranges[i] = correction.HysteresisRange{
				Middle: orInf(b.Middle),
				Min:    b.Min,
				Max:    orInf(b.Max),
			}
		}
		if err := correction.ValidateHysteresis(ranges); err != nil {
			return &Error{Key: "hysteresis_ranges", Err: err}
		}
		cfg.Hysteresis = ranges
	}

	t := &cfg.Tuning
	for _, dur := range []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"rate_limit", d.RateLimit, &t.RateLimit},
		{"force_interval", d.ForceInterval, &t.ForceInterval},
		{"max_sample_age", d.MaxSampleAge, &t.MaxSampleAge},
	} {
		if dur.src == nil || *dur.src == "" {
			continue
		}
		v, err := time.ParseDuration(*dur.src)
		if err != nil {
			return &Error{Key: dur.key, Value: *dur.src, Err: err}
		}
		*dur.dst = v
	}
	setFloat(d.OvershootFactor, &t.OvershootFactor)
	setFloat(d.OvershootLuxLimit, &t.OvershootLuxLimit)
	setFloat(d.OutputOffset, &t.OutputOffset)
	setFloat(d.CacheLuxLow, &t.CacheLuxLow)
	setFloat(d.CacheLuxHigh, &t.CacheLuxHigh)
	setFloat(d.GrayGamma, &t.GrayGamma)
	setFloat(d.ChannelMax, &t.ChannelMax)
	return nil
}

// Export converts cfg into the defaults file schema.
func Export(cfg correction.Config) *Defaults {
	t := cfg.Tuning
	d := &Defaults{
		HBR:                 ptr(cfg.HBR),
		RGBWMaxLux:          ptr(cfg.RGBWMaxLux),
		RGBWMaxLuxDiv:       ptr(cfg.RGBWMaxLuxDiv),
		RGBWPoly:            ptr(cfg.RGBWPoly),
		GrayscaleWeights:    ptr(cfg.GrayscaleWeights),
		SensorGaincalPoints: ptr(cfg.GaincalPoints),
		SensorInverseGain:   ptr(cfg.InverseGain),
		AGCThreshold:        ptr(cfg.AGCThreshold),
		CalibGain:           ptr(cfg.CalibGain),
		Bias:                ptr(cfg.Bias),
		MaxBrightness:       ptr(cfg.MaxBrightness),
		RateLimit:           ptr(t.RateLimit.String()),
		ForceInterval:       ptr(t.ForceInterval.String()),
		MaxSampleAge:        ptr(t.MaxSampleAge.String()),
		OvershootFactor:     ptr(t.OvershootFactor),
		OvershootLuxLimit:   ptr(t.OvershootLuxLimit),
		OutputOffset:        ptr(t.OutputOffset),
		CacheLuxLow:         ptr(t.CacheLuxLow),
		CacheLuxHigh:        ptr(t.CacheLuxHigh),
		GrayGamma:           ptr(t.GrayGamma),
		ChannelMax:          ptr(t.ChannelMax),
	}
	for _, r := range cfg.Hysteresis {
		b := Band{Min: r.Min}
		if !math.IsInf(r.Middle, 1) {
			b.Middle = ptr(r.Middle)
		}
		if !math.IsInf(r.Max, 1) {
			b.Max = ptr(r.Max)
		}
		d.HysteresisRanges = append(d.HysteresisRanges, b)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

func setFloat(src *float64, dst *float64) {
	if src != nil {
		*dst = *src
	}
}

func setArray[A [3]float64 | [4]float64](src *A, dst *A) {
	if src != nil {
		*dst = *src
	}
}

func orInf(v *float64) float64 {
	if v == nil {
		return math.Inf(1)
	}
	return *v
}
