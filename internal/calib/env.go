package calib

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sweeney/als-corrector/internal/correction"
)

// EnvFile applies a device override file in dotenv format. Array values
// are whitespace-separated, e.g. ALS_RGBW_MAX_LUX="1800 2900 1100 4400".
// A missing file is not an error.
type EnvFile struct {
	Path string
}

func (f EnvFile) Name() string { return "override " + f.Path }

// Apply implements Source.
func (f EnvFile) Apply(cfg *correction.Config) error {
	env, err := godotenv.Read(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &Error{Source: f.Name(), Key: "file", Value: f.Path, Err: err}
	}
	err = ApplyEnv(env, cfg)
	var ce *Error
	if errors.As(err, &ce) {
		ce.Source = f.Name()
	}
	return err
}

// ApplyEnv applies ALS_* keys from env to cfg. It stops at the first
// malformed value, leaving earlier keys applied.
func ApplyEnv(env map[string]string, cfg *correction.Config) error {
	if v, ok := env["ALS_HBR"]; ok {
		hbr, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return &Error{Key: "ALS_HBR", Value: v, Err: err}
		}
		if hbr != cfg.HBR {
			cfg.HBR = hbr
			if _, set := env["ALS_SENSOR_GAINCAL_POINTS"]; !set {
				cfg.GaincalPoints = correction.DefaultGaincalPoints(hbr)
			}
		}
	}

	arrays := []struct {
		key string
		dst []float64
	}{
		{"ALS_RGBW_MAX_LUX", cfg.RGBWMaxLux[:]},
		{"ALS_RGBW_MAX_LUX_DIV", cfg.RGBWMaxLuxDiv[:]},
		{"ALS_RGBW_POLY1", cfg.RGBWPoly[0][:]},
		{"ALS_RGBW_POLY2", cfg.RGBWPoly[1][:]},
		{"ALS_RGBW_POLY3", cfg.RGBWPoly[2][:]},
		{"ALS_RGBW_POLY4", cfg.RGBWPoly[3][:]},
		{"ALS_GRAYSCALE_WEIGHTS", cfg.GrayscaleWeights[:]},
		{"ALS_SENSOR_GAINCAL_POINTS", cfg.GaincalPoints[:]},
		{"ALS_SENSOR_INVERSE_GAIN", cfg.InverseGain[:]},
	}
	for _, a := range arrays {
		v, ok := env[a.key]
		if !ok {
			continue
		}
		if err := parseList(v, a.dst); err != nil {
			return &Error{Key: a.key, Value: v, Err: err}
		}
	}

	scalars := []struct {
		key string
		dst *float64
	}{
		{"ALS_AGC_THRESHOLD", &cfg.AGCThreshold},
		{"ALS_CALIB_GAIN", &cfg.CalibGain},
		{"ALS_BIAS", &cfg.Bias},
		{"ALS_MAX_BRIGHTNESS", &cfg.MaxBrightness},
	}
	for _, s := range scalars {
		v, ok := env[s.key]
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return &Error{Key: s.key, Value: v, Err: err}
		}
		*s.dst = f
	}
	return nil
}

// parseList fills dst from a whitespace-separated list. The list must
// have exactly len(dst) values; dst is untouched on error.
func parseList(s string, dst []float64) error {
	fields := strings.Fields(s)
	if len(fields) != len(dst) {
		return fmt.Errorf("want %d values, got %d", len(dst), len(fields))
	}
	vals := make([]float64, len(dst))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	copy(dst, vals)
	return nil
}
