package correction

import "math"

// Emission is the estimated display contribution for one screen sample.
type Emission struct {
	// Channels is the model input [r, g, b, w].
	Channels   [4]float64
	Correction float64 // clamped estimate, in raw sensor units
	FullWhite  float64 // contribution of a full white screen at this brightness
	GrayGamma  float64 // lower bound derived from the synthetic white channel
}

// EmissionModel maps a screen color and display brightness to the light the
// display adds to the sensor reading.
type EmissionModel struct {
	poly          [4][4]float64
	postmul       [4]float64
	maxLux        [4]float64
	weights       [3]float64
	maxBrightness float64
	gamma         float64
	channelMax    float64
}

// NewEmissionModel derives the per-channel post multipliers from c.
// R, G and B use their own (aged) maximum; W uses the running sum of R, G and
// B minus its own maximum.
func NewEmissionModel(c Config) EmissionModel {
	m := EmissionModel{
		poly:          c.RGBWPoly,
		weights:       c.GrayscaleWeights,
		maxBrightness: c.MaxBrightness,
		gamma:         c.Tuning.GrayGamma,
		channelMax:    c.Tuning.ChannelMax,
	}
	var acc float64
	for i := 0; i < 4; i++ {
		m.maxLux[i] = c.RGBWMaxLux[i] * c.ScreenAging
		if i < 3 {
			acc += m.maxLux[i]
			m.postmul[i] = m.maxLux[i] / c.RGBWMaxLuxDiv[i]
		} else {
			acc -= m.maxLux[i]
			m.postmul[i] = acc / c.RGBWMaxLuxDiv[i]
		}
	}
	return m
}

// Postmul returns the derived per-channel multipliers.
func (m EmissionModel) Postmul() [4]float64 { return m.postmul }

// MaxLux returns the aged per-channel maxima.
func (m EmissionModel) MaxLux() [4]float64 { return m.maxLux }

// Estimate evaluates the model.
func (m EmissionModel) Estimate(c ScreenColor, brightness float64) Emission {
	w := c.R*m.weights[0] + c.G*m.weights[1] + c.B*m.weights[2]
	e := Emission{Channels: [4]float64{c.R, c.G, c.B, w}}

	var sum float64
	for i, x := range e.Channels {
		corr := horner(m.poly[i], x) * m.postmul[i]
		if i < 3 {
			sum += math.Max(corr, 0)
		} else {
			sum -= corr
		}
	}

	level := brightness / m.maxBrightness
	sum *= level
	e.FullWhite = m.maxLux[3] * level
	e.GrayGamma = math.Pow(w/m.channelMax, m.gamma) * e.FullWhite
	sum = math.Min(sum, e.FullWhite)
	e.Correction = math.Max(sum, e.GrayGamma)
	return e
}

// horner evaluates a cubic with coefficients ordered highest degree first.
func horner(coefs [4]float64, x float64) float64 {
	var v float64
	for _, c := range coefs {
		v = v*x + c
	}
	return v
}
