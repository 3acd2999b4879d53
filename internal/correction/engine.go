package correction

import (
	"sync"
	"time"
)

// Engine corrects sensor events for display light. It owns its
// configuration and state; Process is serialized by an internal mutex.
type Engine struct {
	mu           sync.Mutex
	cfg          Config
	model        EmissionModel
	bands        HysteresisTable
	agcThreshold float64
	provider     ScreenColorProvider
	trace        func(format string, args ...any)
	state        State
	stats        Stats
}

// Option configures an Engine.
type Option func(*Engine)

// WithProvider sets the screen color source used for recomputation.
func WithProvider(p ScreenColorProvider) Option {
	return func(e *Engine) { e.provider = p }
}

// WithTrace installs a printf-style hook for per-event diagnostics.
func WithTrace(fn func(format string, args ...any)) Option {
	return func(e *Engine) { e.trace = fn }
}

// New creates an engine from cfg. It always returns a usable engine: values
// rejected by validation are replaced by defaults and reported in a
// *ConfigError, leaving the caller to decide whether to proceed.
func New(cfg Config, opts ...Option) (*Engine, error) {
	cfg, err := sanitize(cfg)

	e := &Engine{
		cfg:   cfg,
		model: NewEmissionModel(cfg),
		state: initialState(),
	}
	scale := cfg.CalibGain * cfg.InverseGain[0]
	bands, herr := NewHysteresisTable(cfg.Hysteresis, scale)
	if herr != nil {
		// sanitize validated the table, so only the scale can be at fault
		bands, _ = NewHysteresisTable(DefaultHysteresis(), 1)
	}
	e.bands = bands
	e.agcThreshold = cfg.AGCThreshold
	if e.agcThreshold == 0 {
		e.agcThreshold = defaultAGCCounts / cfg.InverseGain[0]
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, err
}

// Process runs one event through the correction pipeline.
// A Dropped outcome leaves the engine state untouched.
func (e *Engine) Process(ev Event, brightness float64, now time.Time) Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := e.process(ev, brightness, now)
	e.stats.count(out.Reason)
	return out
}

func (e *Engine) process(ev Event, brightness float64, now time.Time) Outcome {
	t := e.cfg.Tuning
	e.tracef("raw sensor reading: %.0f", ev.Raw)

	raw := ev.Raw
	if raw > e.cfg.Bias {
		raw -= e.cfg.Bias
	}

	// Timing updates are staged and committed only with a Corrected outcome.
	st := e.state
	if !st.Started {
		st.Started = true
		st.LastUpdate = now
		st.LastForcedUpdate = now
	} else {
		if brightness > 0 && now.Sub(st.LastForcedUpdate) > t.ForceInterval {
			e.tracef("forcing screen sample")
			st.LastForcedUpdate = now
			st.ForceUpdate = true
		}
		if now.Sub(st.LastUpdate) < t.RateLimit {
			e.tracef("events coming too fast, dropping")
			return Outcome{Kind: Dropped, Reason: ReasonRateLimited}
		}
		st.LastUpdate = now
	}

	estimate := raw * e.cfg.CalibGain * st.LastAGCGain
	recompute := st.ForceUpdate ||
		(outside(raw, st.HystMin, st.HystMax) && outside(estimate, t.CacheLuxLow, t.CacheLuxHigh))
	if !recompute {
		e.state = st
		e.tracef("reusing cached value: %.0f lux", st.LastCorrected)
		return Outcome{Kind: Corrected, Value: st.LastCorrected, Reason: ReasonCached}
	}

	if e.provider == nil {
		return Outcome{Kind: Dropped, Reason: ReasonCaptureUnavailable, Err: ErrUnavailable}
	}
	color, err := e.provider.Sample()
	if err != nil {
		e.tracef("screen sample failed: %v", err)
		return Outcome{Kind: Dropped, Reason: ReasonCaptureUnavailable, Err: err}
	}
	if now.Sub(color.Timestamp) > t.MaxSampleAge {
		e.tracef("screen sample too old (%v), dropping event", now.Sub(color.Timestamp))
		return Outcome{Kind: Dropped, Reason: ReasonStaleCapture}
	}
	e.tracef("screen color above sensor: %.0f %.0f %.0f", color.R, color.G, color.B)

	em := e.model.Estimate(color, brightness)
	e.tracef("estimated screen brightness: %.0f", em.Correction)
	rawCorrected := floorZero(raw - em.Correction)

	agc := e.cfg.InverseGain[0]
	if rawCorrected > e.agcThreshold {
		est := GainEstimate(e.cfg.HBR, raw, rawCorrected, ev.Aux)
		agc = SelectGain(est, e.cfg.GaincalPoints, e.cfg.InverseGain)
	}
	e.tracef("agc gain: %f", agc)

	rc := &Recomputation{
		Color:        color,
		Emission:     em,
		RawCorrected: rawCorrected,
		AGCGain:      agc,
		Forced:       st.ForceUpdate,
	}

	accept := em.Correction <= raw*t.OvershootFactor ||
		raw*e.cfg.CalibGain*agc < t.OvershootLuxLimit ||
		st.ForceUpdate
	st.ForceUpdate = false
	if !accept {
		e.state = st
		e.tracef("overshoot, reusing cached value: %.0f lux", st.LastCorrected)
		return Outcome{Kind: Corrected, Value: st.LastCorrected, Reason: ReasonRejected, Recompute: rc}
	}

	corrected := rawCorrected * e.cfg.CalibGain * agc
	st.LastAGCGain = agc
	band := e.bands.Band(corrected)
	st.HystMin = band.Min
	st.HystMax = band.Max + em.FullWhite
	corrected = floorZero(corrected - t.OutputOffset)
	st.LastCorrected = corrected
	e.state = st
	e.tracef("fully corrected sensor value: %.0f lux", corrected)
	return Outcome{Kind: Corrected, Value: corrected, Reason: ReasonAccepted, Recompute: rc}
}

// floorZero clamps v to [0, +Inf); NaN becomes 0.
func floorZero(v float64) float64 {
	if !(v > 0) {
		return 0
	}
	return v
}

func outside(v, lo, hi float64) bool {
	return v < lo || v > hi
}

func (e *Engine) tracef(format string, args ...any) {
	if e.trace != nil {
		e.trace(format, args...)
	}
}

// State returns a copy of the current engine state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Stats returns a copy of the outcome counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// ForceUpdate makes the next processed event bypass the hysteresis gate.
func (e *Engine) ForceUpdate() {
	e.mu.Lock()
	e.state.ForceUpdate = true
	e.mu.Unlock()
}

// Config returns the effective configuration after validation.
func (e *Engine) Config() Config { return e.cfg }

// Model returns the emission model derived from the configuration.
func (e *Engine) Model() EmissionModel { return e.model }

// Bands returns the pre-scaled hysteresis table.
func (e *Engine) Bands() HysteresisTable { return e.bands }

// AGCThreshold returns the effective gain selector threshold.
func (e *Engine) AGCThreshold() float64 { return e.agcThreshold }
