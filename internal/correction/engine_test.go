package correction

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// sampler is a scripted ScreenColorProvider. The timestamp of each sample is
// taken from stamp so tests can control staleness.
type sampler struct {
	color ScreenColor
	stamp time.Time
	err   error
	calls int
}

func (s *sampler) Sample() (ScreenColor, error) {
	s.calls++
	if s.err != nil {
		return ScreenColor{}, s.err
	}
	c := s.color
	c.Timestamp = s.stamp
	return c, nil
}

func (s *sampler) set(r, g, b float64, stamp time.Time) {
	s.color = ScreenColor{R: r, G: g, B: b}
	s.stamp = stamp
}

func newEngine(t *testing.T, cfg Config, p ScreenColorProvider) *Engine {
	t.Helper()
	e, err := New(cfg, WithProvider(p))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestNewDerivesPostmulAndThreshold(t *testing.T) {
	e := newEngine(t, DefaultConfig(false), nil)

	want := [4]float64{1800.0 / 255, 2900.0 / 255, 1100.0 / 255, (1800.0 + 2900 + 1100 - 4400) / 255}
	got := e.Model().Postmul()
	for i := range want {
		if !approx(got[i], want[i]) {
			t.Errorf("postmul[%d]: got %v, want %v", i, got[i], want[i])
		}
	}
	if e.AGCThreshold() != 800 {
		t.Errorf("agc threshold: got %v, want 800", e.AGCThreshold())
	}

	st := e.State()
	if st.Started {
		t.Error("new engine should be cold")
	}
	if !st.ForceUpdate {
		t.Error("new engine should force the first recomputation")
	}
	if st.HystMin != -1 || st.HystMax != -1 {
		t.Errorf("hysteresis: got (%v, %v), want (-1, -1)", st.HystMin, st.HystMax)
	}
}

func TestNewScreenAgingScalesMaxLux(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.ScreenAging = 0.5
	e := newEngine(t, cfg, nil)

	got := e.Model().MaxLux()
	if got[0] != 900 || got[3] != 2200 {
		t.Errorf("aged max lux: got %v", got)
	}
	if !approx(e.Model().Postmul()[3], (900.0+1450+550-2200)/255) {
		t.Errorf("aged W postmul: got %v", e.Model().Postmul()[3])
	}
}

func TestNewExplicitAGCThreshold(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.InverseGain[0] = 2
	e := newEngine(t, cfg, nil)
	if e.AGCThreshold() != 400 {
		t.Errorf("derived threshold: got %v, want 400", e.AGCThreshold())
	}

	cfg.AGCThreshold = 123
	e = newEngine(t, cfg, nil)
	if e.AGCThreshold() != 123 {
		t.Errorf("explicit threshold: got %v, want 123", e.AGCThreshold())
	}
}

func TestNewRejectsZeroDivisors(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.RGBWMaxLuxDiv[1] = 0
	cfg.InverseGain[0] = 0

	e, err := New(cfg)
	if e == nil {
		t.Fatal("New must return a usable engine on config error")
	}
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	want := []string{"rgbw_max_lux_div[1]", "sensor_inverse_gain[0]"}
	if diff := cmp.Diff(want, cerr.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if e.Config().RGBWMaxLuxDiv[1] != 255 {
		t.Errorf("divisor fallback: got %v, want 255", e.Config().RGBWMaxLuxDiv[1])
	}
	if e.Config().InverseGain[0] != 1 {
		t.Errorf("inverse gain fallback: got %v, want 1", e.Config().InverseGain[0])
	}

	// The fallback engine still processes events.
	out := e.Process(Event{Raw: 20}, 0, t0)
	if out.Kind != Dropped || out.Reason != ReasonCaptureUnavailable {
		t.Errorf("expected capture unavailable without provider, got %v %s", out.Kind, out.Reason)
	}
}

func TestNewRejectsBadHysteresis(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.Hysteresis = []HysteresisRange{{10, 0, 5}, {5, 1, 3}}

	e, err := New(cfg)
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if len(e.Bands().Ranges()) != len(DefaultHysteresis()) {
		t.Errorf("expected default table, got %d ranges", len(e.Bands().Ranges()))
	}
}

func TestNewRejectsNonPositiveMaxBrightness(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.MaxBrightness = 0
	e, err := New(cfg)
	if err == nil {
		t.Fatal("expected error for max_brightness 0")
	}
	if e.Config().MaxBrightness != 1023 {
		t.Errorf("max brightness fallback: got %v", e.Config().MaxBrightness)
	}
}

func configErrorFields(t *testing.T, err error) []string {
	t.Helper()
	var cerr *ConfigError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	return cerr.Fields
}

func TestNewRejectsNegativeGrayscaleWeights(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.GrayscaleWeights = [3]float64{0.5, 0.5, -1.5}
	s := &sampler{}
	s.set(0, 0, 255, t0)

	e, err := New(cfg, WithProvider(s))
	if diff := cmp.Diff([]string{"grayscale_weights"}, configErrorFields(t, err)); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if e.Config().GrayscaleWeights != DefaultConfig(false).GrayscaleWeights {
		t.Errorf("weights fallback: got %v", e.Config().GrayscaleWeights)
	}

	out := e.Process(Event{Raw: 500}, 1023, t0)
	if out.Kind != Corrected || math.IsNaN(out.Value) || out.Value < 0 {
		t.Errorf("got %v %v, want a non-negative corrected value", out.Kind, out.Value)
	}
}

func TestNewRejectsNonFinitePoly(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.RGBWPoly[2][0] = math.NaN()
	cfg.RGBWPoly[3][1] = math.Inf(-1)

	e, err := New(cfg)
	want := []string{"rgbw_poly[2]", "rgbw_poly[3]"}
	if diff := cmp.Diff(want, configErrorFields(t, err)); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	if e.Config().RGBWPoly != DefaultConfig(false).RGBWPoly {
		t.Errorf("poly fallback: got %v", e.Config().RGBWPoly)
	}
}

func TestNewSanitizesPartialTuning(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.Tuning = Tuning{RateLimit: 50 * time.Millisecond, ChannelMax: 255}
	s := &sampler{}
	s.set(0, 0, 0, t0)

	e, err := New(cfg, WithProvider(s))
	want := []string{"force_interval", "max_sample_age", "overshoot_factor", "gray_gamma"}
	if diff := cmp.Diff(want, configErrorFields(t, err)); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}
	tu := e.Config().Tuning
	if tu.RateLimit != 50*time.Millisecond {
		t.Errorf("valid rate limit replaced: got %v", tu.RateLimit)
	}
	if tu.GrayGamma != 2.2 || tu.OvershootFactor != 1.35 {
		t.Errorf("tuning fallback: got %+v", tu)
	}

	// a black screen adds no light, whatever the brightness
	out := e.Process(Event{Raw: 500}, 1023, t0)
	if out.Recompute == nil || out.Recompute.Emission.Correction != 0 {
		t.Fatalf("expected zero emission for a black screen, got %+v", out.Recompute)
	}
	if out.Value != 500 {
		t.Errorf("corrected: got %v, want 500 (zero output offset)", out.Value)
	}
}

func TestNewRejectsBadTuningValues(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*Tuning)
	}{
		{"rate_limit", func(tu *Tuning) { tu.RateLimit = -time.Millisecond }},
		{"force_interval", func(tu *Tuning) { tu.ForceInterval = 0 }},
		{"max_sample_age", func(tu *Tuning) { tu.MaxSampleAge = 0 }},
		{"overshoot_factor", func(tu *Tuning) { tu.OvershootFactor = math.NaN() }},
		{"gray_gamma", func(tu *Tuning) { tu.GrayGamma = 0 }},
		{"channel_max", func(tu *Tuning) { tu.ChannelMax = -1 }},
		{"overshoot_lux_limit", func(tu *Tuning) { tu.OvershootLuxLimit = math.Inf(1) }},
		{"output_offset", func(tu *Tuning) { tu.OutputOffset = -14 }},
		{"cache_lux_low", func(tu *Tuning) { tu.CacheLuxLow = -1 }},
		{"cache_lux_window", func(tu *Tuning) { tu.CacheLuxLow = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			cfg := DefaultConfig(false)
			tt.mutate(&cfg.Tuning)

			e, err := New(cfg)
			if diff := cmp.Diff([]string{tt.field}, configErrorFields(t, err)); diff != "" {
				t.Errorf("fields (-want +got):\n%s", diff)
			}
			if e.Config().Tuning != DefaultTuning() {
				t.Errorf("tuning fallback: got %+v", e.Config().Tuning)
			}
		})
	}
}

func TestFloorZero(t *testing.T) {
	tests := []struct {
		v, want float64
	}{
		{math.NaN(), 0},
		{math.Inf(-1), 0},
		{-3, 0},
		{0, 0},
		{2.5, 2.5},
	}
	for _, tt := range tests {
		if got := floorZero(tt.v); got != tt.want {
			t.Errorf("floorZero(%v): got %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestFirstEventBootstrap(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	out := e.Process(Event{Raw: 30}, 0, t0)
	if out.Kind != Corrected || out.Reason != ReasonAccepted {
		t.Fatalf("first event: got %v %s", out.Kind, out.Reason)
	}
	if out.Value != 16 {
		t.Errorf("value: got %v, want 16", out.Value)
	}

	st := e.State()
	if !st.Started {
		t.Error("engine should be warm after the first event")
	}
	if !st.LastUpdate.Equal(t0) || !st.LastForcedUpdate.Equal(t0) {
		t.Errorf("timestamps: got %v / %v, want %v", st.LastUpdate, st.LastForcedUpdate, t0)
	}
	if st.ForceUpdate {
		t.Error("force flag should be cleared after acceptance")
	}
	// 30 falls in the {30, 10, 50} band
	if st.HystMin != 10 || st.HystMax != 50 {
		t.Errorf("hysteresis: got [%v, %v], want [10, 50]", st.HystMin, st.HystMax)
	}
	if st.LastAGCGain != 1 {
		t.Errorf("agc gain: got %v, want 1", st.LastAGCGain)
	}
}

func TestRateLimitedEventLeavesStateUnchanged(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	e.Process(Event{Raw: 30}, 0, t0)
	before := e.State()

	out := e.Process(Event{Raw: 5000}, 0, t0.Add(50*time.Millisecond))
	if out.Kind != Dropped || out.Reason != ReasonRateLimited {
		t.Fatalf("expected rate limited drop, got %v %s", out.Kind, out.Reason)
	}
	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed on rate limited event (-before +after):\n%s", diff)
	}
	if p.calls != 1 {
		t.Errorf("provider calls: got %d, want 1", p.calls)
	}
}

func TestRateLimitedEventDoesNotCommitForcedTimer(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	e.Process(Event{Raw: 30}, 500, t0)
	p.stamp = t0.Add(2950 * time.Millisecond)
	e.Process(Event{Raw: 30}, 500, t0.Add(2950*time.Millisecond))
	before := e.State()

	// Forced timer has elapsed but the event is too close to the last one.
	out := e.Process(Event{Raw: 30}, 500, t0.Add(3010*time.Millisecond))
	if out.Kind != Dropped {
		t.Fatalf("expected drop, got %v %s", out.Kind, out.Reason)
	}
	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
}

func TestCachedValueWithinHysteresis(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)
	e.Process(Event{Raw: 30}, 0, t0)

	tests := []struct {
		name string
		raw  float64
	}{
		{"inside band and window", 40},
		{"outside band, inside window", 60},
		{"lower edge of band and window", 10},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := t0.Add(time.Duration(i+1) * 200 * time.Millisecond)
			out := e.Process(Event{Raw: tt.raw}, 0, now)
			if out.Kind != Corrected || out.Reason != ReasonCached {
				t.Fatalf("got %v %s, want cached", out.Kind, out.Reason)
			}
			if out.Value != 16 {
				t.Errorf("value: got %v, want 16", out.Value)
			}
			if p.calls != 1 {
				t.Errorf("provider calls: got %d, want 1", p.calls)
			}
		})
	}

	if st := e.State(); !st.LastUpdate.Equal(t0.Add(600 * time.Millisecond)) {
		t.Errorf("cached path should commit last update, got %v", st.LastUpdate)
	}
}

func TestRecomputeOutsideBandAndWindow(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)
	e.Process(Event{Raw: 30}, 0, t0)

	now := t0.Add(200 * time.Millisecond)
	p.stamp = now
	out := e.Process(Event{Raw: 100}, 0, now)
	if out.Reason != ReasonAccepted {
		t.Fatalf("got %s, want accepted", out.Reason)
	}
	if out.Value != 86 {
		t.Errorf("value: got %v, want 86", out.Value)
	}
	if p.calls != 2 {
		t.Errorf("provider calls: got %d, want 2", p.calls)
	}
	// 100 falls in the {360, 25, 700} band
	st := e.State()
	if st.HystMin != 25 || st.HystMax != 700 {
		t.Errorf("hysteresis: got [%v, %v], want [25, 700]", st.HystMin, st.HystMax)
	}
}

func TestForcedResampleAfterInterval(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	e.Process(Event{Raw: 30}, 1023, t0)

	out := e.Process(Event{Raw: 40}, 1023, t0.Add(time.Second))
	if out.Reason != ReasonCached {
		t.Fatalf("1s: got %s, want cached", out.Reason)
	}

	now := t0.Add(3500 * time.Millisecond)
	p.stamp = now
	out = e.Process(Event{Raw: 40}, 1023, now)
	if out.Reason != ReasonAccepted {
		t.Fatalf("3.5s: got %s, want accepted", out.Reason)
	}
	if out.Recompute == nil || !out.Recompute.Forced {
		t.Error("recomputation should be marked forced")
	}
	if out.Value != 26 {
		t.Errorf("value: got %v, want 26", out.Value)
	}
	if p.calls != 2 {
		t.Errorf("provider calls: got %d, want 2", p.calls)
	}
	if st := e.State(); !st.LastForcedUpdate.Equal(now) {
		t.Errorf("last forced update: got %v, want %v", st.LastForcedUpdate, now)
	}
}

func TestNoForcedResampleWhileDisplayOff(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	e.Process(Event{Raw: 30}, 0, t0)
	out := e.Process(Event{Raw: 40}, 0, t0.Add(10*time.Second))
	if out.Reason != ReasonCached {
		t.Errorf("got %s, want cached", out.Reason)
	}
}

func TestDisplayOffCorrection(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		aux  float64
		want float64
	}{
		{"below agc threshold", 500, 0, 486},
		{"lowest gain stage", 2000, 10, 1986},   // estimate 5
		{"second gain stage", 2000, 40, 3986},   // estimate 20
		{"third gain stage", 2000, 60, 7986},    // estimate 30
		{"highest gain stage", 2000, 80, 15986}, // estimate 40
		{"floored at zero", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &sampler{}
			p.set(255, 255, 255, t0)
			e := newEngine(t, DefaultConfig(false), p)

			out := e.Process(Event{Raw: tt.raw, Aux: tt.aux}, 0, t0)
			if out.Kind != Corrected {
				t.Fatalf("got %v %s", out.Kind, out.Reason)
			}
			em := out.Recompute.Emission
			if em.Correction != 0 || em.FullWhite != 0 {
				t.Errorf("emission with display off: correction %v fullwhite %v", em.Correction, em.FullWhite)
			}
			want := math.Max(tt.raw*out.Recompute.AGCGain-14, 0)
			if out.Value != want || out.Value != tt.want {
				t.Errorf("value: got %v, want %v (formula %v)", out.Value, tt.want, want)
			}
		})
	}
}

func TestHBRGainEstimateUsesRaw(t *testing.T) {
	cfg := DefaultConfig(true)
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, cfg, p)

	// estimate = 1000 * 1000 / 2000 = 500 -> second breakpoint
	out := e.Process(Event{Raw: 2000, Aux: 1000}, 0, t0)
	if out.Recompute.AGCGain != 2 {
		t.Errorf("agc gain: got %v, want 2", out.Recompute.AGCGain)
	}
	if out.Value != 3986 {
		t.Errorf("value: got %v, want 3986", out.Value)
	}
}

func TestWhiteScreenClampsToFullWhite(t *testing.T) {
	cfg := DefaultConfig(false)
	double := [4]float64{0, 0, 2, 0}
	cfg.RGBWPoly = [4][4]float64{double, double, double, {0, 0, 0, 0}}

	p := &sampler{}
	p.set(255, 255, 255, t0)
	e := newEngine(t, cfg, p)

	out := e.Process(Event{Raw: 10000}, cfg.MaxBrightness, t0)
	if out.Reason != ReasonAccepted {
		t.Fatalf("got %s, want accepted", out.Reason)
	}
	em := out.Recompute.Emission
	if em.FullWhite != 4400 {
		t.Errorf("fullwhite: got %v, want 4400", em.FullWhite)
	}
	if !approx(em.Correction, 4400) {
		t.Errorf("correction: got %v, want ceiling 4400 (unclamped sum 11600)", em.Correction)
	}
	if !approx(out.Value, 10000-4400-14) {
		t.Errorf("value: got %v, want %v", out.Value, 10000-4400-14)
	}
	// hysteresis max is widened by the full white contribution
	if st := e.State(); st.HystMax != 80000+4400 {
		t.Errorf("hyst max: got %v, want %v", st.HystMax, 80000+4400)
	}
}

func TestStaleCaptureDropsWithoutStateChange(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)
	e.Process(Event{Raw: 30}, 0, t0)
	before := e.State()

	now := t0.Add(5 * time.Second)
	p.stamp = now.Add(-1500 * time.Millisecond)
	out := e.Process(Event{Raw: 5000}, 0, now)
	if out.Kind != Dropped || out.Reason != ReasonStaleCapture {
		t.Fatalf("got %v %s, want stale drop", out.Kind, out.Reason)
	}
	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}

	// exactly at the age limit is still fresh
	p.stamp = now.Add(-time.Second)
	out = e.Process(Event{Raw: 5000}, 0, now)
	if out.Reason != ReasonAccepted {
		t.Errorf("sample at age limit: got %s, want accepted", out.Reason)
	}
}

func TestCaptureUnavailable(t *testing.T) {
	p := &sampler{err: errors.New("no capture service")}
	e := newEngine(t, DefaultConfig(false), p)
	before := e.State()

	out := e.Process(Event{Raw: 30}, 0, t0)
	if out.Kind != Dropped || out.Reason != ReasonCaptureUnavailable {
		t.Fatalf("got %v %s", out.Kind, out.Reason)
	}
	if out.Err == nil {
		t.Error("expected provider error in outcome")
	}
	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}

	// Next event retries independently and succeeds.
	p.err = nil
	p.set(0, 0, 0, t0.Add(10*time.Millisecond))
	out = e.Process(Event{Raw: 30}, 0, t0.Add(10*time.Millisecond))
	if out.Reason != ReasonAccepted {
		t.Errorf("retry: got %s, want accepted", out.Reason)
	}
}

func TestOvershootRejected(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.RGBWMaxLux = [4]float64{6000, 9000, 3000, 16000}

	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, cfg, p)

	out := e.Process(Event{Raw: 100}, 0, t0)
	if out.Value != 86 {
		t.Fatalf("first value: got %v, want 86", out.Value)
	}
	before := e.State()

	now := t0.Add(500 * time.Millisecond)
	p.set(255, 255, 255, now)
	out = e.Process(Event{Raw: 11000}, cfg.MaxBrightness, now)
	if out.Kind != Corrected || out.Reason != ReasonRejected {
		t.Fatalf("got %v %s, want rejected", out.Kind, out.Reason)
	}
	if out.Value != 86 {
		t.Errorf("rejected value: got %v, want cached 86", out.Value)
	}

	after := e.State()
	if after.LastCorrected != before.LastCorrected || after.HystMin != before.HystMin ||
		after.HystMax != before.HystMax || after.LastAGCGain != before.LastAGCGain {
		t.Errorf("rejection committed correction state: before %+v after %+v", before, after)
	}
	if !after.LastUpdate.Equal(now) {
		t.Errorf("last update: got %v, want %v", after.LastUpdate, now)
	}
}

func TestForcedRecomputeIgnoresOvershoot(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.RGBWMaxLux = [4]float64{6000, 9000, 3000, 16000}

	p := &sampler{}
	p.set(255, 255, 255, t0)
	e := newEngine(t, cfg, p)

	out := e.Process(Event{Raw: 11000}, cfg.MaxBrightness, t0)
	if out.Reason != ReasonAccepted {
		t.Fatalf("got %s, want accepted", out.Reason)
	}
	if out.Value != 0 {
		t.Errorf("value: got %v, want 0", out.Value)
	}
}

func TestBiasRemoval(t *testing.T) {
	cfg := DefaultConfig(false)
	cfg.Bias = 3

	tests := []struct {
		raw  float64
		want float64
	}{
		{30, 13},
		{2, 0},
	}
	for _, tt := range tests {
		p := &sampler{}
		p.set(0, 0, 0, t0)
		e := newEngine(t, cfg, p)
		out := e.Process(Event{Raw: tt.raw}, 0, t0)
		if out.Value != tt.want {
			t.Errorf("raw %v: got %v, want %v", tt.raw, out.Value, tt.want)
		}
	}
}

func TestOutputNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := &sampler{}
	e := newEngine(t, DefaultConfig(false), p)

	now := t0
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(400)) * time.Millisecond)
		p.set(rng.Float64()*255, rng.Float64()*255, rng.Float64()*255, now)
		ev := Event{Raw: rng.Float64() * 30000, Aux: rng.Float64() * 200}
		out := e.Process(ev, rng.Float64()*1023, now)
		if out.Kind == Corrected && out.Value < 0 {
			t.Fatalf("iteration %d: negative output %v for %+v", i, out.Value, ev)
		}
	}
}

func TestStatsCountReasons(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)

	e.Process(Event{Raw: 30}, 0, t0)                           // accepted
	e.Process(Event{Raw: 30}, 0, t0.Add(10*time.Millisecond))  // rate limited
	e.Process(Event{Raw: 40}, 0, t0.Add(200*time.Millisecond)) // cached
	e.Process(Event{Raw: 5000}, 0, t0.Add(5*time.Second))      // stale
	p.err = errors.New("gone")
	e.Process(Event{Raw: 5000}, 0, t0.Add(6*time.Second)) // unavailable

	s := e.Stats()
	want := Stats{Accepted: 1, RateLimited: 1, Cached: 1, StaleCapture: 1, CaptureUnavailable: 1}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
	if s.Total() != 5 {
		t.Errorf("total: got %d, want 5", s.Total())
	}
	for _, r := range Reasons {
		if r == ReasonRejected {
			continue
		}
		if s.Get(r) != 1 {
			t.Errorf("Get(%s): got %d, want 1", r, s.Get(r))
		}
	}
}

func TestForceUpdateMethod(t *testing.T) {
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e := newEngine(t, DefaultConfig(false), p)
	e.Process(Event{Raw: 30}, 0, t0)

	e.ForceUpdate()
	now := t0.Add(200 * time.Millisecond)
	p.stamp = now
	out := e.Process(Event{Raw: 40}, 0, now)
	if out.Reason != ReasonAccepted {
		t.Errorf("got %s, want accepted after ForceUpdate", out.Reason)
	}
}

func TestTraceHook(t *testing.T) {
	var lines int
	p := &sampler{}
	p.set(0, 0, 0, t0)
	e, _ := New(DefaultConfig(false), WithProvider(p), WithTrace(func(string, ...any) { lines++ }))
	e.Process(Event{Raw: 30}, 0, t0)
	if lines == 0 {
		t.Error("expected trace output")
	}
}

func TestConcurrentProcess(t *testing.T) {
	p := ProviderFunc(func() (ScreenColor, error) {
		return ScreenColor{Timestamp: time.Now()}, nil
	})
	e := newEngine(t, DefaultConfig(false), p)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				e.Process(Event{Raw: float64(i)}, 0, time.Now())
			}
		}()
	}
	wg.Wait()

	if got := e.Stats().Total(); got != 1000 {
		t.Errorf("total: got %d, want 1000", got)
	}
}
