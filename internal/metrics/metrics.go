// Package metrics exposes correction engine counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/als-corrector/internal/correction"
)

var (
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "als",
		Subsystem: "engine",
		Name:      "outcomes_total",
		Help:      "Processed sensor events by outcome reason",
	}, []string{"reason"})

	CorrectedLux = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "als",
		Name:      "corrected_lux",
		Help:      "Last corrected illuminance",
	})

	Raw = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "als",
		Name:      "raw",
		Help:      "Last raw sensor reading",
	})

	DisplayBrightness = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "als",
		Name:      "display_brightness",
		Help:      "Display brightness at the last event",
	})

	AGCGain = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "als",
		Name:      "agc_gain",
		Help:      "Inverse gain selected by the last recomputation",
	})

	CaptureLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "als",
		Name:      "capture_duration_seconds",
		Help:      "Screen color sample duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	CaptureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "als",
		Name:      "capture_errors_total",
		Help:      "Failed screen color samples",
	})

	SensorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "als",
		Name:      "sensor_errors_total",
		Help:      "Failed sensor or backlight reads",
	})
)

// Record updates the metrics for one processed event.
func Record(ev correction.Event, brightness float64, out correction.Outcome) {
	Outcomes.WithLabelValues(string(out.Reason)).Inc()
	Raw.Set(ev.Raw)
	DisplayBrightness.Set(brightness)
	if out.Kind == correction.Corrected {
		CorrectedLux.Set(out.Value)
	}
	if out.Recompute != nil {
		AGCGain.Set(out.Recompute.AGCGain)
	}
}

// TimedProvider wraps p so every sample is timed and failures counted.
func TimedProvider(p correction.ScreenColorProvider) correction.ScreenColorProvider {
	return correction.ProviderFunc(func() (correction.ScreenColor, error) {
		start := time.Now()
		c, err := p.Sample()
		CaptureLatency.Observe(time.Since(start).Seconds())
		if err != nil {
			CaptureErrors.Inc()
		}
		return c, err
	})
}
