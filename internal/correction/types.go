// Package correction removes the light emitted by the display from ambient
// light sensor readings taken behind or next to the panel.
// This package has NO external dependencies (no sysfs, sockets, MQTT or
// time.Sleep). Time, display brightness and the screen color source are
// always injected by the caller.
package correction

import (
	"errors"
	"time"
)

// ErrUnavailable is returned by a ScreenColorProvider that cannot produce a sample.
var ErrUnavailable = errors.New("screen color unavailable")

// Event is a single raw sensor sample.
type Event struct {
	Raw float64 // illuminance channel, raw counts
	Aux float64 // auxiliary channel used for gain estimation
}

// Kind tells the caller whether to publish or drop the event.
type Kind int

const (
	Dropped Kind = iota
	Corrected
)

func (k Kind) String() string {
	if k == Corrected {
		return "CORRECTED"
	}
	return "DROPPED"
}

// Reason records which path Process took.
type Reason string

const (
	ReasonRateLimited        Reason = "RATE_LIMITED"
	ReasonCached             Reason = "CACHED"
	ReasonAccepted           Reason = "RECOMPUTE_ACCEPTED"
	ReasonRejected           Reason = "RECOMPUTE_REJECTED"
	ReasonCaptureUnavailable Reason = "CAPTURE_UNAVAILABLE"
	ReasonStaleCapture       Reason = "STALE_CAPTURE"
)

// Reasons lists every Reason in a stable order.
var Reasons = []Reason{
	ReasonRateLimited,
	ReasonCached,
	ReasonAccepted,
	ReasonRejected,
	ReasonCaptureUnavailable,
	ReasonStaleCapture,
}

// Outcome is the result of processing one event.
type Outcome struct {
	Kind   Kind
	Value  float64 // corrected lux, only meaningful when Kind == Corrected
	Reason Reason
	// Recompute is set when a screen sample was used (accepted or rejected).
	Recompute *Recomputation
	// Err carries the provider error for ReasonCaptureUnavailable.
	Err error
}

// Recomputation holds the intermediate values of a full recomputation.
type Recomputation struct {
	Color        ScreenColor
	Emission     Emission
	RawCorrected float64
	AGCGain      float64
	Forced       bool
}

// ScreenColor is the average color of the display area above the sensor.
// Channels are in the range [0, Tuning.ChannelMax].
type ScreenColor struct {
	R, G, B   float64
	Timestamp time.Time
}

// ScreenColorProvider samples the display area above the sensor.
// A synchronous provider blocks until a fresh capture is available; an
// asynchronous one returns its most recent capture with the capture time.
type ScreenColorProvider interface {
	Sample() (ScreenColor, error)
}

// ProviderFunc adapts a function to ScreenColorProvider.
type ProviderFunc func() (ScreenColor, error)

// Sample calls f.
func (f ProviderFunc) Sample() (ScreenColor, error) {
	return f()
}

// State is the mutable engine state. It is a value type; Engine.State
// returns a copy.
type State struct {
	// Whether the first event has been processed (COLD -> WARM)
	Started          bool
	LastUpdate       time.Time
	LastForcedUpdate time.Time
	// Bypasses the hysteresis gate on the next processed event
	ForceUpdate   bool
	HystMin       float64
	HystMax       float64
	LastCorrected float64
	LastAGCGain   float64
}

func initialState() State {
	return State{
		ForceUpdate: true,
		HystMin:     -1,
		HystMax:     -1,
	}
}

// Stats counts Process results by reason since the engine was created.
type Stats struct {
	RateLimited        int
	Cached             int
	Accepted           int
	Rejected           int
	CaptureUnavailable int
	StaleCapture       int
}

func (s *Stats) count(r Reason) {
	switch r {
	case ReasonRateLimited:
		s.RateLimited++
	case ReasonCached:
		s.Cached++
	case ReasonAccepted:
		s.Accepted++
	case ReasonRejected:
		s.Rejected++
	case ReasonCaptureUnavailable:
		s.CaptureUnavailable++
	case ReasonStaleCapture:
		s.StaleCapture++
	}
}

// Get returns the counter for r.
func (s Stats) Get(r Reason) int {
	switch r {
	case ReasonRateLimited:
		return s.RateLimited
	case ReasonCached:
		return s.Cached
	case ReasonAccepted:
		return s.Accepted
	case ReasonRejected:
		return s.Rejected
	case ReasonCaptureUnavailable:
		return s.CaptureUnavailable
	case ReasonStaleCapture:
		return s.StaleCapture
	}
	return 0
}

// Total returns the number of processed events.
func (s Stats) Total() int {
	return s.RateLimited + s.Cached + s.Accepted + s.Rejected + s.CaptureUnavailable + s.StaleCapture
}
