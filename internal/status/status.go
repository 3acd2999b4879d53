// Package status provides a thread-safe status tracker for the als-corrector
// daemon. It is read by the HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sweeney/als-corrector/internal/correction"
)

// Window is the number of recent corrected values kept for statistics.
const Window = 64

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs      int64
	HeartbeatMs int64
	MinDelta    float64
	Broker      string
	HTTPAddr    string
	Capture     string
	HBR         bool
	DBPath      string
}

// Reading is the last event seen by the run loop.
type Reading struct {
	Raw        float64
	Aux        float64
	Brightness float64
	Lux        float64
	Reason     correction.Reason
	Time       time.Time
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Last          Reading
	Engine        correction.State
	Stats         correction.Stats
	Recent        []float64
	Mean          float64
	StdDev        float64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu     sync.RWMutex
	snap   Snapshot
	recent []float64 // ring of the last Window corrected values
	next   int
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update records the outcome of one processed event.
// Called from runLoop on every event that reached the engine.
func (t *Tracker) Update(ev correction.Event, brightness float64, out correction.Outcome, st correction.State, stats correction.Stats, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.snap.Last = Reading{
		Raw:        ev.Raw,
		Aux:        ev.Aux,
		Brightness: brightness,
		Lux:        t.snap.Last.Lux,
		Reason:     out.Reason,
		Time:       now,
	}
	t.snap.Engine = st
	t.snap.Stats = stats
	if out.Kind != correction.Corrected {
		return
	}
	t.snap.Last.Lux = out.Value
	if len(t.recent) < Window {
		t.recent = append(t.recent, out.Value)
		return
	}
	t.recent[t.next] = out.Value
	t.next = (t.next + 1) % Window
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// Recent is ordered oldest first. The Now field is set to the current time.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	recent := make([]float64, 0, len(t.recent))
	recent = append(recent, t.recent[t.next:]...)
	recent = append(recent, t.recent[:t.next]...)
	t.mu.RUnlock()

	s.Recent = recent
	if len(recent) > 0 {
		s.Mean = stat.Mean(recent, nil)
	}
	if len(recent) > 1 {
		s.StdDev = stat.StdDev(recent, nil)
	}
	s.Now = time.Now()
	return s
}
