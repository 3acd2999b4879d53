// Package gate decides which corrected readings are worth publishing and
// when the daemon owes the broker a heartbeat. It contains no I/O; time is
// passed in by the caller.
package gate

import (
	"math"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

// Counts tracks publish decisions since startup.
type Counts struct {
	Published  int
	Suppressed int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}

// Gate suppresses readings that moved less than MinDelta lux from the last
// published value. The first reading and the first one after a heartbeat
// are always published.
type Gate struct {
	minDelta      float64
	startTime     time.Time
	lastHeartbeat time.Time
	last          float64
	published     bool
	forceNext     bool
	counts        Counts
}

// New creates a Gate. startTime is the reference for uptime and the first
// heartbeat.
func New(minDelta float64, startTime time.Time) *Gate {
	return &Gate{
		minDelta:      minDelta,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process reports whether out should be published. Dropped outcomes are
// never published.
func (g *Gate) Process(out correction.Outcome) bool {
	if out.Kind != correction.Corrected {
		return false
	}
	if g.published && !g.forceNext && math.Abs(out.Value-g.last) < g.minDelta {
		g.counts.Suppressed++
		return false
	}
	g.last = out.Value
	g.published = true
	g.forceNext = false
	g.counts.Published++
	return true
}

// LastPublished returns the last published value and whether there is one.
func (g *Gate) LastPublished() (float64, bool) {
	return g.last, g.published
}

// Counts returns a copy of the publish counters.
func (g *Gate) Counts() Counts {
	return g.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since
// the last heartbeat (or startup), and marks the next reading for
// publication. Returns nil if interval is <= 0 (disabled).
func (g *Gate) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(g.lastHeartbeat) < interval {
		return nil
	}

	g.lastHeartbeat = now
	g.forceNext = true
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(g.startTime),
		Counts:    g.counts,
	}
}
