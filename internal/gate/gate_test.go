package gate

import (
	"testing"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func corrected(v float64) correction.Outcome {
	return correction.Outcome{Kind: correction.Corrected, Value: v, Reason: correction.ReasonCached}
}

func TestProcessMinDelta(t *testing.T) {
	g := New(5, t0)

	steps := []struct {
		out  correction.Outcome
		want bool
	}{
		{correction.Outcome{Kind: correction.Dropped, Reason: correction.ReasonRateLimited}, false},
		{corrected(100), true},
		{corrected(104.9), false},
		{corrected(96), false},
		{corrected(95), true},
		{corrected(95), false},
		{correction.Outcome{Kind: correction.Dropped, Reason: correction.ReasonStaleCapture}, false},
		{corrected(0), true},
	}
	for i, s := range steps {
		if got := g.Process(s.out); got != s.want {
			t.Errorf("step %d (%v): got %v, want %v", i, s.out.Value, got, s.want)
		}
	}

	c := g.Counts()
	if c.Published != 3 || c.Suppressed != 3 {
		t.Errorf("counts: got %+v, want 3 published, 3 suppressed", c)
	}
	if v, ok := g.LastPublished(); !ok || v != 0 {
		t.Errorf("LastPublished: got (%v, %v)", v, ok)
	}
}

func TestProcessZeroDeltaPublishesChanges(t *testing.T) {
	g := New(0, t0)
	if !g.Process(corrected(1)) {
		t.Error("first reading should be published")
	}
	if !g.Process(corrected(1.01)) {
		t.Error("any change should be published with zero min delta")
	}
	if !g.Process(corrected(1.01)) {
		t.Error("zero min delta publishes every corrected reading")
	}
}

func TestLastPublishedInitially(t *testing.T) {
	if _, ok := New(1, t0).LastPublished(); ok {
		t.Error("expected no published value initially")
	}
}

func TestCheckHeartbeat(t *testing.T) {
	g := New(5, t0)
	g.Process(corrected(10))

	if hb := g.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Fatal("heartbeat before interval")
	}
	hb := g.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute || hb.Counts.Published != 1 {
		t.Errorf("heartbeat: got %+v", hb)
	}
	if hb := g.CheckHeartbeat(t0.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat interval should restart")
	}
	if hb := g.CheckHeartbeat(t0.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat")
	}
}

func TestHeartbeatForcesNextReading(t *testing.T) {
	g := New(5, t0)
	g.Process(corrected(10))
	if g.Process(corrected(10)) {
		t.Fatal("unchanged reading should be suppressed")
	}

	g.CheckHeartbeat(t0.Add(time.Hour), 15*time.Minute)
	if !g.Process(corrected(10)) {
		t.Error("first reading after a heartbeat should be published")
	}
	if g.Process(corrected(10)) {
		t.Error("force applies to one reading only")
	}
}

func TestHeartbeatDisabled(t *testing.T) {
	g := New(5, t0)
	for _, interval := range []time.Duration{0, -time.Second} {
		if hb := g.CheckHeartbeat(t0.Add(24*time.Hour), interval); hb != nil {
			t.Errorf("interval %v: expected no heartbeat", interval)
		}
	}
}
