package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	Last          LastJSON       `json:"last"`
	Engine        EngineJSON     `json:"engine"`
	Outcomes      map[string]int `json:"outcomes"`
	Recent        RecentJSON     `json:"recent"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// LastJSON is the most recent event.
type LastJSON struct {
	Raw        float64 `json:"raw"`
	Aux        float64 `json:"aux"`
	Brightness float64 `json:"brightness"`
	Lux        float64 `json:"lux"`
	Reason     string  `json:"reason,omitempty"`
	Timestamp  string  `json:"timestamp,omitempty"`
}

// EngineJSON is the correction engine state. Unbounded hysteresis limits
// are omitted since JSON has no infinity.
type EngineJSON struct {
	ForceUpdate   bool     `json:"force_update"`
	HystMin       *float64 `json:"hyst_min,omitempty"`
	HystMax       *float64 `json:"hyst_max,omitempty"`
	LastCorrected float64  `json:"last_corrected"`
	AGCGain       float64  `json:"agc_gain"`
}

// RecentJSON summarizes the recent corrected values.
type RecentJSON struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64   `json:"poll_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	MinDelta    float64 `json:"min_delta"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
	Capture     string  `json:"capture"`
	HBR         bool    `json:"hbr"`
	Database    string  `json:"database,omitempty"`
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	outcomes := make(map[string]int)
	for _, r := range correction.Reasons {
		outcomes[string(r)] = snap.Stats.Get(r)
	}

	inner := StatusInner{
		Ready:         snap.Engine.Started,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Last: LastJSON{
			Raw:        snap.Last.Raw,
			Aux:        snap.Last.Aux,
			Brightness: snap.Last.Brightness,
			Lux:        snap.Last.Lux,
			Reason:     string(snap.Last.Reason),
		},
		Engine: EngineJSON{
			ForceUpdate:   snap.Engine.ForceUpdate,
			HystMin:       finite(snap.Engine.HystMin),
			HystMax:       finite(snap.Engine.HystMax),
			LastCorrected: snap.Engine.LastCorrected,
			AGCGain:       snap.Engine.LastAGCGain,
		},
		Outcomes: outcomes,
		Recent: RecentJSON{
			Count:  len(snap.Recent),
			Mean:   snap.Mean,
			StdDev: snap.StdDev,
		},
		MQTT: MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			MinDelta:    snap.Config.MinDelta,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Capture:     snap.Config.Capture,
			HBR:         snap.Config.HBR,
			Database:    snap.Config.DBPath,
		},
	}
	if !snap.Last.Time.IsZero() {
		inner.Last.Timestamp = snap.Last.Time.UTC().Format(time.RFC3339Nano)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
