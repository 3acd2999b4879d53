package web

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"time"

	"github.com/sweeney/als-corrector/internal/correction"
	"github.com/sweeney/als-corrector/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		switch {
		case days > 0:
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		case h > 0:
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		case m > 0:
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"lux": func(v float64) string {
		switch {
		case math.IsInf(v, 1):
			return "∞"
		case v < 0:
			return "-"
		}
		return fmt.Sprintf("%.1f", v)
	},
	"reasonOrNone": func(r correction.Reason) string {
		if r == "" {
			return "NONE"
		}
		return string(r)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>ALS Corrector</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.lux { font-size: 1.6em; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>ALS Corrector</h1>

<h2>Reading</h2>
<table>
<tr><th>Corrected</th><td class="lux">{{lux .Last.Lux}} lx</td></tr>
<tr><th>Raw</th><td>{{printf "%.0f" .Last.Raw}}</td></tr>
<tr><th>Brightness</th><td>{{printf "%.0f" .Last.Brightness}}</td></tr>
<tr><th>Last outcome</th><td>{{reasonOrNone .Last.Reason}}</td></tr>
<tr><th>Recent mean</th><td>{{lux .Mean}} lx (σ {{printf "%.1f" .StdDev}}, n={{len .Recent}})</td></tr>
</table>

<h2>Engine</h2>
<table>
<tr><th>Hysteresis</th><td>{{lux .Engine.HystMin}} .. {{lux .Engine.HystMax}}</td></tr>
<tr><th>AGC gain</th><td>{{printf "%.2f" .Engine.LastAGCGain}}</td></tr>
<tr><th>Forced update pending</th><td>{{if .Engine.ForceUpdate}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Outcomes</h2>
<table>
{{range .Outcomes}}<tr><th>{{.Reason}}</th><td>{{.Count}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Capture</th><td>{{.Config.Capture}}</td></tr>
<tr><th>Mode</th><td>{{if .Config.HBR}}HBR{{else}}normal{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a>{{if .Config.DBPath}} · <a href="/corrections.json">corrections</a>{{end}}</p>
</body>
</html>
`

type outcomeRow struct {
	Reason correction.Reason
	Count  int
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	rows := make([]outcomeRow, 0, len(correction.Reasons))
	for _, r := range correction.Reasons {
		rows = append(rows, outcomeRow{Reason: r, Count: snap.Stats.Get(r)})
	}
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Outcomes []outcomeRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Outcomes: rows,
	}
	return indexTmpl.Execute(w, data)
}
