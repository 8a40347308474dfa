package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/ntp-clock/internal/status"
)

var weekdays = [...]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	// Calendar weekdays count from 1 = Sunday.
	"weekday": func(n int) string {
		if n < 1 || n > len(weekdays) {
			return "?"
		}
		return weekdays[n-1]
	},
	"utc": func(epoch uint64) string {
		return time.Unix(int64(epoch), 0).UTC().Format("2006-01-02T15:04:05Z")
	},
	"offset": func(sec int64) string {
		sign := "+"
		if sec < 0 {
			sign = "-"
			sec = -sec
		}
		return fmt.Sprintf("UTC%s%02d:%02d", sign, sec/3600, sec%3600/60)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="5">
<title>NTP Clock</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
.time { font-size: 2.4em; margin: 0.4em 0; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.synced { color: green; font-weight: bold; }
.unsynced { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>NTP Clock</h1>

<div class="time">{{.Clock.Calendar.String}}</div>
<div>{{weekday .Clock.Weekday}} ({{offset .Config.OffsetSeconds}})</div>

<h2>Sync</h2>
<table>
<tr><th>Status</th><td class="{{if .Clock.Synced}}synced{{else}}unsynced{{end}}">{{if .Clock.Synced}}synced{{else}}not synced{{end}}</td></tr>
<tr><th>Phase</th><td>{{.Phase}}</td></tr>
<tr><th>Server</th><td>{{.Server}}</td></tr>
<tr><th>UTC</th><td>{{utc .Clock.Epoch}}</td></tr>
{{if .Stats.Syncs}}<tr><th>Last sync</th><td>{{utc .Stats.LastSync}}</td></tr>{{end}}
<tr><th>Resync</th><td>every {{.Config.ResyncSeconds}}s</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Requests</th><td>{{.Stats.Requests}}</td></tr>
<tr><th>Syncs</th><td>{{.Stats.Syncs}}</td></tr>
<tr><th>Timeouts</th><td>{{.Stats.Timeouts}}</td></tr>
<tr><th>Failures</th><td>{{.Stats.Failures}}</td></tr>
<tr><th>Bad replies</th><td>{{.Stats.BadReplies}}</td></tr>
</table>

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
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// The template needs Uptime as a field, not a method.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
