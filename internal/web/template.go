package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/Katharine/hypnos/internal/status"
)

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
	"onOff": func(b bool) string {
		if b {
			return "ON"
		}
		return "OFF"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hypnos</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.unknown { color: orange; }
.alarming { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Hypnos</h1>

<h2>Bed</h2>
<table>
<tr><th>Mode</th><td class="{{if eq .Bed.Mode.String "ALARMING"}}alarming{{else if eq .Bed.Mode.String "UNKNOWN"}}unknown{{end}}">{{.Bed.Mode}}</td></tr>
<tr><th>Power</th><td class="{{if .Bed.BedState}}on{{else}}off{{end}}">{{onOff .Bed.BedState}}</td></tr>
<tr><th>Requested Power</th><td class="{{if .Bed.RequestedState}}on{{else}}off{{end}}">{{onOff .Bed.RequestedState}}</td></tr>
<tr><th>Target Temp</th><td>{{.Bed.BedTargetTemp}}</td></tr>
<tr><th>Local Target Temp</th><td>{{.Bed.LocalTargetTemp}}</td></tr>
<tr><th>Actual Temp</th><td>{{.Bed.BedActualTemp}}</td></tr>
{{if .Bed.NextAlarm}}<tr><th>Next Alarm</th><td>{{.Bed.NextAlarm.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Authenticated</th><td class="{{if .Authenticated}}connected{{else}}disconnected{{end}}">{{if .Authenticated}}yes{{else}}no{{end}}</td></tr>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Bed Poll</th><td>{{.Config.BedPollMs}}ms</td></tr>
<tr><th>Alarm Poll</th><td>{{.Config.AlarmPollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
