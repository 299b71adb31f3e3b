package output

import (
	"html/template"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/selimozcann/redirectvalidator/internal/model"
)

// PageData provides the full context for the HTML report.
type PageData struct {
	Title         string
	GeneratedAt   time.Time
	Params        map[string]string
	OrderedParams []Param
	Summary       Summary
	Findings      []model.Finding
}

// Param represents a rendered CLI argument/value pair.
type Param struct {
	Key   string
	Value string
}

// FailureRow is one failure reason with its count.
type FailureRow struct {
	Reason string
	Count  int64
}

// Failures returns the failure counters sorted by reason.
func (p PageData) Failures() []FailureRow {
	rows := make([]FailureRow, 0, len(p.Summary.Reasons))
	for k, v := range p.Summary.Reasons {
		rows = append(rows, FailureRow{Reason: string(k), Count: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Reason < rows[j].Reason })
	return rows
}

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"formatTime": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	"join":       strings.Join,
	"inc":        func(i int) int { return i + 1 },
	"chain":      func(f model.Finding) string { return strings.Join(f.Locations(), ChainSeparator) },
}).Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
:root { color-scheme: light dark; }
body { font-family: system-ui, -apple-system, Segoe UI, Roboto, sans-serif; margin: 24px; background:#fafafa; color:#111; }
h1 { font-size: 26px; margin: 0 0 8px; }
.section { border:1px solid #e5e7eb; border-radius:16px; padding:16px 20px; margin-bottom:18px; background:#fff; }
h2 { font-size:20px; margin:0 0 12px; }
dt { font-weight:600; }
dd { margin:0 0 8px 0; }
.summary-grid { display:grid; gap:12px; grid-template-columns: repeat(auto-fit,minmax(160px,1fr)); }
.summary-card { padding:12px; border-radius:12px; border:1px solid #cbd5f5; background:linear-gradient(180deg,#eef2ff,#fff); }
.summary-card .badge { float:right; padding:2px 10px; border-radius:999px; background:#4f46e5; color:#fff; font-size:12px; }
.meta { color:#6b7280; font-size:12px; }
.badge-inline { display:inline-block; padding:2px 8px; border-radius:999px; background:#fde68a; font-size:12px; margin-left:6px; }
.table { width:100%; border-collapse:collapse; font-size:14px; }
.table th, .table td { border-bottom:1px solid #e5e7eb; padding:6px 8px; text-align:left; vertical-align:top; }
.chain-url { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size:13px; word-break:break-all; }
.footer { text-align:center; font-size:12px; color:#6b7280; margin-top:24px; }
@media (prefers-color-scheme: dark) {
        body { background:#0f172a; color:#e2e8f0; }
        .section { background:#1e293b; border-color:#334155; }
        .summary-card { background:linear-gradient(180deg,#312e81,#1e293b); border-color:#4338ca; color:#e0e7ff; }
        .meta { color:#94a3b8; }
        .badge-inline { background:#854d0e; }
}
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <p class="meta">Generated at {{formatTime .GeneratedAt}}{{if .Summary.Interrupted}} (interrupted){{end}}</p>
</header>
<section id="summary" class="section">
  <h2>Summary</h2>
  <div class="summary-grid">
    <div class="summary-card"><strong>Probes</strong><span class="badge">{{.Summary.Processed}}/{{.Summary.Total}}</span></div>
    <div class="summary-card"><strong>Open Redirects</strong><span class="badge">{{.Summary.Findings}}</span></div>
    <div class="summary-card"><strong>Failed Probes</strong><span class="badge">{{.Summary.Failed}}</span></div>
  </div>
  {{with .Failures}}
  <ul class="meta">
    {{range .}}<li>{{.Reason}}: {{.Count}}</li>{{end}}
  </ul>
  {{end}}
</section>
<section id="parameters" class="section">
  <h2>Parameters</h2>
  <dl>
  {{- range .OrderedParams }}
    <dt>{{.Key}}</dt>
    <dd><span class="chain-url">{{.Value}}</span></dd>
  {{- end }}
  </dl>
</section>
<section id="findings" class="section">
  <h2>Findings</h2>
  {{if not .Findings}}
    <p class="meta">No open redirects found.</p>
  {{else}}
  <table class="table">
    <thead>
      <tr><th>#</th><th>Vulnerable Endpoint</th><th>Redirected To</th><th>Chain</th></tr>
    </thead>
    <tbody>
    {{range $i, $f := .Findings}}
      <tr>
        <td>{{inc $i}}</td>
        <td class="chain-url">{{$f.Target}}<div class="meta">payload: {{$f.Payload}}</div></td>
        <td class="chain-url">{{$f.Destination}}{{if $f.DestinationDomain}}<div class="meta">{{$f.DestinationDomain}}</div>{{end}}{{range $f.Tags}}<span class="badge-inline">{{.}}</span>{{end}}</td>
        <td class="chain-url">{{chain $f}}</td>
      </tr>
    {{end}}
    </tbody>
  </table>
  {{end}}
</section>
<footer class="footer">
  redirectvalidator report generated at {{formatTime .GeneratedAt}}
</footer>
</body>
</html>
`))

// RenderHTML renders the HTML report using the provided data.
func RenderHTML(w io.Writer, data PageData) error {
	if data.Params != nil {
		keys := make([]string, 0, len(data.Params))
		for k := range data.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make([]Param, 0, len(keys))
		for _, k := range keys {
			ordered = append(ordered, Param{Key: k, Value: data.Params[k]})
		}
		data.OrderedParams = ordered
	}
	return htmlTemplate.Execute(w, data)
}
