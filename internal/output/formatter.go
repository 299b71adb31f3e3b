package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/selimozcann/redirectvalidator/internal/model"
)

// ChainSeparator joins the URLs of a redirect chain.
const ChainSeparator = " --> "

// Summary contains the end-of-scan counters.
type Summary struct {
	Total       int64
	Processed   int64
	Findings    int64
	Failed      int64
	Reasons     map[model.Reason]int64
	Elapsed     time.Duration
	Interrupted bool
}

// Console prints findings and the final summary.
type Console struct {
	w     io.Writer
	tag   *color.Color
	body  *color.Color
	warn  *color.Color
	muted *color.Color
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:     w,
		tag:   color.New(color.FgGreen, color.Bold),
		body:  color.New(color.FgHiGreen),
		warn:  color.New(color.FgYellow),
		muted: color.New(color.FgHiBlack),
	}
}

// FormatFinding renders the plain finding line without colours.
func FormatFinding(f model.Finding) string {
	return fmt.Sprintf("%s redirects to %s", f.Target, strings.Join(f.Locations(), ChainSeparator))
}

// Finding prints one finding line.
func (c *Console) Finding(f model.Finding) {
	line := c.tag.Sprint("[FOUND]") + " " + c.body.Sprint(FormatFinding(f))
	if len(f.Tags) > 0 {
		line += " " + c.warn.Sprintf("[%s]", strings.Join(f.Tags, ","))
	}
	fmt.Fprintln(c.w, line)
}

// Summary prints the closing counters.
func (c *Console) Summary(s Summary) {
	if s.Interrupted {
		fmt.Fprintln(c.w, c.warn.Sprint("[!] Scan interrupted"))
	}
	if s.Findings == 0 {
		fmt.Fprintln(c.w, c.muted.Sprint("No open redirects found"))
	}
	fmt.Fprintf(c.w, "%s processed %d/%d | findings %d | failed %d%s | %s\n",
		c.tag.Sprint("[DONE]"), s.Processed, s.Total, s.Findings, s.Failed,
		formatReasons(s.Reasons), s.Elapsed.Round(time.Millisecond))
}

func formatReasons(reasons map[model.Reason]int64) string {
	if len(reasons) == 0 {
		return ""
	}
	keys := make([]string, 0, len(reasons))
	for k := range reasons {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, reasons[model.Reason(k)]))
	}
	return " (" + strings.Join(parts, " ") + ")"
}
