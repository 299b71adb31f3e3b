package banner

import (
	"io"

	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
)

// Print writes the startup banner to w.
func Print(w io.Writer) {
	myFigure := figure.NewColorFigure("ORValidator", "doom", "green", true)
	_, _ = io.WriteString(w, myFigure.ColorString())

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
	_, _ = green.Fprintln(w, "    Open Redirect Validator | HEAD probes, cross-origin checks")
	_, _ = cyan.Fprintln(w, "════════════════════════════════════════════════")
}
