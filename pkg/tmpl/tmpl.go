// Package tmpl renders the text templates used for human-readable output.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// pad right-pads s with spaces to width.
func pad(width int, s string) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// pct formats part/total as a percentage with one decimal. A zero total
// yields "-".
func pct(part, total int) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(part)/float64(total))
}

// dur rounds d to the millisecond for display.
func dur(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}

var funcs = template.FuncMap{
	"pad": pad,
	"pct": pct,
	"dur": dur,
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - pad: right-pad a string to a width ({{ pad 12 .Name }})
//   - pct: percentage of two ints ({{ pct .Failed .Received }})
//   - dur: duration rounded to milliseconds
func Render(tmpl string, data any) (string, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}
