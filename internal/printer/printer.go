// Package printer writes colored status output for the CLI.
package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/hay-kot/criterio"
)

// ANSI color codes (Tokyo Night palette)
const (
	ColorReset     = "\033[0m"
	ColorRed       = "\033[38;2;215;95;107m"  // #d75f6b
	ColorGreen     = "\033[38;2;158;206;106m" // #9ece6a (Tokyo Night green)
	ColorYellow    = "\033[38;2;224;175;104m" // #e0af68 (Tokyo Night yellow)
	ColorGray      = "\033[38;2;86;95;137m"   // #565f89 (Tokyo Night comment)
	ColorBold      = "\033[1m"
	ColorUnderline = "\033[4m"
)

// Symbols
const (
	Check = "✔"
	Cross = "✘"
	Dot   = "•"
)

type ctxKey struct{}

// Printer writes status lines to a writer, usually stderr so that
// reports on stdout stay pipeable.
type Printer struct {
	writer io.Writer
}

func New(w io.Writer) *Printer {
	return &Printer{writer: w}
}

// NewContext returns a context with the printer attached
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx retrieves the printer from context, or creates a default one
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok {
		return p
	}
	return New(os.Stderr)
}

// FatalError prints err in a box. Validation errors get one line per
// field and joined errors one line per error. It does not exit.
func (p *Printer) FatalError(err error) {
	if err == nil {
		return
	}

	var fieldErrs criterio.FieldErrors
	if errors.As(err, &fieldErrs) {
		p.box("Validation Error", errContext(err, fieldErrs), fieldLines(p, fieldErrs))
		return
	}

	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	lines := make([]string, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, p.colorize(ColorGray, e.Error()))
	}
	p.box("Error", "", lines)
}

// errContext returns the text wrapped around fieldErrs, e.g.
// "invalid scenario" for "invalid scenario: steps[0].from: ...".
func errContext(err error, fieldErrs criterio.FieldErrors) string {
	errStr := err.Error()
	if idx := strings.Index(errStr, fieldErrs.Error()); idx > 0 {
		return strings.TrimSuffix(errStr[:idx], ": ")
	}
	return ""
}

func fieldLines(p *Printer, fieldErrs criterio.FieldErrors) []string {
	lines := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		line := p.colorize(ColorRed, Cross) + " "
		if fe.Field != "" {
			line += p.colorize(ColorGray, fe.Field+": ")
		}
		lines = append(lines, line+fe.Err.Error())
	}
	return lines
}

func (p *Printer) box(title, header string, lines []string) {
	bar := p.colorize(ColorRed, "│")

	p.write(p.colorize(ColorRed, "╭ "+title))
	if header != "" {
		p.write(bar + " " + p.colorize(ColorGray, header))
		p.write(bar)
	}
	for _, l := range lines {
		p.write(bar + " " + l)
	}
	p.write(p.colorize(ColorRed, "╵"))
}

// Errorf prints an error message in red
func (p *Printer) Errorf(format string, args ...any) {
	p.write(p.colorize(ColorRed, Cross+" "+fmt.Sprintf(format, args...)))
}

// Successf prints a success message in green
func (p *Printer) Successf(format string, args ...any) {
	p.write(p.colorize(ColorGreen, Check+" "+fmt.Sprintf(format, args...)))
}

// Success prints a success message with details on a separate line
func (p *Printer) Success(message string, details string) {
	p.write(p.colorize(ColorGreen, Check+" "+message))
	if details != "" {
		p.write("  " + p.colorize(ColorGray, details))
	}
}

// Infof prints an info message in gray
func (p *Printer) Infof(format string, args ...any) {
	p.write(p.colorize(ColorGray, Dot+" "+fmt.Sprintf(format, args...)))
}

// Printf prints a plain message without colors
func (p *Printer) Printf(format string, args ...any) {
	p.write(fmt.Sprintf(format, args...))
}

// Section prints a section header (bold + underlined)
func (p *Printer) Section(title string) {
	p.write(ColorBold + ColorUnderline + title + ColorReset)
}

// CheckItem prints a success item with green checkmark
func (p *Printer) CheckItem(label, detail string) {
	p.item(ColorGreen, Check, label, detail)
}

// WarnItem prints a warning item with yellow dot
func (p *Printer) WarnItem(label, detail string) {
	p.item(ColorYellow, Dot, label, detail)
}

// FailItem prints a failure item with red cross
func (p *Printer) FailItem(label, detail string) {
	p.item(ColorRed, Cross, label, detail)
}

// StepError prints a scenario step that could not be carried out.
func (p *Printer) StepError(index int, action string, err error) {
	p.FailItem(fmt.Sprintf("step %d (%s)", index, action), err.Error())
}

// Chain prints the digest-chain status of one agent's history and
// reports whether it is intact.
func (p *Printer) Chain(agentID string, entries int, err error) bool {
	if err != nil {
		p.FailItem(agentID, err.Error())
		return false
	}
	p.CheckItem(agentID, fmt.Sprintf("%d entries, chain intact", entries))
	return true
}

// Tally prints a passed/warned/failed summary line, colored by the
// worst non-zero count.
func (p *Printer) Tally(passed, warned, failed int) {
	color := ColorGreen
	switch {
	case failed > 0:
		color = ColorRed
	case warned > 0:
		color = ColorYellow
	}
	p.write(p.colorize(color, fmt.Sprintf("Summary: %d passed, %d warnings, %d failed", passed, warned, failed)))
}

func (p *Printer) item(color, symbol, label, detail string) {
	line := "  " + p.colorize(color, symbol) + " " + label
	if detail != "" {
		line += ": " + detail
	}
	p.write(line)
}

func (p *Printer) write(line string) {
	_, _ = io.WriteString(p.writer, line+"\n")
}

func (p *Printer) colorize(color, text string) string {
	return color + text + ColorReset
}

// Outcome renders a history outcome for use in tables: processed is
// green, delivered (not yet handled) yellow, failed red with detail.
func Outcome(o history.Outcome, detail string) string {
	switch o {
	case history.OutcomeProcessed:
		return ColorGreen + Check + ColorReset + " " + string(o)
	case history.OutcomeFailed:
		msg := string(o)
		if detail != "" {
			msg += ": " + detail
		}
		return ColorRed + Cross + ColorReset + " " + msg
	default:
		return ColorYellow + Dot + ColorReset + " " + string(o)
	}
}
