package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/printer"
	"github.com/AutonomosCdM/first-court-sub000/internal/report"
	"github.com/urfave/cli/v3"
)

type HistoryCmd struct {
	flags *Flags

	// Command-specific flags
	agents      []string
	subjects    []string
	since       string
	correlation string
	format      string
	verify      bool
}

// NewHistoryCmd creates a new history command
func NewHistoryCmd(flags *Flags) *HistoryCmd {
	return &HistoryCmd{flags: flags}
}

// Register adds the history command to the application
func (cmd *HistoryCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "history",
		Usage:     "View exported agent histories",
		UsageText: "court history [options]",
		Description: `Lists the history entries exported by the last run.

Agents and subjects are matched with glob patterns. --since accepts a
duration relative to now (e.g. 15m) or an RFC 3339 timestamp.
--correlation selects a single request/response thread.
Use --verify to check each agent's digest chain instead of listing entries.`,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:        "agent",
				Aliases:     []string{"a"},
				Usage:       "agent id glob (repeatable)",
				Destination: &cmd.agents,
			},
			&cli.StringSliceFlag{
				Name:        "subject",
				Aliases:     []string{"s"},
				Usage:       "subject glob (repeatable)",
				Destination: &cmd.subjects,
			},
			&cli.StringFlag{
				Name:        "since",
				Usage:       "only entries at or after this time",
				Destination: &cmd.since,
			},
			&cli.StringFlag{
				Name:        "correlation",
				Usage:       "only entries in this thread",
				Destination: &cmd.correlation,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
			&cli.BoolFlag{
				Name:        "verify",
				Usage:       "verify digest chains",
				Destination: &cmd.verify,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *HistoryCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)

	filter, err := report.NewFilter(cmd.agents, cmd.subjects)
	if err != nil {
		return err
	}

	var since time.Time
	if cmd.since != "" {
		since, err = parseSince(cmd.since, time.Now())
		if err != nil {
			return err
		}
	}

	s, err := cmd.flags.HistoryStore()
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	if s == nil {
		return ErrExportDisabled
	}

	histories, err := loadHistories(ctx, s, filter)
	if err != nil {
		return err
	}
	if len(histories) == 0 {
		p.Infof("No exported histories")
		return nil
	}

	if cmd.verify {
		return cmd.runVerify(p, histories)
	}

	var entries []history.Entry
	for _, h := range histories {
		snap := history.NewSnapshot(h.AgentID(), filter.Entries(h))
		if cmd.correlation != "" {
			snap = history.NewSnapshot(h.AgentID(), snap.EntriesForCorrelation(cmd.correlation))
		}
		if !since.IsZero() {
			snap = history.NewSnapshot(h.AgentID(), snap.EntriesSince(since))
		}
		entries = append(entries, snap.Entries()...)
	}

	if cmd.format == "json" {
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		p.Infof("No matching entries")
		return nil
	}

	w := tabwriter.NewWriter(c.Root().Writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "AGENT\tSEQ\tTIME\tDIRECTION\tOUTCOME\tTYPE\tPRIORITY\tFROM\tTO\tSUBJECT")

	for _, e := range entries {

		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.AgentID,
			e.Seq,
			e.Timestamp.Format("2006-01-02 15:04:05.000"),
			e.Direction,
			printer.Outcome(e.Outcome, e.Error),
			e.Message.Type(),
			e.Message.Priority(),
			e.Message.From(),
			e.Message.To(),
			truncate(e.Message.Subject(), 40),
		)
	}

	return w.Flush()
}

func (cmd *HistoryCmd) runVerify(p *printer.Printer, histories []history.Reader) error {
	p.Section("Digest chains")

	broken := 0
	for _, h := range histories {
		if !p.Chain(h.AgentID(), h.Len(), h.Verify()) {
			broken++
		}
	}

	p.Printf("")
	if broken > 0 {
		p.Errorf("%d of %d chain(s) broken", broken, len(histories))
		return cli.Exit("", 1)
	}
	p.Successf("All %d chain(s) intact", len(histories))
	return nil
}

// loadHistories reads every stored snapshot whose agent matches filter,
// sorted by agent id.
func loadHistories(ctx context.Context, s history.Store, filter report.Filter) ([]history.Reader, error) {
	ids, err := s.Agents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	var out []history.Reader
	for _, id := range ids {
		if !filter.MatchAgent(id) {
			continue
		}
		entries, err := s.Load(ctx, id)
		if err != nil {
			if errors.Is(err, history.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("load %s: %w", id, err)
		}
		out = append(out, history.NewSnapshot(id, entries))
	}
	return out, nil
}

// parseSince accepts a duration back from now or an RFC 3339 timestamp.
func parseSince(v string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(v); err == nil {
		if d < 0 {
			return time.Time{}, fmt.Errorf("invalid --since %q: duration must not be negative", v)
		}
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: want a duration like 15m or an RFC 3339 time", v)
	}
	return t, nil
}

// truncate shortens s to at most width runes, marking the cut with "...".
func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-3]) + "..."
}
