package commands

import (
	"context"
	"fmt"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/AutonomosCdM/first-court-sub000/internal/printer"
	"github.com/AutonomosCdM/first-court-sub000/internal/report"
	"github.com/urfave/cli/v3"
)

type ReportCmd struct {
	flags *Flags

	agents   []string
	subjects []string
	format   string
}

func NewReportCmd(flags *Flags) *ReportCmd {
	return &ReportCmd{flags: flags}
}

func (cmd *ReportCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "report",
		Usage:       "Summarize exported agent histories",
		UsageText:   "court report [options]",
		Description: "Computes message counts, request latency and chain status from the exported histories.",
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
				Name:        "format",
				Usage:       "output format (text, json); defaults to report.format",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *ReportCmd) run(ctx context.Context, c *cli.Command) error {
	format := cmd.format
	if format == "" {
		format = cmd.flags.Config.Report.Format
	}

	filter, err := report.NewFilter(cmd.agents, cmd.subjects)
	if err != nil {
		return err
	}

	s, err := cmd.flags.HistoryStore()
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	if s == nil {
		return ErrExportDisabled
	}

	loaded, err := loadHistories(ctx, s, filter)
	if err != nil {
		return err
	}
	if len(loaded) == 0 {
		printer.Ctx(ctx).Infof("No exported histories")
		return nil
	}

	histories := make(map[string]history.Reader, len(loaded))
	for _, h := range loaded {
		histories[h.AgentID()] = h
	}
	rep := report.Compute(histories, report.WithFilter(filter))

	switch format {
	case config.FormatJSON:
		return report.WriteJSON(c.Root().Writer, rep)
	case config.FormatText:
		return report.WriteText(c.Root().Writer, rep)
	default:
		return fmt.Errorf("invalid format %q (use %s or %s)", format, config.FormatText, config.FormatJSON)
	}
}
