package commands

import (
	"context"
	"encoding/json"

	"github.com/AutonomosCdM/first-court-sub000/internal/commands/doctor"
	"github.com/AutonomosCdM/first-court-sub000/internal/printer"
	"github.com/urfave/cli/v3"
)

type DoctorCmd struct {
	flags  *Flags
	format string
}

func NewDoctorCmd(flags *Flags) *DoctorCmd {
	return &DoctorCmd{flags: flags}
}

func (cmd *DoctorCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "doctor",
		Usage:       "Check the configuration and exported histories",
		UsageText:   "court doctor [options]",
		Description: "Validates the configuration and verifies the digest chain of every exported history.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Usage:       "output format (text, json)",
				Value:       "text",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *DoctorCmd) run(ctx context.Context, c *cli.Command) error {
	results := doctor.RunAll(ctx, []doctor.Check{
		doctor.NewConfigCheck(cmd.flags.Config, cmd.flags.ConfigPath),
		doctor.NewHistoryCheck(cmd.flags.HistoryStore),
	})
	summary := doctor.Summarize(results)

	if cmd.format == "json" {
		enc := json.NewEncoder(c.Root().Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Healthy bool            `json:"healthy"`
			Summary doctor.Summary  `json:"summary"`
			Checks  []doctor.Result `json:"checks"`
		}{summary.Healthy(), summary, results}); err != nil {
			return err
		}
	} else {
		p := printer.Ctx(ctx)
		for _, result := range results {
			p.Section(result.Name)
			for _, item := range result.Items {
				switch item.Status {
				case doctor.StatusPass:
					p.CheckItem(item.Label, item.Detail)
				case doctor.StatusWarn:
					p.WarnItem(item.Label, item.Detail)
				default:
					p.FailItem(item.Label, item.Detail)
				}
			}
			p.Printf("")
		}
		p.Tally(summary.Passed, summary.Warned, summary.Failed)
	}

	if !summary.Healthy() {
		return cli.Exit("", 1)
	}
	return nil
}
