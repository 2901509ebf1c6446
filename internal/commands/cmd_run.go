package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/config"
	"github.com/AutonomosCdM/first-court-sub000/internal/printer"
	"github.com/AutonomosCdM/first-court-sub000/internal/report"
	"github.com/AutonomosCdM/first-court-sub000/internal/simulation"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

type RunCmd struct {
	flags *Flags

	// Command-specific flags
	file   string
	dryRun bool
	strict bool
	report bool
	format string
}

// NewRunCmd creates a new run command
func NewRunCmd(flags *Flags) *RunCmd {
	return &RunCmd{flags: flags}
}

// Register adds the run command to the application
func (cmd *RunCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run a court scenario",
		UsageText: "court run [options]",
		Description: `Runs a scripted exchange between court agents and exports their histories.

The scenario is read as YAML from --file or stdin. It declares the agents
and their roles, the initial subscriptions and the steps to play: sends,
requests, decisions, mailbox processing and so on.

Example:
  court run -f hearing.yaml
  cat hearing.yaml | court run --strict --format json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "path to scenario file (reads stdin if not provided)",
				Destination: &cmd.file,
			},
			&cli.BoolFlag{
				Name:        "dry-run",
				Usage:       "validate the scenario without running it",
				Destination: &cmd.dryRun,
			},
			&cli.BoolFlag{
				Name:        "strict",
				Usage:       "stop at the first failing step",
				Destination: &cmd.strict,
			},
			&cli.BoolFlag{
				Name:        "report",
				Usage:       "print a report of the run",
				Value:       true,
				Destination: &cmd.report,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "report format (text, json); defaults to report.format",
				Destination: &cmd.format,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *RunCmd) run(ctx context.Context, c *cli.Command) error {
	p := printer.Ctx(ctx)
	cfg := cmd.flags.Config

	format := cmd.format
	if format == "" {
		format = cfg.Report.Format
	}
	if format != config.FormatText && format != config.FormatJSON {
		return fmt.Errorf("invalid format %q (use %s or %s)", format, config.FormatText, config.FormatJSON)
	}

	sc, err := cmd.readScenario()
	if err != nil {
		return err
	}
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}

	if cmd.dryRun {
		p.Successf("Scenario %q is valid", sc.Name)
		p.Infof("%d agent(s), %d subscription(s), %d step(s)", len(sc.Agents), len(sc.Subscriptions), len(sc.Steps))
		return nil
	}

	s, err := cmd.flags.HistoryStore()
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}

	opts := []simulation.Option{
		simulation.WithLogger(log.Logger),
	}
	if s != nil {
		opts = append(opts, simulation.WithStore(s))
	}

	runner := simulation.New(simulation.Config{
		RequestTTL:     cfg.Agents.RequestTTL,
		HistoryLimit:   cfg.History.MaxEntries,
		ExportInterval: cfg.Export.IntervalSteps,
		Strict:         cmd.strict,
	}, opts...)

	res, runErr := runner.Run(ctx, sc)
	if res == nil {
		return runErr
	}

	if cmd.report {
		out := c.Root().Writer
		rep := report.Compute(res.Histories())
		if format == config.FormatJSON {
			err = report.WriteJSON(out, rep)
		} else {
			err = report.WriteText(out, rep)
		}
		if err != nil {
			return err
		}
	}

	if len(res.StepErrors) > 0 {
		p.Section("Step errors")
		for _, se := range res.StepErrors {
			p.StepError(se.Index, string(se.Action), se.Err)
		}
		p.Printf("")
	}

	if runErr != nil {
		return runErr
	}

	detail := fmt.Sprintf("%d step error(s), %d handler failure(s), took %s",
		len(res.StepErrors), res.Failures, res.Duration.Round(time.Millisecond))
	if s != nil {
		detail += fmt.Sprintf(", exported %d time(s) to %s", res.Exports, cfg.ExportPath())
	}
	p.Success(fmt.Sprintf("Scenario %q finished", res.Scenario), detail)
	return nil
}

func (cmd *RunCmd) readScenario() (*simulation.Scenario, error) {
	if cmd.file != "" {
		return simulation.LoadScenarioFile(cmd.file)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("no scenario provided (stdin is a terminal); use -f flag or pipe YAML input")
	}
	return simulation.LoadScenario(os.Stdin)
}
