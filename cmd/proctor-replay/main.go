package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/replay"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func init() {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		disableStyling()
	}

	pterm.Error.MessageStyle = pterm.NewStyle(pterm.FgRed)
	pterm.Error.Prefix = pterm.Prefix{
		Text:  "ERROR",
		Style: pterm.NewStyle(pterm.BgRed, pterm.FgBlack),
	}
}

func disableStyling() {
	pterm.DisableColor()
	pterm.DisableStyling()
	pterm.Info.Prefix.Text = ""
	pterm.Success.Prefix.Text = ""
	pterm.Warning.Prefix.Text = ""
	pterm.Error.Prefix.Text = ""
}

func main() {
	app := &cli.App{
		Name:      "proctor-replay",
		Usage:     "Replay a scripted proctoring session on a simulated clock",
		UsageText: "proctor-replay [COMMAND] [OPTIONS] <script.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "defaults",
				Aliases: []string{"d"},
				Usage:   "YAML file overriding detector thresholds and limits",
				EnvVars: []string{"PROCTOR_DEFAULTS_FILE"},
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "Disable coloured output",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("no-color") {
				disableStyling()
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Validate a script without running it",
				ArgsUsage: "<script.yaml>",
				Action:    checkAction,
			},
			{
				Name:      "run",
				Usage:     "Replay a script and print what the student would have seen",
				ArgsUsage: "<script.yaml>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Print timer notices and session logs",
					},
				},
				Action: runAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func loadScript(ctx *cli.Context) (*replay.Script, error) {
	if ctx.NArg() != 1 {
		return nil, fmt.Errorf("expected exactly one script, got %d", ctx.NArg())
	}
	return replay.LoadFile(ctx.Args().First())
}

func checkAction(ctx *cli.Context) error {
	s, err := loadScript(ctx)
	if err != nil {
		return err
	}

	paper := s.Paper()
	pterm.Success.Printfln("%s: %d steps, %d questions, %ds budget",
		ctx.Args().First(), len(s.Steps), paper.TotalQuestions(), proctor.SessionDuration(paper, s.Config()))
	return nil
}

func runAction(ctx *cli.Context) error {
	s, err := loadScript(ctx)
	if err != nil {
		return err
	}

	defaults, err := config.LoadProctorDefaults(ctx.String("defaults"))
	if err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	log := zerolog.Nop()
	if ctx.Bool("verbose") {
		log = logger.Setup("debug", "pretty", logger.FileOptions{})
	}

	spinner, _ := pterm.DefaultSpinner.Start("Replaying " + ctx.Args().First())
	res, err := replay.Run(ctx.Context, s, replay.Options{
		Tuning: service.TuningFromDefaults(defaults, 0),
		Limits: func(cfg *model.TestConfig) model.WarningLimits { return service.LimitsFor(cfg, defaults) },
		Log:    log,
	})
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Replayed %d steps over %s", len(s.Steps), res.Elapsed))

	printNotices(res, ctx.Bool("verbose"))
	printRejected(res)
	printSummary(res)
	return nil
}

func printNotices(res *replay.Result, verbose bool) {
	rows := [][]string{{"AT", "NOTICE", "DETAIL"}}
	for _, e := range res.Notices {
		if e.Notice.Kind == proctor.NoticeTimer && !verbose {
			continue
		}
		rows = append(rows, []string{offset(e.Offset), string(e.Notice.Kind), detail(e.Notice)})
	}
	render(rows)
}

func printRejected(res *replay.Result) {
	if len(res.Rejected) == 0 {
		return
	}
	for _, r := range res.Rejected {
		pterm.Warning.Printfln("step %d at %s rejected: %v", r.Step, offset(r.Offset), r.Err)
	}
}

func printSummary(res *replay.Result) {
	rows := [][]string{
		{"FIELD", "VALUE"},
		{"phase", string(res.Phase)},
		{"elapsed", offset(res.Elapsed)},
		{"fullscreen warnings", strconv.Itoa(res.Counts.Fullscreen)},
		{"tab switch warnings", strconv.Itoa(res.Counts.TabSwitch)},
		{"noise warnings", strconv.Itoa(res.Counts.Noise)},
		{"face warnings", strconv.Itoa(res.Counts.Face)},
	}
	if p := res.Payload; p != nil {
		rows = append(rows,
			[]string{"reason", p.Reason},
			[]string{"score", fmt.Sprintf("%d/%d (%.2f%%)", p.CorrectAnswers, p.TotalQuestions, p.Percentage)},
			[]string{"grade", p.Grade},
		)
	}
	render(rows)

	if res.Phase != proctor.PhaseFinished {
		pterm.Info.Println("Session still active at the end of the script. Add run_out: true to play out the clock.")
	}
}

func detail(n proctor.Notice) string {
	switch n.Kind {
	case proctor.NoticeModal:
		if n.Modal.Kind == proctor.ModalNone {
			return "closed"
		}
		if n.Modal.Limit > 0 {
			return fmt.Sprintf("%s %d/%d", n.Modal.Kind, n.Modal.Count, n.Modal.Limit)
		}
		return string(n.Modal.Kind)
	case proctor.NoticeTimer:
		return fmt.Sprintf("%ds left", n.Timer.Remaining)
	case proctor.NoticeAlert:
		return n.Alert
	case proctor.NoticeState:
		w := n.State.Warnings
		return fmt.Sprintf("answered %d, warnings %d/%d/%d/%d",
			n.State.Answers.Count(), w.Fullscreen, w.TabSwitch, w.Noise, w.Face)
	case proctor.NoticePaper:
		return n.Paper.Title
	case proctor.NoticeFinished:
		return fmt.Sprintf("%s, grade %s", n.Finished.Reason, n.Finished.Grade)
	}
	return ""
}

func offset(d time.Duration) string {
	return fmt.Sprintf("+%s", d.Truncate(time.Millisecond))
}

func render(rows [][]string) {
	table := pterm.DefaultTable
	table.Boxed = true

	str, err := table.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		pterm.Error.Printfln("Failed to render table: %s", err.Error())
		return
	}
	fmt.Println(str)
}
