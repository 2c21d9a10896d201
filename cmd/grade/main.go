// cmd/grade/main.go
//
// grade runs a grading script against every repository listed in a roster
// and writes one CSV row per student.
//
//	grade <roster.csv> <script> [-o OUTPUT.csv] [--deadline YYYY-MM-DD] [--publish] [--timeout SECONDS] [-v]

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/kingrea/marker/internal/config"
	"github.com/kingrea/marker/internal/logbook"
	"github.com/kingrea/marker/internal/orchestrator"
	"github.com/kingrea/marker/internal/report"
	"github.com/kingrea/marker/internal/roster"
	"github.com/kingrea/marker/internal/tui"
)

const (
	exitOK     = 0
	exitConfig = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliFlags struct {
	fs         *flag.FlagSet
	positional []string

	configFile     string
	output         string
	deadline       string
	publish        bool
	timeout        float64
	verbose        bool
	branch         string
	feedbackBranch string
	feedbackFile   string
	maxPoints      float64
	concurrency    int
	logFile        string
	progress       bool
	scorePlugin    string
}

func newFlags(stderr io.Writer) *cliFlags {
	f := &cliFlags{fs: flag.NewFlagSet("grade", flag.ContinueOnError)}
	fs := f.fs
	fs.SetOutput(stderr)
	fs.StringVar(&f.configFile, "config", "", "YAML config file (default ./marker.yaml when present)")
	fs.StringVar(&f.output, "o", config.DefaultOutput, "output CSV path")
	fs.StringVar(&f.output, "output", config.DefaultOutput, "output CSV path")
	fs.StringVar(&f.deadline, "deadline", "", "grade the last commit made on or before this date (YYYY-MM-DD)")
	fs.BoolVar(&f.publish, "publish", false, "push grading output to each student's feedback branch")
	fs.Float64Var(&f.timeout, "timeout", 0, "per-submission script timeout in seconds (default 30)")
	fs.BoolVar(&f.verbose, "v", false, "log every git and script command")
	fs.BoolVar(&f.verbose, "verbose", false, "log every git and script command")
	fs.StringVar(&f.branch, "branch", "", "branch to grade (default main)")
	fs.StringVar(&f.feedbackBranch, "feedback-branch", "", "branch feedback is published to (default feedback)")
	fs.StringVar(&f.feedbackFile, "feedback-file", "", "file written on the feedback branch (default README.md)")
	fs.Float64Var(&f.maxPoints, "max-points", 0, "points a perfect score maps to (default 10)")
	fs.IntVar(&f.concurrency, "concurrency", 0, "submissions graded at once (default 1)")
	fs.StringVar(&f.logFile, "log-file", "", "also append log lines to this file")
	fs.BoolVar(&f.progress, "progress", false, "show a live progress view")
	fs.StringVar(&f.scorePlugin, "score-plugin", "", "Go source file defining Score(stdout) (earned, possible, err)")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: grade <roster.csv> <script> [-o OUTPUT.csv] [--deadline YYYY-MM-DD] [--publish] [--timeout SECONDS] [-v]")
		fs.PrintDefaults()
	}
	return f
}

// parse accepts flags before, between and after the positional arguments.
func (f *cliFlags) parse(args []string) error {
	for {
		if err := f.fs.Parse(args); err != nil {
			return err
		}
		rest := f.fs.Args()
		if len(rest) == 0 {
			return nil
		}
		f.positional = append(f.positional, rest[0])
		args = rest[1:]
	}
}

// apply overlays the flags the user actually set.
func (f *cliFlags) apply(c *config.Config) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "o", "output":
			c.OutputPath = f.output
		case "deadline":
			c.Deadline = f.deadline
		case "publish":
			c.Publish = f.publish
		case "timeout":
			c.Timeout = config.Seconds(f.timeout)
		case "v", "verbose":
			c.Verbose = f.verbose
		case "branch":
			c.Branch = f.branch
		case "feedback-branch":
			c.FeedbackBranch = f.feedbackBranch
		case "feedback-file":
			c.FeedbackFile = f.feedbackFile
		case "max-points":
			c.MaxPoints = f.maxPoints
		case "concurrency":
			c.Concurrency = f.concurrency
		case "log-file":
			c.LogFile = f.logFile
		case "progress":
			c.Progress = f.progress
		case "score-plugin":
			c.ScorePlugin = f.scorePlugin
		}
	})
}

func loadConfig(f *cliFlags, now time.Time) (*config.Config, error) {
	cfg := config.Default()
	path, required := config.DefaultConfigFile, false
	if f.configFile != "" {
		path, required = f.configFile, true
	}
	if err := cfg.LoadFile(path, required); err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.RosterPath = f.positional[0]
	cfg.ScriptPath = f.positional[1]
	f.apply(cfg)
	if err := cfg.Finalize(now); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := newFlags(stderr)
	if err := flags.parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if len(flags.positional) != 2 {
		fmt.Fprintf(stderr, "grade: expected <roster.csv> <script>, got %d argument(s)\n", len(flags.positional))
		flags.fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(flags, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "grade: %v\n", err)
		return exitConfig
	}

	console := stderr
	if cfg.Progress {
		// The progress view owns the terminal; log lines go to --log-file only.
		console = io.Discard
	}
	level := logbook.LevelInfo
	if cfg.Verbose {
		level = logbook.LevelDebug
	}
	var logOpts []logbook.Option
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logbook.WithFile(cfg.LogFile))
	}
	logger := logbook.New(console, level, logOpts...)
	defer logger.Close()

	entries, err := roster.Load(cfg.RosterPath)
	if err != nil {
		fmt.Fprintf(stderr, "grade: %v\n", err)
		return exitConfig
	}

	runID := uuid.NewString()
	logger.Infof("Run %s: grading %d submission(s) from %s with %s", runID, len(entries), cfg.RosterPath, filepath.Base(cfg.ScriptPath))
	if cfg.Deadline != "" {
		logger.Infof("Deadline %s: grading the last commit before %s", cfg.Deadline, cfg.Cutoff.Format(time.RFC3339))
	}

	records, err := grade(ctx, cfg, logger, entries, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "grade: %v\n", err)
		return exitConfig
	}

	if err := report.WriteFile(cfg.OutputPath, orchestrator.Rows(records)); err != nil {
		logger.Errorf("Writing %s failed: %v", cfg.OutputPath, err)
		fmt.Fprintf(stderr, "grade: %v\n", err)
		return exitConfig
	}
	s := orchestrator.Summarize(records)
	logger.Infof("Run %s finished: %d graded, %d no submission, %d timed out, %d failed, %d publish failures",
		runID, s.Graded, s.NoSubmission, s.TimedOut, s.Failed, s.PublishFailed)
	fmt.Fprintf(stdout, "Wrote %d row(s) to %s\n", len(records), cfg.OutputPath)
	return exitOK
}

func grade(ctx context.Context, cfg *config.Config, logger logbook.Logger, entries []roster.Entry, stderr io.Writer) ([]orchestrator.Record, error) {
	if !cfg.Progress {
		o, err := orchestrator.New(cfg, orchestrator.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return o.Run(ctx, entries), nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	title := fmt.Sprintf("Grading %s with %s", filepath.Base(cfg.RosterPath), filepath.Base(cfg.ScriptPath))
	program := tea.NewProgram(tui.NewModel(title, entries, cancel), tea.WithOutput(stderr))
	o, err := orchestrator.New(cfg, orchestrator.WithLogger(logger), orchestrator.WithObserver(tui.NewObserver(program)))
	if err != nil {
		return nil, err
	}

	done := make(chan []orchestrator.Record, 1)
	go func() {
		records := o.Run(ctx, entries)
		done <- records
		program.Send(tui.DoneMsg{})
	}()
	if _, err := program.Run(); err != nil {
		logger.Warnf("Progress view stopped: %v", err)
	}
	return <-done, nil
}
