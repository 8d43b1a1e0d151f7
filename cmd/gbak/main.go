package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/franksops/gobak/config"
	"github.com/franksops/gobak/engine"
	"github.com/franksops/gobak/logging"
	"github.com/franksops/gobak/progress"
	"github.com/franksops/gobak/provider"
	"github.com/franksops/gobak/scheduler"
	"github.com/franksops/gobak/store"
	"github.com/franksops/gobak/ui"
)

const defaultConfig = "config.toml"

const usage = `Usage: gbak <command> [options]

Commands:
  start     back up a file, directory or glob pattern
  schedule  register a recurring backup with the system scheduler
  clear     remove recurring backups registered by gbak
  history   list recorded transfers from the journal

Examples:
  gbak start -source /data/reports -remote nas
  gbak start -source '/var/log/*.log' -path logs -continue-on-error=false
  gbak schedule -cron '0 2 * * *' -source /data/reports -name reports
  gbak clear -all
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 1
	}

	var err error
	switch args[0] {
	case "start":
		err = runStart(args[1:], stdout, stderr)
	case "schedule":
		err = runSchedule(args[1:], stderr)
	case "clear":
		err = runClear(args[1:], stdout, stderr)
	case "history":
		err = runHistory(args[1:], stdout, stderr)
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 1
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "gbak %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("gbak "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// loadConfig loads the configuration and builds the logger it asks for.
func loadConfig(path string, out io.Writer) (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logging.New(cfg.LogLevel, out), nil
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func runStart(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("start", stderr)
	var (
		configPath      = fs.String("config", defaultConfig, "Configuration file")
		source          = fs.String("source", "", "File, directory or glob pattern to back up")
		remote          = fs.String("remote", "", "Destination name (default: the configured default)")
		remotePath      = fs.String("path", "", "Remote path prefix (default: the destination's default_path)")
		tuiEnabled      = fs.Bool("tui", stdoutIsTerminal(), "Show the progress TUI (disable for headless operation)")
		continueOnError = fs.Bool("continue-on-error", true, "Keep going after a file fails (overrides transfer.continue_on_error)")
		chunkSize       = fs.Int("chunk-size", 0, "Upload chunk size in bytes (default depends on the destination)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *source == "" {
		fs.Usage()
		return errors.New("-source is required")
	}

	cfg, log, err := loadConfig(*configPath, stderr)
	if err != nil {
		return err
	}

	dest, err := cfg.Lookup(*remote)
	if err != nil {
		return err
	}
	prefix := *remotePath
	if prefix == "" {
		prefix = dest.DefaultPrefix()
	}

	set, err := engine.Resolve(*source, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"source": *source, "files": len(set.Files)}).Info("Resolved source")

	coe := cfg.ContinueOnError
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "continue-on-error" {
			coe = *continueOnError
		}
	})

	opts := []engine.BatchOption{
		engine.WithBatchLogger(log),
		engine.WithContinueOnError(coe),
		engine.WithUploaderOptions(provider.WithChunkSize(*chunkSize)),
	}

	if cfg.Journal != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal), 0755); err != nil {
			return fmt.Errorf("failed to create journal directory: %w", err)
		}
		journal, err := store.NewBoltStore(cfg.Journal)
		if err != nil {
			return err
		}
		defer journal.Close()
		opts = append(opts, engine.WithJournal(engine.NewJobTracker(journal, engine.DefaultCheckpointConfig)))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var report *engine.Report
	if *tuiEnabled {
		report = runWithTUI(ctx, cancel, log, set, dest, prefix, opts)
	} else {
		opts = append(opts, engine.WithProgress(progress.NewLogSink(log, progress.DefaultLogInterval)))
		report = engine.NewBatch(opts...).Run(ctx, set, dest, prefix)
	}

	printSummary(stdout, report)
	return report.Err()
}

// runWithTUI runs the batch while the TUI owns the terminal. Log output is
// held back until the program exits so it does not tear the screen.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, log *logrus.Logger, set *engine.ResolvedFileSet, dest provider.Destination, prefix string, opts []engine.BatchOption) *engine.Report {
	release := holdLogs(log)
	defer release()

	model := ui.NewTUIModel(dest.DestinationName(), len(set.Files), cancel)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan *engine.Report, 1)
	go func() {
		opts := append(opts, engine.WithProgress(ui.NewSink(program)))
		report := engine.NewBatch(opts...).Run(ctx, set, dest, prefix)
		program.Send(ui.BatchDoneMsg{})
		done <- report
	}()

	if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.WithError(err).Warn("TUI stopped")
	}
	// canceling aborts the file in flight and skips the rest
	cancel()
	return <-done
}

// holdLogs buffers everything log writes and returns a func that restores
// the original writer and replays the buffered entries to it.
func holdLogs(log *logrus.Logger) func() {
	out := log.Out
	held := &bytes.Buffer{}
	log.SetOutput(held)
	return func() {
		log.SetOutput(out)
		_, _ = held.WriteTo(out)
	}
}

func printSummary(w io.Writer, report *engine.Report) {
	fmt.Fprintf(w, "Backup to %s: %d succeeded, %d failed, %d skipped\n",
		report.Destination, report.Count(engine.Success), report.Count(engine.Failure), report.Count(engine.Skipped))
	for _, o := range report.Outcomes {
		if o.Status == engine.Failure {
			fmt.Fprintf(w, "  failed  %s: %v\n", o.Job.SourcePath, o.Err)
		}
	}
}

func runSchedule(args []string, stderr io.Writer) error {
	fs := newFlagSet("schedule", stderr)
	var (
		configPath = fs.String("config", defaultConfig, "Configuration file")
		cronExpr   = fs.String("cron", "", "Cron expression, e.g. '0 2 * * *' or @daily")
		source     = fs.String("source", "", "File, directory or glob pattern to back up")
		remote     = fs.String("remote", "", "Destination name (default: the configured default)")
		remotePath = fs.String("path", "", "Remote path prefix (default: the destination's default_path)")
		name       = fs.String("name", "", "Label used to clear this job on its own")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cronExpr == "" || *source == "" {
		fs.Usage()
		return errors.New("-cron and -source are required")
	}

	cfg, log, err := loadConfig(*configPath, stderr)
	if err != nil {
		return err
	}
	dest, err := cfg.Lookup(*remote)
	if err != nil {
		return err
	}
	prefix := *remotePath
	if prefix == "" {
		prefix = dest.DefaultPrefix()
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate executable: %w", err)
	}
	command, err := scheduler.BackupCommand(exe, cfg.Path, *source, prefix, dest.DestinationName())
	if err != nil {
		return err
	}

	return scheduler.New(scheduler.ExecRunner{}, log).Schedule(context.Background(), scheduler.Job{
		Cron:    *cronExpr,
		Name:    *name,
		Command: command,
	})
}

func runClear(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("clear", stderr)
	var (
		all  = fs.Bool("all", false, "Remove every job registered by gbak")
		name = fs.String("name", "", "Remove the job with this label")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logging.New(logrus.InfoLevel, stderr)
	removed, err := scheduler.New(scheduler.ExecRunner{}, log).Clear(context.Background(), *name, *all)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Removed %d scheduled job(s)\n", removed)
	return nil
}

func runHistory(args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("history", stderr)
	var (
		configPath = fs.String("config", defaultConfig, "Configuration file")
		runID      = fs.String("run", "", "Only show the jobs of this run")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath, stderr)
	if err != nil {
		return err
	}
	if cfg.Journal == "" {
		return errors.New("no journal configured, set transfer.journal")
	}

	journal, err := store.NewBoltStore(cfg.Journal)
	if err != nil {
		return err
	}
	defer journal.Close()

	jobs, err := journal.ListJobs(*runID)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, historyTable(jobs))
	return nil
}

func historyTable(jobs []*store.JobRecord) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("STARTED", "RUN", "DESTINATION", "FILE", "REMOTE", "STATE", "BYTES", "ERROR")
	for _, j := range jobs {
		run := j.RunID
		if len(run) > 8 {
			run = run[:8]
		}
		t.Row(
			j.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run,
			j.Destination,
			j.SourcePath,
			j.RemoteKey,
			string(j.State),
			strconv.FormatInt(j.BytesTransferred, 10)+"/"+strconv.FormatInt(j.TotalBytes, 10),
			j.Error,
		)
	}
	return t.String()
}
