// Package scheduler registers recurring backups with the operating system:
// the user crontab on unix systems and the task scheduler on windows.
// Every registered job carries Marker so Clear only touches jobs it created.
package scheduler

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Marker tags every job created by this tool.
const Marker = "gbak_task"

var ErrNothingToClear = errors.New("either a job name or all must be given")

// Job is one recurring backup.
type Job struct {
	// Cron is a standard five field expression or a descriptor like @daily.
	Cron string
	// Name optionally labels the job so it can be cleared on its own.
	Name string
	// Command is the argv executed on every run.
	Command []string
}

// Scheduler talks to the platform scheduler through a Runner.
type Scheduler struct {
	runner Runner
	log    logrus.FieldLogger
	goos   string
	now    func() time.Time
}

// New creates a Scheduler for the current platform.
func New(runner Runner, log logrus.FieldLogger) *Scheduler {
	if runner == nil {
		runner = ExecRunner{}
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Scheduler{runner: runner, log: log, goos: runtime.GOOS, now: time.Now}
}

// ParseCron validates a cron expression.
func ParseCron(expr string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched, nil
}

// NextRun returns the first time after from at which expr fires.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := ParseCron(expr)
	if err != nil {
		return time.Time{}, err
	}
	next := sched.Next(from)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", expr)
	}
	return next, nil
}

// BackupCommand builds the self-contained argv of an unattended backup run.
// Paths are made absolute since schedulers run jobs from another directory.
func BackupCommand(exe, configPath, source, remotePrefix, destination string) ([]string, error) {
	var err error
	if exe, err = filepath.Abs(exe); err != nil {
		return nil, err
	}
	if configPath, err = filepath.Abs(configPath); err != nil {
		return nil, err
	}
	if source, err = filepath.Abs(source); err != nil {
		return nil, err
	}
	argv := []string{exe, "start", "-config", configPath, "-source", source}
	if remotePrefix != "" {
		argv = append(argv, "-path", remotePrefix)
	}
	if destination != "" {
		argv = append(argv, "-remote", destination)
	}
	return append(argv, "-tui=false"), nil
}

// CommandLine quotes argv for a POSIX shell, which is how cron runs it.
// Percent signs are escaped since cron turns them into newlines.
func CommandLine(argv []string) string {
	return strings.ReplaceAll(shellquote.Join(argv...), "%", `\%`)
}

func tag(name string) string {
	if name == "" {
		return "#" + Marker
	}
	return "#" + Marker + " " + name
}

func taskName(name string) string {
	switch {
	case name == "":
		return Marker
	case strings.HasPrefix(name, Marker):
		return name
	}
	return Marker + "_" + name
}

// Schedule registers job with the platform scheduler.
func (s *Scheduler) Schedule(ctx context.Context, job Job) error {
	if len(job.Command) == 0 {
		return errors.New("job has no command")
	}
	next, err := NextRun(job.Cron, s.now())
	if err != nil {
		return err
	}
	if s.goos == "windows" {
		return s.scheduleTask(ctx, job, next)
	}
	return s.scheduleCron(ctx, job)
}

func (s *Scheduler) readCrontab(ctx context.Context) ([]string, error) {
	out, err := s.runner.Run(ctx, "", "crontab", "-l")
	if err != nil {
		// a user without a crontab is not an error
		if strings.Contains(err.Error(), "no crontab") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read crontab: %w", err)
	}
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines, nil
}

func (s *Scheduler) writeCrontab(ctx context.Context, lines []string) error {
	content := strings.Join(lines, "\n")
	if content != "" {
		content += "\n"
	}
	if _, err := s.runner.Run(ctx, content, "crontab", "-"); err != nil {
		return fmt.Errorf("failed to install crontab: %w", err)
	}
	return nil
}

func (s *Scheduler) scheduleCron(ctx context.Context, job Job) error {
	lines, err := s.readCrontab(ctx)
	if err != nil {
		return err
	}

	entry := fmt.Sprintf("%s %s %s", job.Cron, CommandLine(job.Command), tag(job.Name))
	for _, l := range lines {
		if l == entry {
			s.log.WithField("entry", entry).Info("Cron entry already present")
			return nil
		}
	}

	if err := s.writeCrontab(ctx, append(lines, entry)); err != nil {
		return err
	}
	s.log.WithField("entry", entry).Info("Added cron entry")
	return nil
}

func (s *Scheduler) scheduleTask(ctx context.Context, job Job, next time.Time) error {
	start := next.Format("15:04")
	name := taskName(job.Name)
	s.log.WithFields(logrus.Fields{"task": name, "start": start}).
		Warn("Task scheduler jobs run daily at the first time the cron expression fires")

	_, err := s.runner.Run(ctx, "", "schtasks",
		"/Create", "/SC", "DAILY", "/TN", name, "/TR", windowsCommandLine(job.Command), "/ST", start, "/F")
	if err != nil {
		return fmt.Errorf("failed to create task %s: %w", name, err)
	}
	s.log.WithField("task", name).Info("Scheduled task")
	return nil
}

// Clear removes scheduled jobs created by this tool: all of them, or the one
// labeled name. It returns the number of removed jobs.
func (s *Scheduler) Clear(ctx context.Context, name string, all bool) (int, error) {
	if !all && name == "" {
		return 0, ErrNothingToClear
	}
	if s.goos == "windows" {
		return s.clearTasks(ctx, name, all)
	}
	return s.clearCron(ctx, name, all)
}

func (s *Scheduler) clearCron(ctx context.Context, name string, all bool) (int, error) {
	lines, err := s.readCrontab(ctx)
	if err != nil {
		return 0, err
	}

	var kept []string
	removed := 0
	for _, l := range lines {
		_, comment, ok := strings.Cut(l, "#"+Marker)
		if ok && (all || strings.TrimSpace(comment) == name) {
			removed++
			continue
		}
		kept = append(kept, l)
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.writeCrontab(ctx, kept); err != nil {
		return 0, err
	}
	s.log.WithField("removed", removed).Info("Cleared cron entries")
	return removed, nil
}

func (s *Scheduler) clearTasks(ctx context.Context, name string, all bool) (int, error) {
	var names []string
	if all {
		out, err := s.runner.Run(ctx, "", "schtasks", "/Query", "/FO", "CSV", "/NH")
		if err != nil {
			return 0, fmt.Errorf("failed to query tasks: %w", err)
		}
		records, err := csv.NewReader(strings.NewReader(out)).ReadAll()
		if err != nil {
			return 0, fmt.Errorf("failed to parse task list: %w", err)
		}
		seen := make(map[string]bool)
		for _, r := range records {
			if len(r) == 0 {
				continue
			}
			n := strings.TrimPrefix(r[0], `\`)
			if strings.HasPrefix(n, Marker) && !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	} else {
		names = []string{taskName(name)}
	}

	removed := 0
	for _, n := range names {
		if _, err := s.runner.Run(ctx, "", "schtasks", "/Delete", "/TN", n, "/F"); err != nil {
			return removed, fmt.Errorf("failed to delete task %s: %w", n, err)
		}
		removed++
	}
	s.log.WithField("removed", removed).Info("Cleared scheduled tasks")
	return removed, nil
}

// windowsCommandLine quotes argv the way the windows command line parser
// splits it back.
func windowsCommandLine(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && !strings.ContainsAny(a, " \t\"") {
			quoted[i] = a
			continue
		}
		quoted[i] = `"` + strings.ReplaceAll(a, `"`, `\"`) + `"`
	}
	return strings.Join(quoted, " ")
}
