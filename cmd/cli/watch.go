package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/anstrom/dualscan/internal/errors"
	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/scanning"
	"github.com/anstrom/dualscan/internal/scheduler"
)

const defaultWatchSchedule = "@every 10m"

type watchOptions struct {
	scanFlags
	g             *globalOptions
	schedule      string
	maxConcurrent int
	runs          int
}

func newWatchCmd(g *globalOptions) *cobra.Command {
	o := &watchOptions{g: g}

	watchCmd := &cobra.Command{
		Use:   "watch host [host...]",
		Short: "Re-scan hosts on a schedule",
		Long: `Scan each host immediately and then again on a cron schedule until
interrupted. Every completed scan prints a full report. A host is never
scanned twice at the same time, and --max-concurrent caps how many hosts are
scanned at once.

The schedule accepts standard five-field cron expressions and descriptors
such as "@hourly" or "@every 10m".`,
		Example: `  dualscan watch 192.168.1.10 --ports 1-1024
  dualscan watch 10.0.0.1 10.0.0.2 --schedule "*/30 * * * *" --max-concurrent 2
  dualscan watch db.internal --ports 5432 --schedule @hourly --runs 3`,
		Args: cobra.MinimumNArgs(1),
		RunE: o.run,
	}

	o.register(watchCmd.Flags())
	watchCmd.Flags().StringVar(&o.schedule, "schedule", defaultWatchSchedule, "cron expression for re-scans")
	watchCmd.Flags().IntVar(&o.maxConcurrent, "max-concurrent", 1, "hosts scanned at the same time")
	watchCmd.Flags().IntVar(&o.runs, "runs", 0, "exit after this many scans per host (0 = until interrupted)")
	watchCmd.MarkFlagsMutuallyExclusive("ports", "start")
	watchCmd.MarkFlagsMutuallyExclusive("ports", "end")

	return watchCmd
}

func (o *watchOptions) run(cmd *cobra.Command, args []string) error {
	cfg, err := o.g.setup(cmd, o.bindings())
	if err != nil {
		return err
	}

	reportOpts, err := o.reportOptions(o.g, cmd)
	if err != nil {
		return err
	}

	rng, err := o.portRange(cmd, cfg)
	if err != nil {
		return err
	}
	if o.runs < 0 {
		return errors.NewScanError(errors.CodeValidation, "--runs must not be negative")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	startMetricsListener(ctx, cfg)

	targets := uniqueTargets(args)
	if len(targets) == 0 {
		return errors.ErrInvalidTarget("", "target host is required")
	}
	scanners := make(map[string]*scanning.Scanner, len(targets))
	for _, target := range targets {
		scanners[target] = newScanner(cfg)
	}
	scan := func(ctx context.Context, target string, rng scanning.PortRange) (*scanning.Report, error) {
		return scanners[target].Scan(ctx, target, rng)
	}

	out := &watchOutput{
		stdout:  cmd.OutOrStdout(),
		stderr:  cmd.ErrOrStderr(),
		opts:    reportOpts,
		limit:   o.runs,
		targets: len(targets),
		done:    cancel,
		runs:    make(map[uuid.UUID]int),
	}

	sched := scheduler.NewScheduler(scan, out.handle, o.maxConcurrent)
	out.retire = sched.RemoveJob
	for _, target := range targets {
		if _, err := sched.AddScanJob(target, o.schedule, target, rng); err != nil {
			return errors.WrapScanError(errors.CodeValidation, "invalid watch job", err)
		}
	}
	if err := sched.Start(); err != nil {
		return err
	}

	logging.Info("Watching targets", "targets", len(targets), "ports", rng.String(), "schedule", o.schedule)
	for _, job := range sched.GetJobs() {
		go func(id uuid.UUID) {
			_ = sched.RunNow(id)
		}(job.ID)
	}

	<-ctx.Done()
	sched.Stop()
	return nil
}

// watchOutput serializes reports from concurrent jobs and tracks run limits.
// A job that reaches the limit is retired; done fires once all have.
type watchOutput struct {
	mu      sync.Mutex
	stdout  io.Writer
	stderr  io.Writer
	opts    scanning.ReportOptions
	limit   int
	targets int
	done    context.CancelFunc
	retire  func(uuid.UUID) error
	runs    map[uuid.UUID]int
}

func (w *watchOutput) handle(job scheduler.Job, report *scanning.Report, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case errors.IsCode(err, errors.CodeCanceled):
		return
	case errors.IsCode(err, errors.CodeTargetUnresolvable):
		fmt.Fprintf(w.stderr, "Unable to resolve host: %s\n", job.Target)
	case err != nil:
		fmt.Fprintf(w.stderr, "Scan of %s failed: %v\n", job.Target, err)
	default:
		if w.opts.Format == scanning.FormatText {
			fmt.Fprintf(w.stdout, "Scan of %s (%s) at %s\n",
				report.Target, report.Address, report.StartTime.Format(time.RFC3339))
		}
		if werr := scanning.WriteReport(w.stdout, report, w.opts); werr != nil {
			logging.Error("Failed to write report", "target", job.Target, "error", werr)
		}
	}

	if w.limit == 0 {
		return
	}
	w.runs[job.ID]++
	if w.runs[job.ID] == w.limit && w.retire != nil {
		if rerr := w.retire(job.ID); rerr != nil {
			logging.Warn("Failed to retire watch job", "target", job.Target, "error", rerr)
		}
	}
	if len(w.runs) < w.targets {
		return
	}
	for _, n := range w.runs {
		if n < w.limit {
			return
		}
	}
	w.done()
}

func uniqueTargets(args []string) []string {
	seen := make(map[string]bool, len(args))
	targets := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "" || seen[arg] {
			continue
		}
		seen[arg] = true
		targets = append(targets, arg)
	}
	return targets
}
