// Package scheduler re-runs scans on cron schedules. Each job scans one
// target; a job never overlaps with itself, and a shared slot pool caps how
// many jobs scan at the same time.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/dualscan/internal/logging"
	"github.com/anstrom/dualscan/internal/scanning"
)

// ScanFunc performs one scan. *scanning.Scanner's Scan method satisfies it.
type ScanFunc func(ctx context.Context, target string, rng scanning.PortRange) (*scanning.Report, error)

// ResultHandler receives the outcome of every scheduled run.
type ResultHandler func(job Job, report *scanning.Report, err error)

// Scheduler manages scheduled scan jobs.
type Scheduler struct {
	cron     *cron.Cron
	scan     ScanFunc
	onResult ResultHandler
	slots    ResourceManager
	jobs     map[uuid.UUID]*Job
	mu       sync.RWMutex
	running  bool
	inFlight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logging.Logger
}

// Job is a scheduled scan of one target.
type Job struct {
	ID             uuid.UUID
	Name           string
	Target         string
	Range          scanning.PortRange
	CronExpression string
	CronID         cron.EntryID
	LastRun        time.Time
	NextRun        time.Time
	LastError      string
	Runs           int
	Running        bool
}

// NewScheduler creates a scheduler. maxConcurrent bounds how many jobs may
// scan at once (values below 1 mean 1).
func NewScheduler(scan ScanFunc, onResult ResultHandler, maxConcurrent int) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:     cron.New(),
		scan:     scan,
		onResult: onResult,
		slots:    NewFixedResourceManager(maxConcurrent),
		jobs:     make(map[uuid.UUID]*Job),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logging.Default().WithComponent("scheduler"),
	}
}

// Start begins the scheduler.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops the scheduler, cancels running scans and waits for them.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	stopped := s.cron.Stop()
	<-stopped.Done()
	s.inFlight.Wait()
	_ = s.slots.Close()

	s.logger.Info("Scheduler stopped", "slots", s.slots.GetStats())
}

// AddScanJob schedules a scan of target. cronExpr accepts the standard five
// fields and descriptors such as "@every 10m" or "@hourly".
func (s *Scheduler) AddScanJob(name, cronExpr, target string, rng scanning.PortRange) (uuid.UUID, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	if err := rng.Validate(); err != nil {
		return uuid.Nil, err
	}
	if target == "" {
		return uuid.Nil, fmt.Errorf("target is required")
	}

	job := &Job{
		ID:             uuid.New(),
		Name:           name,
		Target:         target,
		Range:          rng,
		CronExpression: cronExpr,
		NextRun:        schedule.Next(time.Now()),
	}
	if job.Name == "" {
		job.Name = target
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jobID := job.ID
	cronID := s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.executeScanJob(jobID)
	}))
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Added scan job",
		"job", job.Name,
		"target", target,
		"ports", rng.String(),
		"schedule", cronExpr)
	return job.ID, nil
}

// RemoveJob removes a scheduled job. A run already in progress finishes.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("job not found")
	}

	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)

	s.logger.Info("Removed scan job", "job", job.Name)
	return nil
}

// GetJobs returns a snapshot of all jobs ordered by name.
func (s *Scheduler) GetJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		snapshot := *job
		if entry := s.cron.Entry(job.CronID); entry.Valid() && !entry.Next.IsZero() {
			snapshot.NextRun = entry.Next
		}
		jobs = append(jobs, snapshot)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// RunNow executes a job immediately on the caller's goroutine, subject to
// the same overlap and slot rules as scheduled runs.
func (s *Scheduler) RunNow(jobID uuid.UUID) error {
	s.mu.RLock()
	_, exists := s.jobs[jobID]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("job not found")
	}

	s.executeScanJob(jobID)
	return nil
}

// executeScanJob runs one scan for a job and records the outcome.
func (s *Scheduler) executeScanJob(jobID uuid.UUID) {
	job, shouldContinue := s.prepareJobExecution(jobID)
	if !shouldContinue {
		return
	}
	defer s.cleanupJobExecution(jobID)

	runID := uuid.NewString()
	if err := s.slots.Acquire(s.ctx, runID); err != nil {
		s.logger.Warn("Scan job skipped, no slot available", "job", job.Name, "error", err)
		return
	}
	defer s.slots.Release(runID)

	s.logger.Info("Executing scan job", "job", job.Name, "target", job.Target)
	report, err := s.scan(s.ctx, job.Target, job.Range)

	s.mu.Lock()
	if current, ok := s.jobs[jobID]; ok {
		current.Runs++
		current.LastError = ""
		if err != nil {
			current.LastError = err.Error()
		}
		job = *current
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorScan("Scan job failed", job.Target, err, "job", job.Name)
	} else {
		s.logger.InfoScan("Scan job completed", job.Target,
			"job", job.Name,
			"ports_visible", len(report.Visible()),
			"duration", report.Duration)
	}

	if s.onResult != nil {
		s.onResult(job, report, err)
	}
}

// prepareJobExecution marks a job as running unless it was removed, is
// already running, or the scheduler is shutting down. The shutdown check and
// the in-flight count share s.mu with Stop's cancel.
func (s *Scheduler) prepareJobExecution(jobID uuid.UUID) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || s.ctx.Err() != nil {
		return Job{}, false
	}
	if job.Running {
		s.logger.Warn("Scan job is already running, skipping", "job", job.Name)
		return Job{}, false
	}

	job.Running = true
	job.LastRun = time.Now()
	s.inFlight.Add(1)
	return *job, true
}

func (s *Scheduler) cleanupJobExecution(jobID uuid.UUID) {
	s.mu.Lock()
	if job, exists := s.jobs[jobID]; exists {
		job.Running = false
	}
	s.mu.Unlock()
	s.inFlight.Done()
}
