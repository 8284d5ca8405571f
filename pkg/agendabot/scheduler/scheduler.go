// Package scheduler runs the bot's periodic jobs (reminder sweep, store
// housekeeping) on top of robfig/cron.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a periodic job.
type JobFunc func(ctx context.Context) error

// Job is a named periodic task.
type Job struct {
	// Name identifies the job in logs and status output.
	Name string

	// Schedule is a cron expression or descriptor (@every 60s, @daily).
	Schedule string

	// Run is the job body.
	Run JobFunc

	// Timeout bounds a single execution. Zero uses the scheduler default.
	Timeout time.Duration
}

// Status describes a registered job.
type Status struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Next      time.Time `json:"next"`
	LastRunAt time.Time `json:"last_run_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	RunCount  int       `json:"run_count"`
}

// Scheduler manages periodic jobs.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	jobs    map[string]*Job
	state   map[string]*Status

	// running tracks jobs currently executing so a slow run is never
	// overlapped by the next tick.
	running map[string]bool

	jobTimeout time.Duration
	logger     *slog.Logger
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a Scheduler. Jobs are added with Add before or after Start.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithParser(cron.NewParser(
			cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
		))),
		entries:    make(map[string]cron.EntryID),
		jobs:       make(map[string]*Job),
		state:      make(map[string]*Status),
		running:    make(map[string]bool),
		jobTimeout: 2 * time.Minute,
		logger:     logger.With("component", "scheduler"),
		ctx:        context.Background(),
	}
}

// Add registers a job.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no body", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already exists", job.Name)
	}

	j := job
	entryID, err := s.cron.AddFunc(j.Schedule, func() { s.execute(&j) })
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", j.Schedule, err)
	}

	s.entries[j.Name] = entryID
	s.jobs[j.Name] = &j
	s.state[j.Name] = &Status{Name: j.Name, Schedule: j.Schedule}

	s.logger.Info("job added", "name", j.Name, "schedule", j.Schedule)
	return nil
}

// Start begins firing jobs. ctx bounds every execution.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", count)
}

// Stop halts the cron loop and waits for running jobs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	s.execute(job)

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg := s.state[name].LastError; msg != "" {
		return fmt.Errorf("job %q: %s", name, msg)
	}
	return nil
}

// List returns the status of every job, sorted by name.
func (s *Scheduler) List() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.state))
	for name, st := range s.state {
		cp := *st
		if id, ok := s.entries[name]; ok {
			cp.Next = s.cron.Entry(id).Next
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ---------- Internal ----------

// execute runs a job with an overlap guard, panic recovery and a timeout.
func (s *Scheduler) execute(job *Job) {
	s.mu.Lock()
	if s.running[job.Name] {
		s.mu.Unlock()
		s.logger.Warn("skipping job (already running)", "name", job.Name)
		return
	}
	s.running[job.Name] = true
	parent := s.ctx
	s.mu.Unlock()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = s.jobTimeout
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	start := time.Now()

	var runErr error
	defer func() {
		cancel()
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			s.logger.Error("scheduled job panicked", "name", job.Name, "panic", r)
		}

		s.mu.Lock()
		delete(s.running, job.Name)
		st := s.state[job.Name]
		st.LastRunAt = start
		st.RunCount++
		st.LastError = ""
		if runErr != nil {
			st.LastError = runErr.Error()
		}
		s.mu.Unlock()
	}()

	runErr = job.Run(ctx)
	if runErr != nil {
		s.logger.Error("job failed", "name", job.Name, "error", runErr, "duration", time.Since(start).String())
		return
	}
	s.logger.Debug("job completed", "name", job.Name, "duration", time.Since(start).String())
}
