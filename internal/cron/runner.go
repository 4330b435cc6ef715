// Package cron runs the housekeeping jobs of the import service
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Config holds cron runner configuration
type Config struct {
	JobTimeout time.Duration // Upper bound for a single job run
}

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context) error

// Job describes a registered job
type Job struct {
	Name     string    `json:"name"`
	Spec     string    `json:"spec"`
	RunCount int       `json:"run_count"`
	LastRun  time.Time `json:"last_run,omitempty"`
	LastErr  string    `json:"last_error,omitempty"`
	NextRun  time.Time `json:"next_run,omitempty"`

	id cron.EntryID
}

// Runner manages scheduled job execution
type Runner struct {
	config  Config
	cron    *cron.Cron
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    map[string]*Job
	running bool
	mu      sync.RWMutex
}

// NewRunner creates a new cron runner
func NewRunner(config Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		config: config,
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger: logger.Named("cron"),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]*Job),
	}
}

// AddJob registers fn under name. spec is a standard five-field cron
// expression or a descriptor such as "@every 30m".
func (r *Runner) AddJob(name, spec string, fn JobFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	job := &Job{Name: name, Spec: spec}
	id, err := r.cron.AddFunc(spec, func() { r.execute(job, fn) })
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	job.id = id
	r.jobs[name] = job

	r.logger.Info("Scheduled job added", zap.String("name", name), zap.String("spec", spec))
	return nil
}

// RunNow executes a registered job immediately, outside its schedule
func (r *Runner) RunNow(name string) error {
	r.mu.RLock()
	job, ok := r.jobs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("job %s not found", name)
	}

	entry := r.cron.Entry(job.id)
	if entry.Job == nil {
		return fmt.Errorf("job %s not scheduled", name)
	}
	entry.Job.Run()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if job.LastErr != "" {
		return fmt.Errorf("job %s failed: %s", name, job.LastErr)
	}
	return nil
}

// Start starts the cron runner
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("cron runner already running")
	}
	r.running = true
	r.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for running jobs
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("Cron runner stopped")
}

// IsRunning returns whether the runner is active
func (r *Runner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// ListJobs returns a snapshot of every registered job
func (r *Runner) ListJobs() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		snap := *j
		snap.NextRun = r.cron.Entry(j.id).Next
		jobs = append(jobs, snap)
	}
	return jobs
}

// execute runs a single job with the configured timeout
func (r *Runner) execute(job *Job, fn JobFunc) {
	ctx, cancel := context.WithTimeout(r.ctx, r.config.JobTimeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)

	r.mu.Lock()
	job.RunCount++
	job.LastRun = start
	job.LastErr = ""
	if err != nil {
		job.LastErr = err.Error()
	}
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("Job execution failed", zap.String("name", job.Name), zap.Error(err))
		return
	}
	r.logger.Debug("Job completed", zap.String("name", job.Name), zap.Duration("elapsed", time.Since(start)))
}
