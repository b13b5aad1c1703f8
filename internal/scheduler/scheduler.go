package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opentalon/funchost/internal/description"
	"github.com/opentalon/funchost/internal/host"
	"github.com/opentalon/funchost/internal/script"
)

// Invoker runs a registered function. *host.Host implements it.
type Invoker interface {
	Invoke(ctx context.Context, name, input string) (*script.Result, error)
}

// Job is a timer-triggered function at runtime.
type Job struct {
	Function     string
	Registration string
	Schedule     description.Schedule
	RunOnStartup bool
	Paused       bool
}

type runningJob struct {
	job    Job
	cancel context.CancelFunc
}

// Scheduler fires timer-triggered functions on their schedules.
type Scheduler struct {
	mu      sync.RWMutex
	jobs    map[string]*runningJob
	last    map[string]time.Time
	invoker Invoker
	logger  *slog.Logger
	dataDir string
	now     func() time.Time

	persistMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. When dataDir is set, the last occurrence of each
// timer is kept in dataDir/scheduler/timers.yaml so missed runs are reported
// as past due after a restart.
func New(invoker Invoker, logger *slog.Logger, dataDir string) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		jobs:    make(map[string]*runningJob),
		last:    make(map[string]time.Time),
		invoker: invoker,
		logger:  logger.With("component", "scheduler"),
		dataDir: dataDir,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}
	last, err := s.loadStatus()
	if err != nil {
		s.logger.Warn("loading timer status", "error", err)
	}
	for name, t := range last {
		s.last[name] = t
	}
	return s
}

// JobFromRegistration builds the timer job of a registration. ok is false
// when the function is not timer-triggered.
func JobFromRegistration(reg host.Registration) (Job, bool, error) {
	trigger := reg.Descriptor.Trigger()
	if trigger.Type != description.TypeTimerTrigger {
		return Job{}, false, nil
	}
	sched, err := description.ParseSchedule(trigger.Attributes["schedule"])
	if err != nil {
		return Job{}, false, fmt.Errorf("timer %s: %w", reg.Name(), err)
	}
	return Job{
		Function:     reg.Name(),
		Registration: reg.ID,
		Schedule:     sched,
		RunOnStartup: trigger.Attributes["runOnStartup"] == "true",
	}, true, nil
}

// Sync makes the running jobs match the timer-triggered registrations.
// Jobs whose registration is unchanged keep running; others are restarted
// or stopped.
func (s *Scheduler) Sync(regs []host.Registration) {
	want := make(map[string]Job)
	for _, reg := range regs {
		job, ok, err := JobFromRegistration(reg)
		if err != nil {
			s.logger.Error("skipping timer", "function", reg.Name(), "error", err)
			continue
		}
		if ok {
			want[job.Function] = job
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, rj := range s.jobs {
		if next, ok := want[name]; !ok || next.Registration != rj.job.Registration {
			rj.cancel()
			delete(s.jobs, name)
			s.logger.Info("timer stopped", "function", name)
		}
	}
	for name, job := range want {
		if _, running := s.jobs[name]; running {
			continue
		}
		s.startLocked(job)
		s.logger.Info("timer scheduled", "function", name, "schedule", job.Schedule.Expr)
	}
}

func (s *Scheduler) startLocked(job Job) {
	jobCtx, cancel := context.WithCancel(s.ctx)
	rj := &runningJob{job: job, cancel: cancel}
	s.jobs[job.Function] = rj
	if job.Paused {
		return
	}
	s.wg.Add(1)
	go s.runJob(jobCtx, job)
}

// Stop cancels all timers and waits for running invocations to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) PauseJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("timer %q not found", name)
	}
	rj.cancel()
	rj.job.Paused = true
	return nil
}

func (s *Scheduler) ResumeJob(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rj, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("timer %q not found", name)
	}
	if !rj.job.Paused {
		return fmt.Errorf("timer %q is not paused", name)
	}
	job := rj.job
	job.Paused = false
	job.RunOnStartup = false
	s.startLocked(job)
	return nil
}

// ListJobs returns the jobs sorted by function name.
func (s *Scheduler) ListJobs() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, rj.job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Function < out[j].Function })
	return out
}

// LastRun returns the last occurrence of a timer, zero if it never fired.
func (s *Scheduler) LastRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last[name]
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	defer s.wg.Done()

	if job.RunOnStartup {
		s.fire(ctx, job)
	}
	for {
		now := s.now()
		next := job.Schedule.Next(now)
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, job)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	now := s.now()
	info := description.NewTimerInfo(job.Schedule, s.LastRun(job.Function), now)
	input, err := json.Marshal(info)
	if err != nil {
		s.logger.Error("encode timer info", "function", job.Function, "error", err)
		return
	}
	if info.IsPastDue {
		s.logger.Warn("timer is past due", "function", job.Function)
	}

	if _, err := s.invoker.Invoke(ctx, job.Function, string(input)); err != nil {
		s.logger.Error("timer invocation failed", "function", job.Function, "error", err)
	}

	s.mu.Lock()
	s.last[job.Function] = now
	s.mu.Unlock()
	if err := s.persistStatus(); err != nil {
		s.logger.Warn("persisting timer status", "error", err)
	}
}

func (s *Scheduler) persistPath() string {
	return filepath.Join(s.dataDir, "scheduler", "timers.yaml")
}

func (s *Scheduler) persistStatus() error {
	if s.dataDir == "" {
		return nil
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	status := make(map[string]time.Time, len(s.last))
	for name, t := range s.last {
		status[name] = t.UTC()
	}
	s.mu.RUnlock()

	dir := filepath.Dir(s.persistPath())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating scheduler dir: %w", err)
	}
	data, err := yaml.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshaling timer status: %w", err)
	}
	tmp := s.persistPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("writing timer status: %w", err)
	}
	return os.Rename(tmp, s.persistPath())
}

func (s *Scheduler) loadStatus() (map[string]time.Time, error) {
	if s.dataDir == "" {
		return nil, nil
	}
	data, err := os.ReadFile(s.persistPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading timer status: %w", err)
	}
	var status map[string]time.Time
	if err := yaml.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("parsing timer status: %w", err)
	}
	return status, nil
}
