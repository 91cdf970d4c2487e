package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "ensemble/internal/log"
)

// Task is one step of a scheduled run. Steps run in order; a failing step is
// logged and does not stop the ones after it.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs a fixed list of tasks on a cron schedule.
type Scheduler struct {
	cron  *cron.Cron
	tasks []Task

	mu  sync.Mutex
	ctx context.Context
}

// cronLogger routes robfig/cron's internal logging into the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}

// New parses spec (standard 5-field cron syntax or a descriptor such as
// "@every 10m") and returns a Scheduler that evaluates it in loc.
func New(spec string, loc *time.Location, tasks ...Task) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		tasks: tasks,
		ctx:   context.Background(),
	}
	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, fmt.Errorf("scheduler: invalid refresh spec %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if err := s.RunOnce(ctx); err != nil {
		appLog.Warn("scheduled run finished with errors", "err", err.Error())
	}
}

// RunOnce runs every task in order and returns their joined errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	start := time.Now()
	var errs []error
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := t.Run(ctx); err != nil {
			appLog.Error("scheduled task failed", err, "task", t.Name)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		appLog.Debug("scheduled task done", "task", t.Name)
	}
	appLog.Info("scheduled run complete", "tasks", len(s.tasks), "duration", time.Since(start).Round(time.Millisecond).String())
	return errors.Join(errs...)
}

// Next returns the next time the schedule fires, or the zero time when the
// scheduler is not running.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Start begins firing on schedule. Runs use ctx and stop being scheduled when
// it is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the schedule and waits for a run in progress to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
