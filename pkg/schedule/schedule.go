// Package schedule runs named periodic tasks on cron expressions.
//
//	s := schedule.New()
//	s.Add("reconcile", "@every 15m", sweep)
//	s.Start(ctx) // blocks until ctx is done
//
// A task that is still running when its next tick fires is skipped, never
// run twice concurrently.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shashiranjanraj/vidorder/pkg/logger"
)

// Task is the function signature for a scheduled task. The context is
// cancelled when the scheduler stops.
type Task func(ctx context.Context) error

// Entry describes a registered task.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[cron.EntryID]Entry
}

// New returns a scheduler in UTC that accepts the standard five-field
// syntax plus descriptors like @hourly and @every 5m.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cronLogger{}), cron.SkipIfStillRunning(cronLogger{})),
		),
		ctx:     ctx,
		cancel:  cancel,
		entries: map[cron.EntryID]Entry{},
	}
}

// Add registers task under name. It fails on a malformed spec.
func (s *Scheduler) Add(name, spec string, task Task) error {
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		logger.Info("schedule: running", "task", name)
		if err := task(s.ctx); err != nil {
			logger.Error("schedule: task failed", "task", name, "error", err, "duration", time.Since(start))
			return
		}
		logger.Info("schedule: done", "task", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("schedule: %s: %w", name, err)
	}

	s.mu.Lock()
	s.entries[id] = Entry{Name: name, Spec: spec}
	s.mu.Unlock()
	return nil
}

// List returns the registered tasks with their next run time.
func (s *Scheduler) List() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, ce := range s.cron.Entries() {
		e, ok := s.entries[ce.ID]
		if !ok {
			continue
		}
		e.Next = ce.Next
		out = append(out, e)
	}
	return out
}

// Start runs the scheduler until ctx is done, then waits for running
// tasks to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	<-ctx.Done()

	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's internal logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
