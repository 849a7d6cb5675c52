// Package queue runs background jobs through a pluggable driver.
//
//	q := queue.NewManager(queue.NewMemoryDriver())
//	q.Register(jobs.PaymentReceivedName, func() queue.Job { return &jobs.PaymentReceived{} })
//	go q.Run(ctx, 2)
//
//	q.Dispatch(ctx, &jobs.PaymentReceived{OrderCode: "VO-..."})
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/shashiranjanraj/vidorder/pkg/logger"
	"github.com/shashiranjanraj/vidorder/pkg/metrics"
)

// Job is the interface every queued job must satisfy.
type Job interface {
	// Handle executes the job. Return a non-nil error to signal failure.
	Handle(ctx context.Context) error
}

// Named jobs are registered and dispatched under JobName instead of their
// Go type name.
type Named interface {
	JobName() string
}

// FailedJob holds information about a job that exhausted its retries.
type FailedJob struct {
	Name     string
	Job      Job
	Err      error
	FailedAt time.Time
	Attempts int
}

// Driver is the queue storage backend.
type Driver interface {
	Push(ctx context.Context, payload []byte) error
	// Pop blocks until a payload is ready. A nil payload with a nil error
	// means the wait timed out.
	Pop(ctx context.Context) ([]byte, error)
}

// DelayedDriver can hold a payload back until delay has passed.
type DelayedDriver interface {
	PushDelayed(ctx context.Context, payload []byte, delay time.Duration) error
}

// ErrUnknownJob is returned when a payload names an unregistered job.
var ErrUnknownJob = errors.New("queue: unregistered job type")

// Manager is the central queue hub.
type Manager struct {
	mu       sync.RWMutex
	driver   Driver
	registry map[string]func() Job
	failed   []FailedJob
	failedDB *gorm.DB
	maxRetry int
	backoff  time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxRetry sets how many times a failing job is attempted.
func WithMaxRetry(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxRetry = n
		}
	}
}

// WithBackoff sets the base delay between attempts; attempt n waits n*d.
func WithBackoff(d time.Duration) Option {
	return func(m *Manager) { m.backoff = d }
}

func NewManager(d Driver, opts ...Option) *Manager {
	m := &Manager{
		driver:   d,
		registry: map[string]func() Job{},
		maxRetry: 3,
		backoff:  time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register makes a job type available for decoding by name.
// Call this once at boot for every job type.
func (m *Manager) Register(name string, factory func() Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry[name] = factory
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	// Attempts already made; a retried payload carries its count with it.
	Attempts int `json:"attempts,omitempty"`
}

func nameOf(job Job) string {
	if n, ok := job.(Named); ok {
		return n.JobName()
	}
	return fmt.Sprintf("%T", job)
}

func encode(job Job) ([]byte, error) {
	typeName := nameOf(job)

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job %s: %w", typeName, err)
	}

	env, err := json.Marshal(envelope{Type: typeName, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("queue: marshal envelope: %w", err)
	}
	return env, nil
}

// Dispatch pushes job onto the queue immediately.
func (m *Manager) Dispatch(ctx context.Context, job Job) error {
	env, err := encode(job)
	if err != nil {
		return err
	}
	return m.driver.Push(ctx, env)
}

// DispatchAfter pushes job after delay. Drivers without delayed support
// fall back to an in-process timer.
func (m *Manager) DispatchAfter(ctx context.Context, job Job, delay time.Duration) error {
	env, err := encode(job)
	if err != nil {
		return err
	}
	return m.pushAfter(ctx, env, delay)
}

func (m *Manager) pushAfter(ctx context.Context, raw []byte, delay time.Duration) error {
	if delay <= 0 {
		return m.driver.Push(ctx, raw)
	}
	if dd, ok := m.driver.(DelayedDriver); ok {
		return dd.PushDelayed(ctx, raw, delay)
	}

	time.AfterFunc(delay, func() {
		if err := m.driver.Push(context.Background(), raw); err != nil {
			logger.Error("queue: delayed dispatch failed", "error", err)
		}
	})
	return nil
}

// Run processes jobs with n concurrent workers until ctx is cancelled,
// then waits for in-flight jobs to finish.
func (m *Manager) Run(ctx context.Context, n int) {
	if n <= 0 {
		n = 1
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m.work(ctx)
		}()
	}
	logger.Info("queue: workers started", "count", n)
	wg.Wait()
	logger.Info("queue: workers stopped")
}

func (m *Manager) work(ctx context.Context) {
	for {
		raw, err := m.driver.Pop(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("queue: pop failed", "error", err)
			sleep(ctx, 500*time.Millisecond)
			continue
		}
		if raw == nil {
			continue
		}

		if err := m.Process(ctx, raw); err != nil {
			logger.Error("queue: dropped payload", "error", err)
		}
	}
}

// Process decodes and runs one payload once. A failing job is pushed back
// with a delay of attempts*backoff until it has been tried maxRetry times,
// then recorded as failed; neither is an error here. Only undecodable
// payloads are.
func (m *Manager) Process(ctx context.Context, raw []byte) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("queue: bad envelope: %w", err)
	}

	m.mu.RLock()
	factory, ok := m.registry[env.Type]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, env.Type)
	}

	job := factory()
	if err := json.Unmarshal(env.Payload, job); err != nil {
		return fmt.Errorf("queue: unmarshal %s payload: %w", env.Type, err)
	}

	m.attempt(ctx, job, env)
	return nil
}

func (m *Manager) attempt(ctx context.Context, job Job, env envelope) {
	start := time.Now()
	env.Attempts++

	err := job.Handle(ctx)
	if err == nil {
		metrics.RecordQueueJob(env.Type, "processed", start)
		logger.Info("queue: job processed", "type", env.Type, "attempt", env.Attempts)
		return
	}
	logger.Warn("queue: job failed", "type", env.Type, "attempt", env.Attempts, "error", err)

	if env.Attempts < m.maxRetry {
		// The worker may be shutting down; the retry must still be stored.
		rctx := context.WithoutCancel(ctx)
		raw, encErr := json.Marshal(env)
		if encErr == nil {
			encErr = m.pushAfter(rctx, raw, time.Duration(env.Attempts)*m.backoff)
		}
		if encErr == nil {
			metrics.RecordQueueJob(env.Type, "retried", start)
			return
		}
		logger.Error("queue: requeue failed", "type", env.Type, "error", encErr)
	}

	metrics.RecordQueueJob(env.Type, "failed", start)
	m.persistFailed(context.WithoutCancel(ctx), job, env.Type, err, env.Attempts)
	logger.Error("queue: job exhausted retries", "type", env.Type, "attempts", env.Attempts, "error", err)
}

// FailedJobs returns a snapshot of the jobs that failed in this process.
func (m *Manager) FailedJobs() []FailedJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]FailedJob, len(m.failed))
	copy(out, m.failed)
	return out
}

// sleep waits for d or until ctx is done; it reports whether d elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
