package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shashiranjanraj/vidorder/pkg/queue"
)

var (
	echoCalls atomic.Int32
	failCalls atomic.Int32
)

type echoJob struct {
	Val string `json:"val"`
}

func (j *echoJob) JobName() string { return "echo" }

func (j *echoJob) Handle(context.Context) error {
	echoCalls.Add(1)
	return nil
}

type failJob struct{}

func (failJob) JobName() string { return "fail" }

func (failJob) Handle(context.Context) error {
	failCalls.Add(1)
	return errors.New("always fails")
}

func newManager(opts ...queue.Option) *queue.Manager {
	m := queue.NewManager(queue.NewMemoryDriver(), opts...)
	m.Register("echo", func() queue.Job { return &echoJob{} })
	m.Register("fail", func() queue.Job { return &failJob{} })
	return m
}

func TestDispatchAndProcess(t *testing.T) {
	m := newManager()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 2)
		close(done)
	}()

	before := echoCalls.Load()
	require.NoError(t, m.Dispatch(ctx, &echoJob{Val: "hello"}))

	assert.Eventually(t, func() bool { return echoCalls.Load() == before+1 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestFailedJobRetry(t *testing.T) {
	m := newManager(queue.WithMaxRetry(2), queue.WithBackoff(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 1)
		close(done)
	}()

	before := failCalls.Load()
	require.NoError(t, m.Dispatch(ctx, failJob{}))

	assert.Eventually(t, func() bool { return len(m.FailedJobs()) == 1 },
		2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, before+2, failCalls.Load())
	failed := m.FailedJobs()
	assert.Equal(t, "fail", failed[0].Name)
	assert.Equal(t, 2, failed[0].Attempts)
}

func TestProcessRequeuesFailureWithoutBlocking(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(d, queue.WithMaxRetry(3), queue.WithBackoff(time.Hour))
	m.Register("fail", func() queue.Job { return &failJob{} })

	before := failCalls.Load()
	start := time.Now()
	require.NoError(t, m.Process(context.Background(), encodeJob(t, failJob{})))

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, before+1, failCalls.Load())
	assert.Equal(t, 1, d.Len(), "retry waits on the delay")
	assert.Empty(t, m.FailedJobs())
}

func TestProcessCarriesAttemptCount(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(d, queue.WithMaxRetry(3), queue.WithBackoff(time.Millisecond))
	m.Register("fail", func() queue.Job { return &failJob{} })
	ctx := context.Background()

	require.NoError(t, m.Process(ctx, encodeJob(t, failJob{})))

	pctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	raw, err := d.Pop(pctx)
	require.NoError(t, err)

	var env struct {
		Type     string `json:"type"`
		Attempts int    `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, "fail", env.Type)
	assert.Equal(t, 1, env.Attempts)
}

func TestProcessRecordsFinalAttempt(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(d, queue.WithMaxRetry(3))
	m.Register("fail", func() queue.Job { return &failJob{} })

	require.NoError(t, m.Process(context.Background(), []byte(`{"type":"fail","payload":{},"attempts":2}`)))

	failed := m.FailedJobs()
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)
	assert.Equal(t, 0, d.Len())
}

func TestProcessRejectsUnknownType(t *testing.T) {
	m := queue.NewManager(queue.NewMemoryDriver())
	err := m.Process(context.Background(), []byte(`{"type":"nope","payload":{}}`))
	assert.ErrorIs(t, err, queue.ErrUnknownJob)
}

func TestDispatchConcurrent(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(d)

	var wg sync.WaitGroup
	wg.Add(20)
	for i := 0; i < 20; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Dispatch(context.Background(), &echoJob{Val: "c"}))
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, d.Len())
}

// plainDriver has no delayed support.
type plainDriver struct{ d *queue.MemoryDriver }

func (p plainDriver) Push(ctx context.Context, b []byte) error { return p.d.Push(ctx, b) }
func (p plainDriver) Pop(ctx context.Context) ([]byte, error) { return p.d.Pop(ctx) }

func TestDispatchAfterWithoutDelayedDriver(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(plainDriver{d})

	require.NoError(t, m.DispatchAfter(context.Background(), &echoJob{}, 10*time.Millisecond))
	assert.Equal(t, 0, d.Len())
	assert.Eventually(t, func() bool { return d.Len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestMemoryDriverDelayedCountsAsPending(t *testing.T) {
	d := queue.NewMemoryDriver()
	m := queue.NewManager(d)

	require.NoError(t, m.DispatchAfter(context.Background(), &echoJob{}, 20*time.Millisecond))
	assert.Equal(t, 1, d.Len())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	raw, err := d.Pop(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"echo"`)
	assert.Eventually(t, func() bool { return d.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func encodeJob(t *testing.T, job queue.Job) []byte {
	t.Helper()
	d := queue.NewMemoryDriver()
	require.NoError(t, queue.NewManager(d).Dispatch(context.Background(), job))
	raw, err := d.Pop(context.Background())
	require.NoError(t, err)
	return raw
}
