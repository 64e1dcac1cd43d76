package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/dualscan/internal/scanning"
)

var testRange = scanning.PortRange{Start: 20, End: 25}

func fakeScan(calls *atomic.Int64, delay time.Duration, err error) ScanFunc {
	return func(ctx context.Context, target string, rng scanning.PortRange) (*scanning.Report, error) {
		calls.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if err != nil {
			return nil, err
		}
		report := &scanning.Report{Target: target, Range: rng, StartTime: time.Now()}
		report.Complete()
		return report, nil
	}
}

func TestAddScanJobValidation(t *testing.T) {
	var calls atomic.Int64
	s := NewScheduler(fakeScan(&calls, 0, nil), nil, 1)

	_, err := s.AddScanJob("bad", "not a cron", "127.0.0.1", testRange)
	assert.Error(t, err)

	_, err = s.AddScanJob("bad range", "@every 1m", "127.0.0.1", scanning.PortRange{Start: 0, End: 10})
	assert.Error(t, err)

	_, err = s.AddScanJob("no target", "@every 1m", "", testRange)
	assert.Error(t, err)

	id, err := s.AddScanJob("", "*/5 * * * *", "127.0.0.1", testRange)
	require.NoError(t, err)

	jobs := s.GetJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, id, jobs[0].ID)
	assert.Equal(t, "127.0.0.1", jobs[0].Name, "name defaults to the target")
	assert.True(t, jobs[0].NextRun.After(time.Now()))
}

func TestRunNowRecordsOutcome(t *testing.T) {
	var calls atomic.Int64
	var mu sync.Mutex
	var results []error
	handler := func(job Job, report *scanning.Report, err error) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, err)
		if err == nil {
			assert.Equal(t, job.Target, report.Target)
		}
	}

	s := NewScheduler(fakeScan(&calls, 0, nil), handler, 1)
	id, err := s.AddScanJob("local", "@every 1h", "127.0.0.1", testRange)
	require.NoError(t, err)

	require.NoError(t, s.RunNow(id))
	require.NoError(t, s.RunNow(id))

	assert.Equal(t, int64(2), calls.Load())
	jobs := s.GetJobs()
	assert.Equal(t, 2, jobs[0].Runs)
	assert.Empty(t, jobs[0].LastError)
	assert.False(t, jobs[0].Running)
	assert.False(t, jobs[0].LastRun.IsZero())
	assert.Equal(t, []error{nil, nil}, results)

	assert.Error(t, s.RunNow(uuid.New()))
}

func TestRunNowRecordsFailure(t *testing.T) {
	var calls atomic.Int64
	s := NewScheduler(fakeScan(&calls, 0, errors.New("unreachable")), nil, 1)
	id, err := s.AddScanJob("bad", "@every 1h", "host.invalid", testRange)
	require.NoError(t, err)

	require.NoError(t, s.RunNow(id))
	assert.Equal(t, "unreachable", s.GetJobs()[0].LastError)
}

func TestJobDoesNotOverlapItself(t *testing.T) {
	var calls atomic.Int64
	s := NewScheduler(fakeScan(&calls, 100*time.Millisecond, nil), nil, 2)
	id, err := s.AddScanJob("slow", "@every 1h", "127.0.0.1", testRange)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.RunNow(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load())
}

func TestSlotsBoundConcurrentJobs(t *testing.T) {
	var current, peak atomic.Int64
	scan := func(ctx context.Context, target string, rng scanning.PortRange) (*scanning.Report, error) {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		current.Add(-1)
		return &scanning.Report{Target: target, Range: rng}, nil
	}

	s := NewScheduler(scan, nil, 1)
	var ids []uuid.UUID
	for _, target := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		id, err := s.AddScanJob(target, "@every 1h", target, testRange)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_ = s.RunNow(id)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int64(1), peak.Load())
}

func TestRemoveJob(t *testing.T) {
	var calls atomic.Int64
	s := NewScheduler(fakeScan(&calls, 0, nil), nil, 1)
	id, err := s.AddScanJob("local", "@every 1h", "127.0.0.1", testRange)
	require.NoError(t, err)

	require.NoError(t, s.RemoveJob(id))
	assert.Empty(t, s.GetJobs())
	assert.Error(t, s.RemoveJob(id))
	assert.Error(t, s.RunNow(id))
	assert.Zero(t, calls.Load())
}

func TestScheduledExecutionAndStop(t *testing.T) {
	var calls atomic.Int64
	ran := make(chan struct{}, 10)
	handler := func(Job, *scanning.Report, error) { ran <- struct{}{} }

	s := NewScheduler(fakeScan(&calls, 0, nil), handler, 1)
	_, err := s.AddScanJob("tick", "@every 1s", "127.0.0.1", testRange)
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Error(t, s.Start(), "double start must fail")

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	s.Stop()
	s.Stop()
	assert.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestStopCancelsRunningScan(t *testing.T) {
	var calls atomic.Int64
	errs := make(chan error, 1)
	handler := func(_ Job, _ *scanning.Report, err error) { errs <- err }

	s := NewScheduler(fakeScan(&calls, 10*time.Second, nil), handler, 1)
	id, err := s.AddScanJob("slow", "@every 1h", "127.0.0.1", testRange)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	go func() { _ = s.RunNow(id) }()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestNoScanStartsAfterStop(t *testing.T) {
	for i := 0; i < 50; i++ {
		var calls atomic.Int64
		var stopped atomic.Bool
		handler := func(Job, *scanning.Report, error) {
			assert.False(t, stopped.Load(), "scan finished after Stop returned")
		}

		s := NewScheduler(fakeScan(&calls, time.Millisecond, nil), handler, 1)
		id, err := s.AddScanJob("race", "@every 1h", "127.0.0.1", testRange)
		require.NoError(t, err)
		require.NoError(t, s.Start())

		var wg sync.WaitGroup
		for j := 0; j < 4; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.RunNow(id)
			}()
		}
		s.Stop()
		stopped.Store(true)
		wg.Wait()
	}
}

func TestRunNowAfterStopIsSkipped(t *testing.T) {
	var calls atomic.Int64
	s := NewScheduler(fakeScan(&calls, 0, nil), nil, 1)
	id, err := s.AddScanJob("local", "@every 1h", "127.0.0.1", testRange)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	s.Stop()

	require.NoError(t, s.RunNow(id))
	assert.Zero(t, calls.Load())
}
