package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/specialistvlad/fnnxgo/internal/pyfunc"
	"github.com/specialistvlad/fnnxgo/internal/value"
)

// SleeperClass is the pyfunc class name SleeperModule registers.
const SleeperClass = "tests.Sleeper"

// ExecutionRecord holds the start and end times of a single call.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// SleeperModule is a shared plugin module for concurrency tests. Its
// function sleeps, passes its single input through, and records the call
// window under the instance's "id" extra value.
type SleeperModule struct {
	mu             sync.Mutex
	executionTimes map[string]ExecutionRecord
	sleepDuration  time.Duration
	started        atomic.Int32
}

// NewSleeperModule creates a sleeper module whose calls take sleep.
func NewSleeperModule(sleep time.Duration) *SleeperModule {
	return &SleeperModule{
		executionTimes: make(map[string]ExecutionRecord),
		sleepDuration:  sleep,
	}
}

// Register registers the sleeper class.
func (m *SleeperModule) Register(r *pyfunc.Registry) {
	r.Register(SleeperClass, func() any { return &sleeper{m: m} })
}

// Started returns how many calls have begun sleeping.
func (m *SleeperModule) Started() int { return int(m.started.Load()) }

// Records returns a copy of the recorded call windows.
func (m *SleeperModule) Records() map[string]ExecutionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]ExecutionRecord, len(m.executionTimes))
	for k, v := range m.executionTimes {
		out[k] = v
	}
	return out
}

type sleeper struct {
	m  *SleeperModule
	id string
}

func (s *sleeper) Warmup(ctx context.Context, c *pyfunc.Context) error {
	v, err := c.GetValue("id")
	if err != nil {
		return err
	}
	s.id, _ = v.AsString()
	return nil
}

func (s *sleeper) Compute(ctx context.Context, inputs value.Map, attrs value.Map) (value.Map, error) {
	start := time.Now()
	s.m.started.Add(1)
	select {
	case <-time.After(s.m.sleepDuration):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	end := time.Now()

	s.m.mu.Lock()
	s.m.executionTimes[s.id] = ExecutionRecord{Start: start, End: end}
	s.m.mu.Unlock()

	out := make(value.Map, 1)
	for _, v := range inputs {
		out["out"] = v
	}
	return out, nil
}

func (s *sleeper) ComputeAsync(ctx context.Context, inputs value.Map, attrs value.Map) *pyfunc.Future {
	return pyfunc.Async(ctx, func(ctx context.Context) (value.Map, error) {
		return s.Compute(ctx, inputs, attrs)
	})
}

func (s *sleeper) Reentrant() bool { return true }
