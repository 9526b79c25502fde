package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrierlabs/harrier/internal/logging"
)

type countingTask struct {
	runs atomic.Int32
	err  error
}

func (t *countingTask) EvaluateAll(ctx context.Context) error {
	t.runs.Add(1)
	return t.err
}

func TestScheduler_RunsImmediatelyAndOnInterval(t *testing.T) {
	task := &countingTask{}
	s := New(task, 20*time.Millisecond, logging.New("error", "text"))

	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	runs := task.runs.Load()
	assert.GreaterOrEqual(t, runs, int32(3), "expected an immediate run plus interval ticks")
}

func TestScheduler_StopHaltsLoop(t *testing.T) {
	task := &countingTask{}
	s := New(task, 10*time.Millisecond, logging.New("error", "text"))

	s.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	s.Stop()

	after := task.runs.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, task.runs.Load(), "no runs after Stop")
}

func TestScheduler_TaskErrorDoesNotStopLoop(t *testing.T) {
	task := &countingTask{err: errors.New("cycle failed")}
	s := New(task, 15*time.Millisecond, logging.New("error", "text"))

	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, task.runs.Load(), int32(2))
}

func TestScheduler_ContextCancelStopsLoop(t *testing.T) {
	task := &countingTask{}
	ctx, cancel := context.WithCancel(context.Background())
	s := New(task, 10*time.Millisecond, logging.New("error", "text"))

	s.Start(ctx)
	time.Sleep(25 * time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)

	after := task.runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, task.runs.Load())

	s.Stop()
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	s := New(&countingTask{}, 10*time.Millisecond, logging.New("error", "text"))
	s.Start(context.Background())
	s.Stop()
	s.Stop()
}
