package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/judgehost/judgehost/internal/scheduler"
)

func TestSchedulerRunsTaskOnInterval(t *testing.T) {
	var runs int32
	s := scheduler.New(nil, scheduler.Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop(context.Background())

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}

func TestSchedulerDropsNonPositiveIntervalTasks(t *testing.T) {
	var runs int32
	s := scheduler.New(nil, scheduler.Task{
		Name:     "never",
		Interval: 0,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	s.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	s.Stop(context.Background())

	assert.Equal(t, int32(0), atomic.LoadInt32(&runs))
}

func TestSchedulerStopIsIdempotentAndSafeBeforeStart(t *testing.T) {
	s := scheduler.New(nil, scheduler.Task{Name: "x", Interval: time.Second, Run: func(context.Context) error { return nil }})
	assert.NotPanics(t, func() { s.Stop(context.Background()) })

	s.Start(context.Background())
	assert.NotPanics(t, func() {
		s.Stop(context.Background())
		s.Stop(context.Background())
	})
}

func TestSchedulerStartTwiceIsNoOp(t *testing.T) {
	var runs int32
	s := scheduler.New(nil, scheduler.Task{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})
	s.Start(context.Background())
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop(context.Background())

	assert.Less(t, atomic.LoadInt32(&runs), int32(10))
}

func TestSchedulerContinuesAfterTaskError(t *testing.T) {
	var runs int32
	s := scheduler.New(nil, scheduler.Task{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Run: func(context.Context) error {
			n := atomic.AddInt32(&runs, 1)
			if n == 1 {
				return assert.AnError
			}
			return nil
		},
	})
	s.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	s.Stop(context.Background())

	assert.GreaterOrEqual(t, atomic.LoadInt32(&runs), int32(2))
}
