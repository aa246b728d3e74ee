package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingJob records its runs.
type countingJob struct {
	name string
	runs atomic.Int64
	err  error
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	return j.err
}

// panicJob always panics.
type panicJob struct{}

func (panicJob) Name() string { return "panic_job" }

func (panicJob) Run(ctx context.Context) error { panic("boom") }

func TestIntervalSchedule_Next(t *testing.T) {
	s := NewIntervalSchedule(10 * time.Minute)
	at := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, at.Add(10*time.Minute), s.Next(at))
	assert.Equal(t, "@every 10m0s", s.String())
}

func TestDailySchedule_Next(t *testing.T) {
	s := NewDailySchedule(3, 30)

	before := time.Date(2025, 6, 15, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 15, 3, 30, 0, 0, time.UTC), s.Next(before))

	after := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 3, 30, 0, 0, time.UTC), s.Next(after))

	// Exactly at the scheduled time means the next occurrence is tomorrow.
	exact := time.Date(2025, 6, 15, 3, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 3, 30, 0, 0, time.UTC), s.Next(exact))
}

func TestDailySchedule_ClampsInvalidTime(t *testing.T) {
	s := NewDailySchedule(25, -1)
	assert.Equal(t, 0, s.Hour)
	assert.Equal(t, 0, s.Minute)
	assert.Equal(t, "@daily 00:00", s.String())
}

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New()

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, nil), ErrNilSchedule)

	require.NoError(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(&countingJob{name: "a"}, NewIntervalSchedule(time.Minute)), ErrDuplicateJob)
}

func TestScheduler_StartTwiceFails(t *testing.T) {
	s := New()
	defer s.Stop()

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)
}

func TestScheduler_RunNow(t *testing.T) {
	s := New()
	defer s.Stop()

	job := &countingJob{name: "scan"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.RunNow(context.Background(), "scan"))
	assert.Equal(t, int64(1), job.runs.Load())
}

func TestScheduler_RunNowUnknownJob(t *testing.T) {
	s := New()
	defer s.Stop()
	require.NoError(t, s.Start(context.Background()))

	assert.ErrorIs(t, s.RunNow(context.Background(), "missing"), ErrJobNotFound)
}

func TestScheduler_RunNowBeforeStart(t *testing.T) {
	s := New()
	require.NoError(t, s.Register(&countingJob{name: "scan"}, NewIntervalSchedule(time.Hour)))

	assert.ErrorIs(t, s.RunNow(context.Background(), "scan"), ErrSchedulerStopped)
}

func TestScheduler_RunsDueJobs(t *testing.T) {
	s := New(WithTick(10 * time.Millisecond))
	defer s.Stop()

	job := &countingJob{name: "fast"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(20*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return job.runs.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_JobPanicIsContained(t *testing.T) {
	s := New(WithTick(10 * time.Millisecond))
	defer s.Stop()

	require.NoError(t, s.Register(panicJob{}, NewIntervalSchedule(20*time.Millisecond)))
	survivor := &countingJob{name: "survivor"}
	require.NoError(t, s.Register(survivor, NewIntervalSchedule(20*time.Millisecond)))
	require.NoError(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return survivor.runs.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Eventually(t, func() bool {
		for _, j := range s.ListJobs() {
			if j.Name == "panic_job" && j.LastErr != "" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ListJobsSortedBySoonest(t *testing.T) {
	s := New()

	require.NoError(t, s.Register(&countingJob{name: "later"}, NewIntervalSchedule(2*time.Hour)))
	require.NoError(t, s.Register(&countingJob{name: "sooner"}, NewIntervalSchedule(time.Minute)))

	infos := s.ListJobs()
	require.Len(t, infos, 2)
	assert.Equal(t, "sooner", infos[0].Name)
	assert.Equal(t, "later", infos[1].Name)
}

func TestScheduler_RecordsFailure(t *testing.T) {
	s := New()
	defer s.Stop()

	job := &countingJob{name: "failing", err: errors.New("scan failed")}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.RunNow(context.Background(), "failing"))

	for _, info := range s.ListJobs() {
		if info.Name == "failing" {
			assert.Equal(t, "scan failed", info.LastErr)
			assert.False(t, info.FailedAt.IsZero())
			assert.Equal(t, int64(1), info.RunCount)
		}
	}
}
