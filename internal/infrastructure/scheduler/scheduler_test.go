package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnhub/progression-engine/pkg/logger"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) (Report, error)
}

func (j funcJob) Name() string        { return j.name }
func (j funcJob) Description() string { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) (Report, error) {
	return j.run(ctx)
}

func newTestScheduler() *Scheduler {
	return New(Config{Logger: logger.Nop(), TickInterval: 5 * time.Millisecond, JobTimeout: time.Second})
}

func TestRegister(t *testing.T) {
	s := newTestScheduler()
	job := funcJob{name: "a", run: func(context.Context) (Report, error) { return nil, nil }}

	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Minute)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Minute)), ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Minute)), ErrNilJob)
	assert.ErrorIs(t, s.Register(funcJob{name: "b"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
	assert.True(t, jobs[0].Enabled)
}

func TestRunNow_RecordsReport(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(funcJob{name: "audit", run: func(context.Context) (Report, error) {
		return Report{"drifting": 0}, nil
	}}, NewIntervalSchedule(time.Hour)))

	var hooked JobResult
	s.OnJobComplete(func(r JobResult) { hooked = r })

	res, err := s.RunNow(context.Background(), "audit")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Manual)
	assert.Equal(t, 0, res.Metadata["drifting"])
	assert.Equal(t, "audit", hooked.JobName)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(10)
	require.Len(t, history, 1)
	assert.Equal(t, int64(1), s.ListJobs()[0].RunCount)
}

func TestRunNow_PanicBecomesError(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.Register(funcJob{name: "bad", run: func(context.Context) (Report, error) {
		panic("nil map")
	}}, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrJobPanicked)
	assert.False(t, res.Success)
	assert.Equal(t, int64(1), s.ListJobs()[0].FailCount)
}

func TestScheduler_RunsDueJobsUntilStopped(t *testing.T) {
	s := newTestScheduler()
	var runs atomic.Int32
	require.NoError(t, s.Register(funcJob{name: "tick", run: func(context.Context) (Report, error) {
		runs.Add(1)
		return nil, nil
	}}, NewIntervalSchedule(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
	assert.False(t, s.IsRunning())
}

func TestScheduler_JobTimeout(t *testing.T) {
	s := New(Config{Logger: logger.Nop(), JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Register(funcJob{name: "slow", run: func(ctx context.Context) (Report, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}, NewIntervalSchedule(time.Hour)))

	_, err := s.RunNow(context.Background(), "slow")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCronSchedule(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Almaty")
	require.NoError(t, err)

	sched, err := NewCronSchedule("0 3 * * *", loc)
	require.NoError(t, err)
	assert.Equal(t, "0 3 * * *", sched.String())

	from := time.Date(2024, 6, 3, 12, 0, 0, 0, loc)
	next := sched.Next(from)
	assert.True(t, next.Equal(time.Date(2024, 6, 4, 3, 0, 0, 0, loc)), next.String())

	_, err = NewCronSchedule("every tuesday", nil)
	assert.Error(t, err)
}
