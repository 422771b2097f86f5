package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// IntervalSchedule schedules a job to run at a fixed interval.
type IntervalSchedule struct {
	Interval time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.Interval)
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	return fmt.Sprintf("@every %s", s.Interval)
}

// CronSchedule runs a job on a standard 5-field cron expression
// ("0 3 * * *" is every day at 03:00). Descriptors such as "@daily" are
// accepted too.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
	location *time.Location
}

// NewCronSchedule parses expr. Times are evaluated in loc (UTC when nil).
func NewCronSchedule(expr string, loc *time.Location) (*CronSchedule, error) {
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", expr, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CronSchedule{expr: expr, schedule: parsed, location: loc}, nil
}

// Next returns the first matching time after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// String returns the original expression.
func (s *CronSchedule) String() string {
	return s.expr
}
