package domain

import (
	"context"
	"fmt"
	"time"
)

// Aggregation intervals for health queries.
const (
	IntervalHour = "hour"
	IntervalDay  = "day"
)

// HealthQuery selects bucketed samples of one type for one user.
type HealthQuery struct {
	UserID     string
	SampleType string
	Start      time.Time
	End        time.Time
	Interval   string // "hour" or "day"
}

// HealthSample is one aggregated bucket of a health metric.
type HealthSample struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Value   float64   `json:"value"`
	Unit    string    `json:"unit"`
	Sources []string  `json:"sources,omitempty"`
}

// HealthRepository answers health data queries issued by the agent.
type HealthRepository interface {
	Query(ctx context.Context, q HealthQuery) ([]HealthSample, error)
}

// HealthRecorder ingests raw readings.
type HealthRecorder interface {
	Record(ctx context.Context, readings ...HealthReading) error
}

// Validate checks the interval and time range.
func (q HealthQuery) Validate() error {
	if q.SampleType == "" {
		return fmt.Errorf("%w: sample type is required", ErrInvalidHealthArg)
	}
	if q.Interval != IntervalHour && q.Interval != IntervalDay {
		return fmt.Errorf("%w: interval %q", ErrInvalidHealthArg, q.Interval)
	}
	if q.End.Before(q.Start) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidHealthArg, q.End, q.Start)
	}
	return nil
}

// HealthReading is a single raw measurement before bucketing.
type HealthReading struct {
	UserID     string
	SampleType string
	Value      float64
	Unit       string
	Source     string
	RecordedAt time.Time
}

// BucketStart truncates t to the start of its hour or day in t's location.
func BucketStart(t time.Time, interval string) time.Time {
	if interval == IntervalHour {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// BucketEnd returns the last millisecond of the bucket starting at start.
func BucketEnd(start time.Time, interval string) time.Time {
	if interval == IntervalHour {
		return start.Add(time.Hour - time.Millisecond)
	}
	return start.AddDate(0, 0, 1).Add(-time.Millisecond)
}
