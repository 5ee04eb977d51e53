// Package memory holds in-process repositories used when no database is
// configured and in tests. Nothing here is persistent.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/gosuda/coachlink/internal/domain"
)

var (
	_ domain.HealthRepository = (*HealthStore)(nil)
	_ domain.HealthRecorder   = (*HealthStore)(nil)
)

// HealthStore keeps raw readings per user and buckets them on query.
type HealthStore struct {
	mu       sync.RWMutex
	byUserID map[string][]domain.HealthReading
}

func NewHealthStore() *HealthStore {
	return &HealthStore{byUserID: make(map[string][]domain.HealthReading)}
}

// Record stores readings. Readings without a user are ignored.
func (s *HealthStore) Record(ctx context.Context, readings ...domain.HealthReading) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory.HealthStore.Record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		if r.UserID == "" {
			continue
		}
		s.byUserID[r.UserID] = append(s.byUserID[r.UserID], r)
	}
	return nil
}

func (s *HealthStore) Query(ctx context.Context, q domain.HealthQuery) ([]domain.HealthSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory.HealthStore.Query: %w", err)
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("memory.HealthStore.Query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	loc := q.Start.Location()
	buckets := make(map[int64]*domain.HealthSample)
	sources := make(map[int64]map[string]struct{})

	for _, r := range s.byUserID[q.UserID] {
		if r.SampleType != q.SampleType {
			continue
		}
		if r.RecordedAt.Before(q.Start) || r.RecordedAt.After(q.End) {
			continue
		}

		start := domain.BucketStart(r.RecordedAt.In(loc), q.Interval)
		key := start.UnixNano()
		b, ok := buckets[key]
		if !ok {
			b = &domain.HealthSample{
				Start: start,
				End:   domain.BucketEnd(start, q.Interval),
				Unit:  r.Unit,
			}
			buckets[key] = b
			sources[key] = make(map[string]struct{})
		}
		b.Value += r.Value
		if r.Source != "" {
			sources[key][r.Source] = struct{}{}
		}
	}

	out := make([]domain.HealthSample, 0, len(buckets))
	for key, b := range buckets {
		for src := range sources[key] {
			b.Sources = append(b.Sources, src)
		}
		slices.Sort(b.Sources)
		out = append(out, *b)
	}
	slices.SortFunc(out, func(a, b domain.HealthSample) int {
		return a.Start.Compare(b.Start)
	})

	return out, nil
}
