package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/coachlink/internal/domain"
)

var (
	_ domain.HealthRepository = (*HealthSampleRepo)(nil)
	_ domain.HealthRecorder   = (*HealthSampleRepo)(nil)
)

type HealthSampleRepo struct {
	pool *pgxpool.Pool
}

func NewHealthSampleRepo(pool *pgxpool.Pool) *HealthSampleRepo {
	return &HealthSampleRepo{pool: pool}
}

// Record inserts raw readings in a single batch.
func (r *HealthSampleRepo) Record(ctx context.Context, readings ...domain.HealthReading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, rd := range readings {
		batch.Queue(
			`INSERT INTO health_samples (user_id, sample_type, value, unit, source, recorded_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			rd.UserID, rd.SampleType, rd.Value, rd.Unit, rd.Source, rd.RecordedAt,
		)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("healthSampleRepo.Record: %w", err)
	}
	return nil
}

// Query sums readings into hour or day buckets with date_trunc. Buckets are
// truncated in the session time zone of the connection.
func (r *HealthSampleRepo) Query(ctx context.Context, q domain.HealthQuery) ([]domain.HealthSample, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("healthSampleRepo.Query: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT date_trunc($5, recorded_at) AS bucket,
		        sum(value),
		        coalesce(max(unit), ''),
		        coalesce(array_agg(DISTINCT source ORDER BY source) FILTER (WHERE source <> ''), '{}')
		 FROM health_samples
		 WHERE user_id = $1 AND sample_type = $2 AND recorded_at >= $3 AND recorded_at <= $4
		 GROUP BY bucket
		 ORDER BY bucket ASC`,
		q.UserID, q.SampleType, q.Start, q.End, q.Interval,
	)
	if err != nil {
		return nil, fmt.Errorf("healthSampleRepo.Query: %w", err)
	}
	defer rows.Close()

	samples := make([]domain.HealthSample, 0)
	for rows.Next() {
		var s domain.HealthSample

		err = rows.Scan(&s.Start, &s.Value, &s.Unit, &s.Sources)
		if err != nil {
			return nil, fmt.Errorf("healthSampleRepo.Query: scan: %w", err)
		}
		s.Start = s.Start.In(q.Start.Location())
		s.End = domain.BucketEnd(s.Start, q.Interval)
		samples = append(samples, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("healthSampleRepo.Query: rows: %w", err)
	}

	return samples, nil
}
