package v1

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/coachlink/internal/domain"
)

type HealthReadingBody struct {
	SampleType string    `json:"sample_type" minLength:"1" maxLength:"100" doc:"Metric name, e.g. stepCount"`
	Value      float64   `json:"value"`
	Unit       string    `json:"unit,omitempty" maxLength:"32"`
	Source     string    `json:"source,omitempty" maxLength:"100"`
	RecordedAt time.Time `json:"recorded_at" doc:"RFC 3339 timestamp"`
}

type RecordReadingsInput struct {
	Body struct {
		Readings []HealthReadingBody `json:"readings" minItems:"1" maxItems:"1000"`
	}
}

type RecordReadingsOutput struct {
	Body struct {
		Recorded int `json:"recorded"`
	}
}

// RegisterHealthRoutes exposes ingestion for the data the agent queries
// through the health tool. Readings are stored under the session user.
func RegisterHealthRoutes(api huma.API, ctrl SessionController, recorder domain.HealthRecorder) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-health-readings",
		Method:        http.MethodPost,
		Path:          "/health/readings",
		Summary:       "Record raw health readings for the session user",
		Tags:          []string{"Health"},
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *RecordReadingsInput) (*RecordReadingsOutput, error) {
		userID := ctrl.UserID()
		readings := make([]domain.HealthReading, 0, len(input.Body.Readings))
		for _, r := range input.Body.Readings {
			if r.RecordedAt.IsZero() {
				return nil, huma.Error422UnprocessableEntity("recorded_at is required")
			}
			readings = append(readings, domain.HealthReading{
				UserID:     userID,
				SampleType: r.SampleType,
				Value:      r.Value,
				Unit:       r.Unit,
				Source:     r.Source,
				RecordedAt: r.RecordedAt,
			})
		}

		if err := recorder.Record(ctx, readings...); err != nil {
			return nil, huma.Error500InternalServerError("failed to record readings", err)
		}

		out := &RecordReadingsOutput{}
		out.Body.Recorded = len(readings)
		return out, nil
	})
}
