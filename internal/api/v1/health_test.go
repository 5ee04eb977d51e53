package v1_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/coachlink/internal/api/v1"
	"github.com/gosuda/coachlink/internal/session"
)

func newHealthTestAPI(t *testing.T) (humatest.TestAPI, *mockRecorder) {
	t.Helper()

	_, api := humatest.New(t)
	rec := &mockRecorder{}
	v1.RegisterHealthRoutes(api, &mockController{info: session.Info{UserID: "u-7"}}, rec)
	return api, rec
}

func TestRecordReadings(t *testing.T) {
	t.Parallel()

	t.Run("happy_path", func(t *testing.T) {
		t.Parallel()

		api, rec := newHealthTestAPI(t)

		resp := api.Post("/health/readings", map[string]any{
			"readings": []map[string]any{
				{"sample_type": "stepCount", "value": 1200, "unit": "count", "source": "watch", "recorded_at": "2026-03-10T09:15:00Z"},
				{"sample_type": "stepCount", "value": 300, "recorded_at": "2026-03-10T10:00:00Z"},
			},
		})
		require.Equal(t, http.StatusCreated, resp.Code)

		var body map[string]int
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
		assert.Equal(t, 2, body["recorded"])

		require.Len(t, rec.readings, 2)
		assert.Equal(t, "u-7", rec.readings[0].UserID)
		assert.Equal(t, "stepCount", rec.readings[0].SampleType)
		assert.InDelta(t, 1200, rec.readings[0].Value, 0.001)
		assert.True(t, rec.readings[0].RecordedAt.Equal(time.Date(2026, 3, 10, 9, 15, 0, 0, time.UTC)))
	})

	t.Run("empty_batch_rejected", func(t *testing.T) {
		t.Parallel()

		api, rec := newHealthTestAPI(t)

		resp := api.Post("/health/readings", map[string]any{"readings": []any{}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
		assert.Empty(t, rec.readings)
	})

	t.Run("missing_sample_type", func(t *testing.T) {
		t.Parallel()

		api, _ := newHealthTestAPI(t)

		resp := api.Post("/health/readings", map[string]any{
			"readings": []map[string]any{{"value": 1, "recorded_at": "2026-03-10T09:15:00Z"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	})

	t.Run("store_error", func(t *testing.T) {
		t.Parallel()

		api, rec := newHealthTestAPI(t)
		rec.err = errors.New("db down")

		resp := api.Post("/health/readings", map[string]any{
			"readings": []map[string]any{{"sample_type": "heartRate", "value": 61, "recorded_at": "2026-03-10T09:15:00Z"}},
		})
		assert.Equal(t, http.StatusInternalServerError, resp.Code)
	})
}
