package v1_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/coachlink/internal/api/v1"
	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/session"
)

var (
	_ v1.SessionController  = (*session.Session)(nil)
	_ v1.SessionController  = (*mockController)(nil)
	_ domain.HealthRecorder = (*mockRecorder)(nil)
)

// ---------------------------------------------------------------------------
// Mock SessionController
// ---------------------------------------------------------------------------

type mockController struct {
	info          session.Info
	messages      []domain.Message
	sendFunc      func(ctx context.Context, content string) (domain.Message, error)
	reconnectFunc func() error
}

func (m *mockController) Info() session.Info         { return m.info }
func (m *mockController) Messages() []domain.Message { return m.messages }
func (m *mockController) UserID() string             { return m.info.UserID }

func (m *mockController) SendUserMessage(ctx context.Context, content string) (domain.Message, error) {
	return m.sendFunc(ctx, content)
}

func (m *mockController) Reconnect() error {
	return m.reconnectFunc()
}

// ---------------------------------------------------------------------------
// Mock HealthRecorder
// ---------------------------------------------------------------------------

type mockRecorder struct {
	mu       sync.Mutex
	readings []domain.HealthReading
	err      error
}

func (m *mockRecorder) Record(_ context.Context, readings ...domain.HealthReading) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings = append(m.readings, readings...)
	return nil
}

// parseErrorBody decodes the RFC 9457 problem detail from the response body.
func parseErrorBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
