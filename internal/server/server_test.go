package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/api/ws"
	"github.com/gosuda/coachlink/internal/auth"
	"github.com/gosuda/coachlink/internal/config"
	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/server"
	"github.com/gosuda/coachlink/internal/session"
	"github.com/gosuda/coachlink/internal/store/memory"
)

const testSecret = "server-test-secret-with-32-chars!"

type stubSession struct{}

func (stubSession) Info() session.Info {
	return session.Info{UserID: "u-1", ChatKind: domain.ChatAtWill, Status: session.StatusOpenIdle}
}

func (stubSession) Messages() []domain.Message {
	return []domain.Message{{ID: "m1", Role: domain.RoleAssistant, Content: "Hello"}}
}

func (stubSession) SendUserMessage(_ context.Context, content string) (domain.Message, error) {
	return domain.Message{ID: "m2", Role: domain.RoleUser, Content: content}, nil
}

func (stubSession) Reconnect() error { return nil }
func (stubSession) UserID() string   { return "u-1" }

func newTestServer(t *testing.T, secret string, deps server.Deps) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if deps.Session == nil {
		deps.Session = stubSession{}
	}
	s := server.New(ctx, config.APIConfig{
		Addr:         "127.0.0.1:0",
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		CORSOrigins:  []string{"http://localhost:5173"},
		RateLimit:    100,
		RateBurst:    100,
		JWTSecret:    secret,
	}, deps)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, "", server.Deps{})

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, "open-idle", body["session"])
	})

	t.Run("degraded", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, "", server.Deps{
			Ready: func(context.Context) error { return errors.New("redis down") },
		})

		resp, err := http.Get(srv.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestAPI_Open(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "", server.Deps{})

	resp, err := http.Get(srv.URL + "/api/v1/session")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info session.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "u-1", info.UserID)
}

func TestAPI_HealthRoutesOnlyWithRecorder(t *testing.T) {
	t.Parallel()

	body := `{"readings":[{"sample_type":"stepCount","value":10,"recorded_at":"2026-03-10T09:00:00Z"}]}`

	without := newTestServer(t, "", server.Deps{})
	resp, err := http.Post(without.URL+"/api/v1/health/readings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	store := memory.NewHealthStore()
	with := newTestServer(t, "", server.Deps{Health: store})
	resp, err = http.Post(with.URL+"/api/v1/health/readings", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	got, err := store.Query(context.Background(), domain.HealthQuery{
		UserID:     "u-1",
		SampleType: "stepCount",
		Start:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC),
		Interval:   domain.IntervalDay,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.InDelta(t, 10, got[0].Value, 0.001)
}

func TestAPI_RequiresTokenWhenSecretSet(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testSecret, server.Deps{})

	resp, err := http.Get(srv.URL + "/api/v1/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := auth.IssueToken(testSecret, "u-1", "", time.Minute)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/messages", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"m1"`)

	// healthz stays open.
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	t.Parallel()

	broker := ws.NewLocalBroker()
	channel := session.EventChannel("u-1", domain.ChatAtWill)
	srv := newTestServer(t, "", server.Deps{Events: broker, EventChannel: channel})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/session", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var snap struct {
		Type string `json:"type"`
		Data struct {
			Session  session.Info     `json:"session"`
			Messages []domain.Message `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, "u-1", snap.Data.Session.UserID)
	require.Len(t, snap.Data.Messages, 1)

	require.NoError(t, broker.Publish(ctx, channel, []byte(`{"type":"phase","phase":"thinking"}`)))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"phase","phase":"thinking"}`, string(data))
}

func TestEventStream_DisabledWithoutSubscriber(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, "", server.Deps{})

	resp, err := http.Get(srv.URL + "/ws/session")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
