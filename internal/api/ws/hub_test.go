package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/api/ws"
)

func dialHub(t *testing.T, hub *ws.Hub) (*websocket.Conn, context.Context) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeSession))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn, ctx
}

func TestHub_SnapshotThenEvents(t *testing.T) {
	t.Parallel()

	broker := ws.NewLocalBroker()
	hub := ws.NewHub(broker, "session:u:check-in", func() any {
		return map[string]any{"status": "open-idle"}
	}, nil)

	conn, ctx := dialHub(t, hub)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var snap struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "snapshot", snap.Type)
	assert.Equal(t, "open-idle", snap.Data["status"])

	// The subscription exists before the snapshot is written.
	require.NoError(t, broker.Publish(ctx, "session:u:check-in", []byte(`{"type":"busy","busy":true}`)))

	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"busy","busy":true}`, string(data))
}

func TestHub_NoSnapshot(t *testing.T) {
	t.Parallel()

	broker := ws.NewLocalBroker()
	hub := ws.NewHub(broker, "c", nil, nil)

	conn, ctx := dialHub(t, hub)

	// Publish until the subscription registered by the handler receives it.
	got := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			got <- data
		}
	}()

	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, "c", []byte(`{"type":"phase"}`))
		select {
		case data := <-got:
			assert.JSONEq(t, `{"type":"phase"}`, string(data))
			return true
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)
}
