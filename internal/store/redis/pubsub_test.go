package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/session"
	redisstore "github.com/gosuda/coachlink/internal/store/redis"
)

var _ session.Publisher = (*redisstore.PubSub)(nil)

func TestNew_Unreachable(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := redisstore.New(ctx, "127.0.0.1:1", "", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis.New: ping")
}

func TestPubSub_PublishSubscribe(t *testing.T) {
	t.Parallel()

	addr := os.Getenv("COACHLINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COACHLINK_TEST_REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ps, err := redisstore.New(ctx, addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	channel := session.EventChannel("test-"+uuid.NewString(), "at-will")
	msgs, cleanup, err := ps.Subscribe(ctx, channel)
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, ps.Publish(ctx, channel, []byte(`{"type":"busy"}`)))

	select {
	case got := <-msgs:
		assert.JSONEq(t, `{"type":"busy"}`, string(got))
	case <-ctx.Done():
		t.Fatal("no message received")
	}
}

func TestPubSub_SubscriptionEndsWithContext(t *testing.T) {
	t.Parallel()

	addr := os.Getenv("COACHLINK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("COACHLINK_TEST_REDIS_ADDR not set")
	}

	ps, err := redisstore.New(context.Background(), addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ps.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	msgs, cleanup, err := ps.Subscribe(ctx, "test-"+uuid.NewString())
	require.NoError(t, err)
	defer cleanup()

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-msgs:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}
