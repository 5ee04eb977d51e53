package tools_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/tools"
)

var _ tools.Sink = (*recordingSink)(nil)

type recordingSink struct {
	mu   sync.Mutex
	msgs []domain.Message
}

func (s *recordingSink) Display(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) all() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.msgs...)
}

func echo(content string) tools.Handler {
	return func(context.Context, tools.Request) (string, bool, error) {
		return content, true, nil
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register("b", echo("b"))
	reg.Register("a", echo("a"))

	_, ok := reg.Lookup("a")
	assert.True(t, ok)
	_, ok = reg.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b"}, reg.Names())
}

func TestDispatcher_Dispatch(t *testing.T) {
	t.Parallel()

	t.Run("packages response with fresh id", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("ping", echo("pong"))
		d := tools.NewDispatcher(reg, 0)

		resp, err := d.Dispatch(context.Background(), "f1", domain.ToolCall{ID: "c1", FunctionName: "ping"}, true, nil)

		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, "c1", resp.ToolCallID)
		assert.Equal(t, "pong", resp.Content)
		assert.NotEmpty(t, resp.ID)
	})

	t.Run("no response when not requested", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("ping", echo("pong"))
		d := tools.NewDispatcher(reg, 0)

		resp, err := d.Dispatch(context.Background(), "f1", domain.ToolCall{ID: "c1", FunctionName: "ping"}, false, nil)

		require.NoError(t, err)
		assert.Nil(t, resp)
	})

	t.Run("unknown tool", func(t *testing.T) {
		t.Parallel()

		d := tools.NewDispatcher(tools.NewRegistry(), 0)

		resp, err := d.Dispatch(context.Background(), "f1", domain.ToolCall{FunctionName: "nope"}, true, nil)

		require.NoError(t, err, "unknown tools are logged, not raised")
		assert.Nil(t, resp)
	})

	t.Run("timeout reaches handler", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("slow", func(ctx context.Context, _ tools.Request) (string, bool, error) {
			<-ctx.Done()
			return "", false, ctx.Err()
		})
		d := tools.NewDispatcher(reg, 20*time.Millisecond)

		_, err := d.Dispatch(context.Background(), "f1", domain.ToolCall{FunctionName: "slow"}, true, nil)

		require.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestDispatcher_DispatchAll(t *testing.T) {
	t.Parallel()

	t.Run("one failing handler keeps the other response", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("ok", echo("fine"))
		reg.Register("bad", func(context.Context, tools.Request) (string, bool, error) {
			return "", false, errors.New("boom")
		})
		d := tools.NewDispatcher(reg, 0)

		calls := []domain.ToolCall{
			{ID: "c1", FunctionName: "bad"},
			{ID: "c2", FunctionName: "ok"},
		}
		got := d.DispatchAll(context.Background(), "f1", calls, true, nil)

		require.Len(t, got, 1)
		assert.Equal(t, "c2", got[0].ToolCallID)
		assert.Equal(t, "fine", got[0].Content)
	})

	t.Run("panic is recovered", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("ok", echo("fine"))
		reg.Register("panics", func(context.Context, tools.Request) (string, bool, error) {
			panic("handler bug")
		})
		d := tools.NewDispatcher(reg, 0)

		calls := []domain.ToolCall{
			{ID: "c1", FunctionName: "panics"},
			{ID: "c2", FunctionName: "ok"},
		}

		var got []domain.ToolResponse
		require.NotPanics(t, func() {
			got = d.DispatchAll(context.Background(), "f1", calls, true, nil)
		})
		require.Len(t, got, 1)
		assert.Equal(t, "c2", got[0].ToolCallID)
	})

	t.Run("responses keep call order", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("delay", func(_ context.Context, req tools.Request) (string, bool, error) {
			// Later calls finish first.
			d, _ := time.ParseDuration(req.Call.Arguments)
			time.Sleep(d)
			return req.Call.ID, true, nil
		})
		d := tools.NewDispatcher(reg, 0)

		calls := []domain.ToolCall{
			{ID: "c1", FunctionName: "delay", Arguments: "60ms"},
			{ID: "c2", FunctionName: "delay", Arguments: "30ms"},
			{ID: "c3", FunctionName: "delay", Arguments: "0s"},
		}
		got := d.DispatchAll(context.Background(), "f1", calls, true, nil)

		require.Len(t, got, 3)
		assert.Equal(t, "c1", got[0].ToolCallID)
		assert.Equal(t, "c2", got[1].ToolCallID)
		assert.Equal(t, "c3", got[2].ToolCallID)
	})

	t.Run("unknown tools yield nothing", func(t *testing.T) {
		t.Parallel()

		d := tools.NewDispatcher(tools.NewRegistry(), 0)

		got := d.DispatchAll(context.Background(), "f1", []domain.ToolCall{{ID: "c1", FunctionName: "nope"}}, true, nil)

		assert.Empty(t, got)
		assert.NotNil(t, got)
	})

	t.Run("sink receives displays", func(t *testing.T) {
		t.Parallel()

		reg := tools.NewRegistry()
		reg.Register("show", func(_ context.Context, req tools.Request) (string, bool, error) {
			req.Sink.Display(domain.Message{ID: req.FrameID, Kind: domain.KindVisualization, Content: "{}"})
			return "", false, nil
		})
		d := tools.NewDispatcher(reg, 0)
		sink := &recordingSink{}

		got := d.DispatchAll(context.Background(), "f9", []domain.ToolCall{{ID: "c1", FunctionName: "show"}}, true, sink)

		assert.Empty(t, got)
		require.Len(t, sink.all(), 1)
		assert.Equal(t, "f9", sink.all()[0].ID)
	})
}
