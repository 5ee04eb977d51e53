package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/coachlink/internal/domain"
)

func TestDecodeFrame(t *testing.T) {
	t.Parallel()

	t.Run("stream frame", func(t *testing.T) {
		t.Parallel()

		in, err := domain.DecodeFrame([]byte(`{"type":"stream","role":"assistant","content":"Hel","id":"s1"}`))

		require.NoError(t, err)
		assert.Equal(t, domain.KindStreamingDelta, in.Message.Kind)
		assert.Equal(t, "s1", in.Message.ID)
		assert.Equal(t, "Hel", in.Message.Content)
		assert.Empty(t, in.Message.ToolCalls)
		assert.True(t, in.ShouldRespond, "should_respond_tool_call defaults to true")
	})

	t.Run("tool frame with calls", func(t *testing.T) {
		t.Parallel()

		raw := `{
			"type": "tool", "role": "assistant", "content": "", "id": "t1",
			"tool_calls": [
				{"function": {"name": "query_health_data", "arguments": "{\"sample_type\":\"stepCount\"}"}, "tool_call_id": "call-a", "id": "tc-a"},
				{"function": {"name": "plan-widget", "arguments": "{}"}, "tool_call_id": "call-b", "id": "tc-b"}
			],
			"should_respond_tool_call": false
		}`

		in, err := domain.DecodeFrame([]byte(raw))

		require.NoError(t, err)
		assert.Equal(t, domain.KindToolRequest, in.Message.Kind)
		assert.False(t, in.ShouldRespond)
		require.Len(t, in.Message.ToolCalls, 2)
		assert.Equal(t, domain.ToolCall{
			ID:           "tc-a",
			CallID:       "call-a",
			FunctionName: "query_health_data",
			Arguments:    `{"sample_type":"stepCount"}`,
		}, in.Message.ToolCalls[0])
		assert.Equal(t, "plan-widget", in.Message.ToolCalls[1].FunctionName)
	})

	t.Run("undecodable payload", func(t *testing.T) {
		t.Parallel()

		_, err := domain.DecodeFrame([]byte(`{not json`))

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrMalformedFrame)
	})

	t.Run("missing type", func(t *testing.T) {
		t.Parallel()

		_, err := domain.DecodeFrame([]byte(`{"content":"hi","id":"x"}`))

		assert.ErrorIs(t, err, domain.ErrMalformedFrame)
	})

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()

		_, err := domain.DecodeFrame([]byte(`{"type":"telemetry","id":"x"}`))

		assert.ErrorIs(t, err, domain.ErrUnknownKind)
	})
}

func TestEncodeMessage(t *testing.T) {
	t.Parallel()

	data, err := domain.EncodeMessage(domain.Message{
		ID:      "u1",
		Kind:    domain.KindNormal,
		Role:    domain.RoleUser,
		Content: "Hi",
	}, "")

	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message","role":"user","content":"Hi","id":"u1"}`, string(data))
}

func TestEncodeToolResponses(t *testing.T) {
	t.Parallel()

	t.Run("batch shape", func(t *testing.T) {
		t.Parallel()

		data, err := domain.EncodeToolResponses([]domain.ToolResponse{
			{ID: "r1", ToolCallID: "tc-a", Content: `{"data":"success"}`},
		})

		require.NoError(t, err)
		assert.JSONEq(t, `{
			"type": "message",
			"role": "tool_responses",
			"content": "",
			"tool_responses": [
				{"type": "message", "role": "tool", "content": "{\"data\":\"success\"}", "tool_call_id": "tc-a", "id": "r1"}
			]
		}`, string(data))
	})

	t.Run("empty batch encodes empty array", func(t *testing.T) {
		t.Parallel()

		data, err := domain.EncodeToolResponses(nil)

		require.NoError(t, err)
		var batch map[string]any
		require.NoError(t, json.Unmarshal(data, &batch))
		assert.Equal(t, []any{}, batch["tool_responses"])
	})
}
