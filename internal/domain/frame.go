package domain

import (
	"encoding/json"
	"fmt"
)

// Frame is the JSON object exchanged with the agent service in both directions.
type Frame struct {
	Type                  string         `json:"type"`
	Role                  string         `json:"role"`
	Content               string         `json:"content"`
	ID                    string         `json:"id"`
	ToolCalls             []WireToolCall `json:"tool_calls,omitempty"`
	ToolCallID            string         `json:"tool_call_id,omitempty"`
	ShouldRespondToolCall *bool          `json:"should_respond_tool_call,omitempty"`
}

type WireToolCall struct {
	Function   WireFunction `json:"function"`
	ToolCallID string       `json:"tool_call_id"`
	ID         string       `json:"id"`
}

type WireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type WireToolResponse struct {
	Type       string `json:"type"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	ToolCallID string `json:"tool_call_id"`
	ID         string `json:"id"`
}

// ToolResponseBatch aggregates every tool response collected for one inbound frame.
type ToolResponseBatch struct {
	Type          string             `json:"type"`
	Role          string             `json:"role"`
	Content       string             `json:"content"`
	ToolResponses []WireToolResponse `json:"tool_responses"`
}

// Inbound is a decoded frame received from the agent.
type Inbound struct {
	Message       Message
	ToolCallID    string
	ShouldRespond bool
}

// DecodeFrame parses a raw frame. Undecodable payloads and unknown types
// return ErrMalformedFrame or ErrUnknownKind.
func DecodeFrame(data []byte) (Inbound, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Inbound{}, fmt.Errorf("domain.DecodeFrame: %w: %w", ErrMalformedFrame, err)
	}
	if f.Type == "" {
		return Inbound{}, fmt.Errorf("domain.DecodeFrame: %w: missing type", ErrMalformedFrame)
	}

	kind, err := ParseKind(f.Type)
	if err != nil {
		return Inbound{}, fmt.Errorf("domain.DecodeFrame: %w", err)
	}

	msg := Message{
		ID:      f.ID,
		Kind:    kind,
		Role:    f.Role,
		Content: f.Content,
	}
	if len(f.ToolCalls) > 0 {
		msg.ToolCalls = make([]ToolCall, 0, len(f.ToolCalls))
		for _, tc := range f.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:           tc.ID,
				CallID:       tc.ToolCallID,
				FunctionName: tc.Function.Name,
				Arguments:    tc.Function.Arguments,
			})
		}
	}

	shouldRespond := true
	if f.ShouldRespondToolCall != nil {
		shouldRespond = *f.ShouldRespondToolCall
	}

	return Inbound{
		Message:       msg,
		ToolCallID:    f.ToolCallID,
		ShouldRespond: shouldRespond,
	}, nil
}

// EncodeMessage serializes an outbound message frame.
func EncodeMessage(msg Message, toolCallID string) ([]byte, error) {
	f := Frame{
		Type:       msg.Kind.String(),
		Role:       msg.Role,
		Content:    msg.Content,
		ID:         msg.ID,
		ToolCallID: toolCallID,
	}
	for _, tc := range msg.ToolCalls {
		f.ToolCalls = append(f.ToolCalls, WireToolCall{
			Function:   WireFunction{Name: tc.FunctionName, Arguments: tc.Arguments},
			ToolCallID: tc.CallID,
			ID:         tc.ID,
		})
	}

	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeMessage: %w", err)
	}
	return data, nil
}

// EncodeToolResponses serializes a tool-response batch frame.
func EncodeToolResponses(responses []ToolResponse) ([]byte, error) {
	batch := ToolResponseBatch{
		Type:          KindNormal.String(),
		Role:          RoleToolResponses,
		Content:       "",
		ToolResponses: make([]WireToolResponse, 0, len(responses)),
	}
	for _, r := range responses {
		batch.ToolResponses = append(batch.ToolResponses, WireToolResponse{
			Type:       KindNormal.String(),
			Role:       RoleTool,
			Content:    r.Content,
			ToolCallID: r.ToolCallID,
			ID:         r.ID,
		})
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("domain.EncodeToolResponses: %w", err)
	}
	return data, nil
}
