package domain

import (
	"fmt"
	"slices"
)

// Kind is the closed set of message kinds exchanged with the agent.
// Wire strings are mapped to a Kind only at the codec edge.
type Kind int

const (
	KindNormal Kind = iota
	KindStreamingDelta
	KindVisualization
	KindPlanWidget
	KindToolRequest
	KindAcknowledgement
	KindClosing
	KindProgress
)

var kindWireNames = [...]string{ //nolint:gochecknoglobals // immutable lookup table
	KindNormal:          "message",
	KindStreamingDelta:  "stream",
	KindVisualization:   "visualization",
	KindPlanWidget:      "plan-widget",
	KindToolRequest:     "tool",
	KindAcknowledgement: "acknowledgement",
	KindClosing:         "closing",
	KindProgress:        "progress",
}

// String returns the wire name of the kind.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindWireNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindWireNames[k]
}

// ParseKind maps a wire type string to a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindWireNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("domain.ParseKind(%q): %w", s, ErrUnknownKind)
}

func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindWireNames) {
		return nil, fmt.Errorf("domain.Kind.MarshalText(%d): %w", int(k), ErrUnknownKind)
	}
	return []byte(kindWireNames[k]), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Roles used by the client. The agent may send others.
const (
	RoleUser          = "user"
	RoleAssistant     = "assistant"
	RoleAgent         = "agent"
	RoleTool          = "tool"
	RoleToolResponses = "tool_responses"
)

// StartConversationSentinel is the acknowledgement content that only arms the
// liveness timer and never reaches the ledger.
const StartConversationSentinel = "start_conversation"

// ToolCall is an agent-issued request embedded in a message.
type ToolCall struct {
	ID           string `json:"id"`
	CallID       string `json:"tool_call_id,omitempty"`
	FunctionName string `json:"function_name"`
	Arguments    string `json:"arguments"`
}

// ToolResponse is the client-produced result correlated back to a ToolCall.
type ToolResponse struct {
	ID         string `json:"id"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
}

// Message is one entry of a conversation.
type Message struct {
	ID        string     `json:"id"`
	Kind      Kind       `json:"kind"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// Clone returns a copy that shares no slices with m.
func (m Message) Clone() Message {
	m.ToolCalls = slices.Clone(m.ToolCalls)
	return m
}

// Displayable reports whether the message carries something a user should see.
// Progress frames and tool-role messages never do.
func (m Message) Displayable() bool {
	if m.Kind == KindProgress || m.Role == RoleTool {
		return false
	}
	return m.Content != "" || m.Kind == KindAcknowledgement
}

// ChatKind discriminates the conversation a session is scoped to.
type ChatKind string

const (
	ChatOnboarding ChatKind = "onboarding"
	ChatCheckIn    ChatKind = "check-in"
	ChatAtWill     ChatKind = "at-will"
)

// ParseChatKind validates a conversation discriminator.
func ParseChatKind(s string) (ChatKind, error) {
	switch ChatKind(s) {
	case ChatOnboarding, ChatCheckIn, ChatAtWill:
		return ChatKind(s), nil
	default:
		return "", fmt.Errorf("domain.ParseChatKind(%q): %w", s, ErrInvalidChatKind)
	}
}
