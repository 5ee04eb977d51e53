package middleware

import (
	"context"

	"github.com/gosuda/coachlink/internal/domain"
)

type contextKey string

const (
	ContextKeyUserID   contextKey = "user_id"
	ContextKeyChatKind contextKey = "chat_kind"
)

func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ContextKeyUserID).(string)
	return v, ok && v != ""
}

func ChatKindFromContext(ctx context.Context) (domain.ChatKind, bool) {
	v, ok := ctx.Value(ContextKeyChatKind).(domain.ChatKind)
	return v, ok && v != ""
}
