package v1

import (
	"context"

	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/session"
)

// SessionController abstracts the live session for handler testing.
// *session.Session satisfies this interface.
type SessionController interface {
	Info() session.Info
	Messages() []domain.Message
	SendUserMessage(ctx context.Context, content string) (domain.Message, error)
	Reconnect() error
	UserID() string
}
