package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/session"
)

type GetSessionInput struct{}

type GetSessionOutput struct {
	Body session.Info
}

type ListMessagesInput struct {
	Limit int `query:"limit" minimum:"0" maximum:"1000" default:"0" doc:"Return only the last N messages (0 = all)"`
}

type ListMessagesOutput struct {
	Body []domain.Message
}

type SendMessageInput struct {
	Body struct {
		Content string `json:"content" minLength:"1" maxLength:"8000" doc:"Message text"`
	}
}

type SendMessageOutput struct {
	Body struct {
		Message   domain.Message `json:"message"`
		Delivered bool           `json:"delivered" doc:"False when the socket was not open; the message stays in the local ledger"`
		Error     string         `json:"error,omitempty"`
	}
}

type ReconnectInput struct{}

type ReconnectOutput struct {
	Body session.Info
}

func RegisterSessionRoutes(api huma.API, ctrl SessionController) {
	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/session",
		Summary:     "Get the session state",
		Tags:        []string{"Session"},
	}, func(_ context.Context, _ *GetSessionInput) (*GetSessionOutput, error) {
		return &GetSessionOutput{Body: ctrl.Info()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reconnect-session",
		Method:      http.MethodPost,
		Path:        "/session/reconnect",
		Summary:     "Dial the agent now instead of waiting for backoff",
		Tags:        []string{"Session"},
	}, func(_ context.Context, _ *ReconnectInput) (*ReconnectOutput, error) {
		err := ctrl.Reconnect()
		if err != nil {
			if errors.Is(err, session.ErrClosed) || errors.Is(err, session.ErrNotStarted) {
				return nil, huma.Error409Conflict("session is not running")
			}
			return nil, huma.Error500InternalServerError("failed to reconnect", err)
		}
		return &ReconnectOutput{Body: ctrl.Info()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/messages",
		Summary:     "List displayable messages in order",
		Tags:        []string{"Messages"},
	}, func(_ context.Context, input *ListMessagesInput) (*ListMessagesOutput, error) {
		msgs := ctrl.Messages()
		if input.Limit > 0 && len(msgs) > input.Limit {
			msgs = msgs[len(msgs)-input.Limit:]
		}
		if msgs == nil {
			msgs = []domain.Message{}
		}
		return &ListMessagesOutput{Body: msgs}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "send-message",
		Method:        http.MethodPost,
		Path:          "/messages",
		Summary:       "Send a user message to the agent",
		Tags:          []string{"Messages"},
		DefaultStatus: http.StatusAccepted,
	}, func(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
		msg, err := ctrl.SendUserMessage(ctx, input.Body.Content)
		if err != nil && msg.ID == "" {
			if errors.Is(err, session.ErrEmptyMessage) {
				return nil, huma.Error400BadRequest("content is required")
			}
			if errors.Is(err, session.ErrClosed) {
				return nil, huma.Error409Conflict("session is closed")
			}
			return nil, huma.Error500InternalServerError("failed to send message", err)
		}

		out := &SendMessageOutput{}
		out.Body.Message = msg
		out.Body.Delivered = err == nil
		if err != nil {
			out.Body.Error = err.Error()
		}
		return out, nil
	})
}
