package session

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gosuda/coachlink/internal/channel"
	"github.com/gosuda/coachlink/internal/domain"
)

// Transport is the duplex frame pipe a Session drives.
type Transport interface {
	Connect(ctx context.Context) error
	Send(ctx context.Context, data []byte) error
	Frames() <-chan []byte
	State() channel.State
	Close() error
}

var _ Transport = (*channel.Manager)(nil)

// TransportFactory builds the Transport for a Session. onState must be
// invoked on every connection state change.
type TransportFactory func(onState func(channel.State)) Transport

// ChannelTransport returns a factory that dials target through a channel.Manager.
func ChannelTransport(target string, creds channel.CredentialSource, opts channel.Options) TransportFactory {
	return func(onState func(channel.State)) Transport {
		opts.OnStateChange = onState
		return channel.New(target, creds, opts)
	}
}

// Target builds the session-scoped socket URL <base>/<user>/<kind>.
func Target(base, userID string, kind domain.ChatKind) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("session.Target: empty user id")
	}
	if _, err := domain.ParseChatKind(string(kind)); err != nil {
		return "", fmt.Errorf("session.Target: %w", err)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("session.Target: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("session.Target: unsupported scheme %q", u.Scheme)
	}

	return u.JoinPath(userID, string(kind)).String(), nil
}
