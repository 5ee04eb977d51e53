// Package auth supplies the bearer credential presented to the agent service
// and validates tokens on the local control API.
package auth

import (
	"context"
	"errors"
	"sync"
)

var ErrNoCredential = errors.New("auth: no credential available") //nolint:gochecknoglobals // sentinel error

// Source yields a bearer token. It is consulted on every dial, so a rotated
// credential takes effect on the next reconnect.
type Source interface {
	Token(ctx context.Context) (string, error)
}

// Static is a fixed token that can be swapped at runtime.
type Static struct {
	mu    sync.RWMutex
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: token}
}

func (s *Static) Token(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return "", ErrNoCredential
	}
	return s.token, nil
}

// Rotate replaces the token used from the next dial on.
func (s *Static) Rotate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
