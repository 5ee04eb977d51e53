package domain

import "errors"

// Sentinel errors for the domain layer.
var (
	ErrNotFound         = errors.New("domain: not found")
	ErrUnknownKind      = errors.New("domain: unknown message kind")
	ErrMalformedFrame   = errors.New("domain: malformed frame")
	ErrInvalidChatKind  = errors.New("domain: invalid chat kind")
	ErrInvalidHealthArg = errors.New("domain: invalid health query")
)
