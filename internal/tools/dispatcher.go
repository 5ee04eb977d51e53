// Package tools executes the capability requests the agent embeds in tool frames.
package tools

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/coachlink/internal/domain"
)

var (
	ErrInvalidArguments = errors.New("tools: invalid arguments") //nolint:gochecknoglobals // sentinel error
	errHandlerPanicked  = errors.New("tools: handler panicked")  //nolint:gochecknoglobals // sentinel error
)

// Sink receives synthetic display messages a handler wants shown right away.
type Sink interface {
	Display(msg domain.Message)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(msg domain.Message)

func (f SinkFunc) Display(msg domain.Message) { f(msg) }

// Request is one tool call handed to a Handler.
type Request struct {
	FrameID       string
	Call          domain.ToolCall
	ShouldRespond bool
	// ResponseID is the id the response will carry if one is produced.
	ResponseID string
	Sink       Sink
}

// Handler performs one tool. It returns the response content and ok=true
// when a response should be sent back.
type Handler func(ctx context.Context, req Request) (content string, ok bool, err error)

// Registry maps function names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatcher runs tool calls through a Registry.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewDispatcher creates a Dispatcher. A zero timeout leaves handlers unbounded.
func NewDispatcher(registry *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		timeout:  timeout,
		logger:   log.With().Str("component", "tools").Logger(),
	}
}

// Dispatch runs a single call. It returns a nil response when the handler
// produced nothing to send back. Unknown function names are logged and
// yield no response.
func (d *Dispatcher) Dispatch(ctx context.Context, frameID string, call domain.ToolCall, shouldRespond bool, sink Sink) (*domain.ToolResponse, error) {
	h, ok := d.registry.Lookup(call.FunctionName)
	if !ok {
		d.logger.Warn().
			Str("frame_id", frameID).
			Str("tool", call.FunctionName).
			Str("tool_call_id", call.ID).
			Msg("unknown tool")
		return nil, nil //nolint:nilnil // no response is a valid outcome
	}

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	if sink == nil {
		sink = SinkFunc(func(domain.Message) {})
	}

	req := Request{
		FrameID:       frameID,
		Call:          call,
		ShouldRespond: shouldRespond,
		ResponseID:    uuid.NewString(),
		Sink:          sink,
	}

	content, ok, err := h(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("tools.Dispatcher.Dispatch(%q): %w", call.FunctionName, err)
	}
	if !ok || !shouldRespond {
		return nil, nil //nolint:nilnil // no response is a valid outcome
	}

	return &domain.ToolResponse{
		ID:         req.ResponseID,
		ToolCallID: call.ID,
		Content:    content,
	}, nil
}

// DispatchAll runs every call concurrently. Failures and panics are logged
// per call; successful responses come back in call order.
func (d *Dispatcher) DispatchAll(ctx context.Context, frameID string, calls []domain.ToolCall, shouldRespond bool, sink Sink) []domain.ToolResponse {
	results := make([]*domain.ToolResponse, len(calls))

	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()

			resp, err := d.safeDispatch(ctx, frameID, call, shouldRespond, sink)
			if err != nil {
				d.logger.Error().Err(err).
					Str("frame_id", frameID).
					Str("tool", call.FunctionName).
					Str("tool_call_id", call.ID).
					Msg("tool call failed")
				return
			}
			results[i] = resp
		}()
	}
	wg.Wait()

	out := make([]domain.ToolResponse, 0, len(calls))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (d *Dispatcher) safeDispatch(ctx context.Context, frameID string, call domain.ToolCall, shouldRespond bool, sink Sink) (resp *domain.ToolResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Debug().Bytes("stack", debug.Stack()).Msg("tool handler panic")
			resp = nil
			err = fmt.Errorf("%w: %v", errHandlerPanicked, r)
		}
	}()
	return d.Dispatch(ctx, frameID, call, shouldRespond, sink)
}
