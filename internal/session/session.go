// Package session is the façade over one conversation with the agent: it
// routes inbound frames to the ledger, the acknowledgement timer and the
// tool dispatcher, and pushes outbound frames back through the transport.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/coachlink/internal/acktimer"
	"github.com/gosuda/coachlink/internal/channel"
	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/ledger"
	"github.com/gosuda/coachlink/internal/tools"
)

var (
	ErrAlreadyStarted = errors.New("session: already started") //nolint:gochecknoglobals // sentinel error
	ErrClosed         = errors.New("session: closed")          //nolint:gochecknoglobals // sentinel error
	ErrEmptyMessage   = errors.New("session: empty message")   //nolint:gochecknoglobals // sentinel error
	ErrNotStarted     = errors.New("session: not started")     //nolint:gochecknoglobals // sentinel error
)

const (
	publishTimeout = 2 * time.Second
	eventQueueSize = 256
)

// Status is the observable state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusOpenIdle   Status = "open-idle"
	StatusOpenBusy   Status = "open-busy"
	StatusClosed     Status = "closed"
)

// Config configures a Session.
type Config struct {
	UserID     string
	ChatKind   domain.ChatKind
	AckTimeout time.Duration

	// Dispatcher runs tool calls. Nil means every call is unknown.
	Dispatcher *tools.Dispatcher
	// Publisher, if set, receives every Event as JSON from a background
	// goroutine. Events are dropped while it falls behind.
	Publisher Publisher
	// OnEvent, if set, is called synchronously for every Event.
	OnEvent func(Event)
}

// Info is a point-in-time view of a session.
type Info struct {
	UserID         string          `json:"user_id"`
	ChatKind       domain.ChatKind `json:"chat_kind"`
	Status         Status          `json:"status"`
	Busy           bool            `json:"busy"`
	ToolsInProcess bool            `json:"tools_in_process"`
	Phase          string          `json:"phase"`
	LastSeen       time.Time       `json:"last_seen"`
	Messages       int             `json:"messages"`
}

// Session is one conversation scoped to a (user, chat kind) pair.
type Session struct {
	userID     string
	chatKind   domain.ChatKind
	transport  Transport
	ledger     *ledger.Ledger
	timer      *acktimer.Timer
	dispatcher *tools.Dispatcher
	events     *publishQueue
	onEvent    func(Event)
	logger     zerolog.Logger

	// ledgerMu serializes compound ledger edits (drop stale ack, then write)
	// between the frame loop and tool goroutines.
	ledgerMu sync.Mutex

	ctx      context.Context //nolint:containedctx // session lifetime
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	loopDone chan struct{}

	mu       sync.Mutex
	started  bool
	closed   bool
	phase    string
	lastSeen time.Time
	tools    int
}

// New creates a Session. Nothing is dialed until Start.
func New(cfg Config, newTransport TransportFactory) *Session {
	if cfg.Dispatcher == nil {
		cfg.Dispatcher = tools.NewDispatcher(tools.NewRegistry(), 0)
	}

	s := &Session{
		userID:     cfg.UserID,
		chatKind:   cfg.ChatKind,
		ledger:     ledger.New(),
		dispatcher: cfg.Dispatcher,
		onEvent:    cfg.OnEvent,
		logger: log.With().
			Str("component", "session").
			Str("user_id", cfg.UserID).
			Str("chat_kind", string(cfg.ChatKind)).
			Logger(),
		loopDone: make(chan struct{}),
	}
	if cfg.Publisher != nil {
		s.events = newPublishQueue(cfg.Publisher, EventChannel(cfg.UserID, cfg.ChatKind), s.logger)
	}
	s.timer = acktimer.New(cfg.AckTimeout, func(bool) {
		s.emit(Event{Type: EventBusy})
	})
	s.transport = newTransport(func(state channel.State) {
		s.logger.Debug().Stringer("state", state).Msg("connection state")
		s.emit(Event{Type: EventState})
	})
	return s
}

// Start connects the transport and begins processing inbound frames.
// The session stops when ctx is cancelled or Close is called.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if err := s.transport.Connect(s.ctx); err != nil {
		close(s.loopDone)
		return fmt.Errorf("session.Session.Start: %w", err)
	}

	go s.loop()
	s.logger.Info().Msg("session started")
	return nil
}

// Reconnect asks the transport to dial now. It is a no-op while connecting or open.
func (s *Session) Reconnect() error {
	s.mu.Lock()
	started, closed, ctx := s.started, s.closed, s.ctx
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return fmt.Errorf("session.Session.Reconnect: %w", ErrNotStarted)
	}
	if err := s.transport.Connect(ctx); err != nil {
		return fmt.Errorf("session.Session.Reconnect: %w", err)
	}
	return nil
}

// Close tears the session down: the socket closes, backoff and timers stop,
// and in-flight tool results are dropped.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if cancel != nil {
		s.ledgerMu.Lock()
		cancel()
		s.ledgerMu.Unlock()
	}
	err := s.transport.Close()
	s.timer.Close()

	if started {
		<-s.loopDone
	}
	s.wg.Wait()

	s.emit(Event{Type: EventState})
	if s.events != nil {
		s.events.close()
	}
	s.logger.Info().Msg("session closed")

	if err != nil {
		return fmt.Errorf("session.Session.Close: %w", err)
	}
	return nil
}

// SendUserMessage appends a user message locally, then transmits it. A
// failed transmission leaves the local entry in place and is not retried.
func (s *Session) SendUserMessage(ctx context.Context, content string) (domain.Message, error) {
	if content == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if s.isClosed() {
		return domain.Message{}, ErrClosed
	}

	msg := domain.Message{
		ID:      uuid.NewString(),
		Kind:    domain.KindNormal,
		Role:    domain.RoleUser,
		Content: content,
	}

	s.ledgerMu.Lock()
	s.ledger.Upsert(msg)
	s.ledgerMu.Unlock()
	s.emitLedger(msg)

	if err := s.send(ctx, msg, ""); err != nil {
		return msg, fmt.Errorf("session.Session.SendUserMessage: %w", err)
	}
	return msg, nil
}

// Send transmits an arbitrary outbound message. Only user-role messages are
// recorded in the ledger.
func (s *Session) Send(ctx context.Context, msg domain.Message, toolCallID string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Role == domain.RoleUser {
		s.ledgerMu.Lock()
		s.ledger.Upsert(msg)
		s.ledgerMu.Unlock()
		s.emitLedger(msg)
	}
	if err := s.send(ctx, msg, toolCallID); err != nil {
		return fmt.Errorf("session.Session.Send: %w", err)
	}
	return nil
}

func (s *Session) send(ctx context.Context, msg domain.Message, toolCallID string) error {
	data, err := domain.EncodeMessage(msg, toolCallID)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, data)
}

// Messages returns the ledger in order.
func (s *Session) Messages() []domain.Message {
	return s.ledger.Snapshot()
}

func (s *Session) Status() Status {
	if s.isClosed() {
		return StatusClosed
	}
	switch s.transport.State() {
	case channel.StateIdle:
		return StatusIdle
	case channel.StateConnecting:
		return StatusConnecting
	case channel.StateOpen:
		if s.timer.Pending() {
			return StatusOpenBusy
		}
		return StatusOpenIdle
	default:
		return StatusClosed
	}
}

// Busy reports whether the agent is believed to be working on a reply.
func (s *Session) Busy() bool {
	return s.timer.Pending()
}

func (s *Session) ToolsInProcess() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tools > 0
}

// Phase is the latest progress text sent by the agent.
func (s *Session) Phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastSeen is when the last inbound frame arrived.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) UserID() string            { return s.userID }
func (s *Session) ChatKind() domain.ChatKind { return s.chatKind }

func (s *Session) Info() Info {
	return Info{
		UserID:         s.userID,
		ChatKind:       s.chatKind,
		Status:         s.Status(),
		Busy:           s.Busy(),
		ToolsInProcess: s.ToolsInProcess(),
		Phase:          s.Phase(),
		LastSeen:       s.LastSeen(),
		Messages:       s.ledger.Len(),
	}
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
