// Package channel owns the duplex websocket connection to the agent service
// and keeps it alive with exponential backoff.
package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotOpen = errors.New("channel: not open") //nolint:gochecknoglobals // sentinel error
	ErrClosed  = errors.New("channel: closed")   //nolint:gochecknoglobals // sentinel error
)

const (
	defaultDialTimeout = 10 * time.Second
	defaultReadLimit   = 1 << 20
	framesBuffer       = 64
)

// State is the lifecycle of one connection attempt.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CredentialSource yields the bearer token presented on each dial.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// Options tunes a Manager. Zero values fall back to defaults.
type Options struct {
	Backoff       Backoff
	DialTimeout   time.Duration
	HTTPClient    *http.Client
	OnStateChange func(State)
	Logger        *zerolog.Logger
}

// Manager keeps one websocket connection open against a fixed target.
// A single goroutine owns dialing, reading and the reconnect schedule.
type Manager struct {
	target      string
	creds       CredentialSource
	backoff     Backoff
	dialTimeout time.Duration
	httpClient  *http.Client
	onState     func(State)
	logger      zerolog.Logger

	frames chan []byte
	kick   chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	attempt int
	started bool
	closed  bool
	cancel  context.CancelFunc
}

// New creates a Manager for target. Nothing is dialed until Connect.
func New(target string, creds CredentialSource, opts Options) *Manager {
	if opts.Backoff.Base <= 0 && opts.Backoff.Max <= 0 {
		rnd := opts.Backoff.Rand
		opts.Backoff = DefaultBackoff()
		opts.Backoff.Rand = rnd
	}
	if opts.Backoff.Max < opts.Backoff.Base {
		opts.Backoff.Max = opts.Backoff.Base
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return &Manager{
		target:      target,
		creds:       creds,
		backoff:     opts.Backoff,
		dialTimeout: opts.DialTimeout,
		httpClient:  opts.HTTPClient,
		onState:     opts.OnStateChange,
		logger:      logger.With().Str("component", "channel").Str("target", target).Logger(),
		frames:      make(chan []byte, framesBuffer),
		kick:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Connect starts the connection loop. While connecting or open it is a no-op;
// while a reconnection is scheduled it dials immediately. The loop lives
// until ctx is cancelled or Close is called.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}

	if !m.started {
		m.started = true
		loopCtx, cancel := context.WithCancel(ctx)
		m.cancel = cancel
		changed := m.setStateLocked(StateConnecting)
		m.mu.Unlock()

		if changed && m.onState != nil {
			m.onState(StateConnecting)
		}
		go m.run(loopCtx)
		return nil
	}

	state := m.state
	m.mu.Unlock()

	if state == StateConnecting || state == StateOpen {
		return nil
	}
	select {
	case m.kick <- struct{}{}:
	default:
	}
	return nil
}

// Send writes one text frame. It returns ErrNotOpen without queueing when the
// connection is not open.
func (m *Manager) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	conn, state, closed := m.conn, m.state, m.closed
	m.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if state != StateOpen || conn == nil {
		m.logger.Warn().Stringer("state", state).Msg("send while not open; frame dropped")
		return ErrNotOpen
	}

	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		m.logger.Warn().Err(err).Msg("websocket write")
		return fmt.Errorf("channel.Manager.Send: %w", err)
	}
	return nil
}

// Frames yields raw inbound frames. It is closed when the Manager shuts down.
func (m *Manager) Frames() <-chan []byte {
	return m.frames
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Attempt reports the number of reconnections scheduled since the last open.
func (m *Manager) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Backoff returns the reconnection policy in effect.
func (m *Manager) Backoff() Backoff {
	return m.backoff
}

// Close tears down the connection and stops reconnecting.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	cancel := m.cancel
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
	}
	if !started {
		close(m.frames)
		close(m.done)
		m.setState(StateClosed)
		return nil
	}

	cancel()
	<-m.done
	return nil
}

func (m *Manager) run(ctx context.Context) {
	defer func() {
		m.setState(StateClosed)
		close(m.frames)
		close(m.done)
	}()

	for {
		m.setState(StateConnecting)

		conn, err := m.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.Warn().Err(err).Int("attempt", m.Attempt()).Msg("dial failed")
		} else {
			m.opened(conn)
			m.readLoop(ctx, conn)
			m.dropConn(conn)
		}

		if ctx.Err() != nil {
			return
		}
		m.setState(StateClosed)

		if !m.wait(ctx) {
			return
		}
	}
}

// wait sleeps for the next backoff delay. It returns false when ctx is done.
func (m *Manager) wait(ctx context.Context) bool {
	m.mu.Lock()
	delay := m.backoff.Delay(m.attempt)
	m.attempt++
	m.mu.Unlock()

	m.logger.Info().Dur("delay", delay).Msg("reconnect scheduled")

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
	case <-m.kick:
		m.logger.Debug().Msg("reconnect requested early")
	}
	return true
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	opts := &websocket.DialOptions{HTTPClient: m.httpClient}
	if m.creds != nil {
		token, err := m.creds.Token(dialCtx)
		if err != nil {
			return nil, fmt.Errorf("channel.Manager.dial: credential: %w", err)
		}
		if token != "" {
			opts.Subprotocols = []string{"Bearer " + token}
		}
	}

	conn, _, err := websocket.Dial(dialCtx, m.target, opts) //nolint:bodyclose // closed by the websocket library
	if err != nil {
		return nil, fmt.Errorf("channel.Manager.dial: %w", err)
	}
	conn.SetReadLimit(defaultReadLimit)
	return conn, nil
}

func (m *Manager) opened(conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.attempt = 0
	m.mu.Unlock()

	// Drain a kick that raced with the successful dial.
	select {
	case <-m.kick:
	default:
	}

	m.setState(StateOpen)
	m.logger.Info().Msg("connected")
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn().Err(err).Msg("connection lost")
			}
			return
		}

		select {
		case m.frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (m *Manager) dropConn(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	_ = conn.CloseNow()
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	changed := m.setStateLocked(s)
	m.mu.Unlock()

	if changed && m.onState != nil {
		m.onState(s)
	}
}

func (m *Manager) setStateLocked(s State) bool {
	if m.state == s {
		return false
	}
	m.state = s
	return true
}
