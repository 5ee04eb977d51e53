package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/gosuda/coachlink/internal/domain"
)

// Event types published while a session runs.
const (
	EventLedger = "ledger"
	EventState  = "state"
	EventBusy   = "busy"
	EventPhase  = "phase"
	EventTools  = "tools"
)

// Event is a real-time session update.
type Event struct {
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	ChatKind  domain.ChatKind `json:"chat_kind"`
	Message   *domain.Message `json:"message,omitempty"`
	Removed   string          `json:"removed,omitempty"`
	Status    Status          `json:"status,omitempty"`
	Busy      bool            `json:"busy"`
	Tools     bool            `json:"tools_in_process"`
	Phase     string          `json:"phase,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher fans session events out, e.g. over redis pub/sub.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventChannel is the pub/sub channel carrying one session's events.
func EventChannel(userID string, kind domain.ChatKind) string {
	return "session:" + userID + ":" + string(kind)
}

func (s *Session) emit(ev Event) {
	ev.UserID = s.userID
	ev.ChatKind = s.chatKind
	ev.Status = s.Status()
	ev.Busy = s.timer.Pending()
	ev.Tools = s.ToolsInProcess()
	ev.Timestamp = time.Now().UTC()

	if s.onEvent != nil {
		s.onEvent(ev)
	}
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error().Err(err).Str("event", ev.Type).Msg("marshal session event")
		return
	}
	s.events.enqueue(ev.Type, payload)
}

// publishQueue hands events to a Publisher from its own goroutine so a slow
// broker never stalls the frame loop or the connection owner. Events are
// dropped when the queue is full.
type publishQueue struct {
	pub     Publisher
	channel string
	logger  zerolog.Logger

	mu     sync.Mutex
	closed bool
	queue  chan []byte
	done   chan struct{}
}

func newPublishQueue(pub Publisher, channel string, logger zerolog.Logger) *publishQueue {
	q := &publishQueue{
		pub:     pub,
		channel: channel,
		logger:  logger,
		queue:   make(chan []byte, eventQueueSize),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *publishQueue) enqueue(eventType string, payload []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	select {
	case q.queue <- payload:
	default:
		q.logger.Warn().Str("event", eventType).Msg("event queue full, dropping event")
	}
}

func (q *publishQueue) run() {
	defer close(q.done)

	for payload := range q.queue {
		// Not bound to the session context so the final state still goes out.
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := q.pub.Publish(ctx, q.channel, payload)
		cancel()
		if err != nil {
			q.logger.Warn().Err(err).Msg("publish session event")
		}
	}
}

// close stops accepting events and waits until the queued ones are sent.
func (q *publishQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.queue)
	}
	q.mu.Unlock()

	<-q.done
}

func (s *Session) emitLedger(msg domain.Message) {
	s.emit(Event{Type: EventLedger, Message: &msg})
}

func (s *Session) emitRemoved(id string) {
	s.emit(Event{Type: EventLedger, Removed: id})
}
