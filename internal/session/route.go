package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/tools"
)

func (s *Session) loop() {
	defer close(s.loopDone)

	frames := s.transport.Frames()
	for {
		select {
		case <-s.ctx.Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(data)
		}
	}
}

func (s *Session) handleFrame(data []byte) {
	in, err := domain.DecodeFrame(data)
	if err != nil {
		ev := s.logger.Error()
		if errors.Is(err, domain.ErrUnknownKind) {
			ev = s.logger.Warn()
		}
		ev.Err(err).Int("bytes", len(data)).Msg("dropping inbound frame")
		return
	}

	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()

	msg := in.Message
	s.logger.Debug().
		Stringer("kind", msg.Kind).
		Str("id", msg.ID).
		Str("role", msg.Role).
		Int("tool_calls", len(msg.ToolCalls)).
		Msg("inbound frame")

	switch msg.Kind {
	case domain.KindAcknowledgement:
		s.acknowledge(msg)

	case domain.KindStreamingDelta:
		s.ledgerMu.Lock()
		removed, dropped := "", false
		if msg.Displayable() {
			removed, dropped = s.ledger.RemoveTrailingAcknowledgement()
		}
		s.ledger.AppendDelta(msg.ID, msg.Role, msg.Content)
		current, _ := s.ledger.Get(msg.ID)
		s.ledgerMu.Unlock()

		if dropped {
			s.emitRemoved(removed)
		}
		s.emitLedger(current)

	case domain.KindClosing:
		s.ledgerMu.Lock()
		removed, dropped := s.ledger.RemoveTrailingAcknowledgement()
		finalized := s.ledger.Finalize(msg.ID)
		current, _ := s.ledger.Get(msg.ID)
		s.ledgerMu.Unlock()

		if dropped {
			s.emitRemoved(removed)
		}
		if finalized {
			s.emitLedger(current)
		}
		s.timer.Disarm()

	case domain.KindProgress:
		s.mu.Lock()
		s.phase = msg.Content
		s.mu.Unlock()
		s.emit(Event{Type: EventPhase, Phase: msg.Content})

	case domain.KindToolRequest:
		s.handleTool(in)

	case domain.KindNormal, domain.KindVisualization, domain.KindPlanWidget:
		if msg.ID == "" || !msg.Displayable() {
			return
		}
		s.display(msg)
	}
}

// acknowledge arms the liveness timer and records a placeholder unless the
// frame is the conversation-start sentinel.
func (s *Session) acknowledge(msg domain.Message) {
	s.timer.Arm()
	if msg.Content == domain.StartConversationSentinel {
		return
	}
	s.display(msg)
}

// display drops a stale acknowledgement placeholder and upserts msg.
func (s *Session) display(msg domain.Message) {
	s.write(msg, false)
}

// displayLive is display for tool goroutines. Close cancels the session
// context under ledgerMu, so once it has run nothing more is written.
func (s *Session) displayLive(msg domain.Message) {
	s.write(msg, true)
}

func (s *Session) write(msg domain.Message, live bool) {
	s.ledgerMu.Lock()
	if live && s.ctx.Err() != nil {
		s.ledgerMu.Unlock()
		return
	}
	removed, dropped := s.ledger.RemoveTrailingAcknowledgement()
	changed := s.ledger.Upsert(msg)
	current, _ := s.ledger.Get(msg.ID)
	s.ledgerMu.Unlock()

	if dropped {
		s.emitRemoved(removed)
	}
	if changed {
		s.emitLedger(current)
	}
}

func (s *Session) handleTool(in domain.Inbound) {
	msg := in.Message

	if msg.Content != "" {
		s.display(domain.Message{
			ID:      msg.ID,
			Kind:    domain.KindNormal,
			Role:    domain.RoleAssistant,
			Content: msg.Content,
		})
		s.acknowledge(domain.Message{
			ID:   uuid.NewString(),
			Kind: domain.KindAcknowledgement,
			Role: domain.RoleAssistant,
		})
	}

	if len(msg.ToolCalls) == 0 {
		return
	}

	s.timer.Arm()
	s.setToolsInFlight(1)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.setToolsInFlight(-1)
		s.runTools(msg.ID, msg.ToolCalls, in.ShouldRespond)
	}()
}

func (s *Session) runTools(frameID string, calls []domain.ToolCall, shouldRespond bool) {
	sink := tools.SinkFunc(s.displayLive)

	responses := s.dispatcher.DispatchAll(s.ctx, frameID, calls, shouldRespond, sink)

	if s.ctx.Err() != nil {
		s.logger.Debug().Str("frame_id", frameID).Msg("session closed; dropping tool results")
		return
	}
	if !shouldRespond {
		return
	}

	data, err := domain.EncodeToolResponses(responses)
	if err != nil {
		s.logger.Error().Err(err).Str("frame_id", frameID).Msg("encode tool responses")
		return
	}
	if err := s.transport.Send(s.ctx, data); err != nil {
		s.logger.Warn().Err(err).Str("frame_id", frameID).Int("responses", len(responses)).Msg("tool responses not delivered")
		return
	}
	s.logger.Debug().Str("frame_id", frameID).Int("responses", len(responses)).Msg("tool responses sent")
}

func (s *Session) setToolsInFlight(delta int) {
	s.mu.Lock()
	before := s.tools > 0
	s.tools += delta
	after := s.tools > 0
	s.mu.Unlock()

	if before != after {
		s.emit(Event{Type: EventTools})
	}
}
