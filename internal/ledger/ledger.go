// Package ledger keeps the ordered, id-indexed message log of one session.
package ledger

import (
	"sync"

	"github.com/gosuda/coachlink/internal/domain"
)

// Ledger is an ordered message log indexed by message id.
// Entries keep first-insertion order; in-place mutation never reorders them.
type Ledger struct {
	mu      sync.RWMutex
	entries []domain.Message
	index   map[string]int
}

func New() *Ledger {
	return &Ledger{
		index: make(map[string]int),
	}
}

// Upsert appends msg when its id is unseen, otherwise merges it into the
// existing entry if kind or content changed. Reports whether the ledger changed.
// An unseen start_conversation acknowledgement is suppressed.
func (l *Ledger) Upsert(msg domain.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.index[msg.ID]
	if !ok {
		if msg.Kind == domain.KindAcknowledgement && msg.Content == domain.StartConversationSentinel {
			return false
		}
		l.appendLocked(msg)
		return true
	}

	existing := &l.entries[idx]
	if existing.Kind == msg.Kind && existing.Content == msg.Content {
		return false
	}

	existing.Kind = msg.Kind
	existing.Content = msg.Content
	if msg.Role != "" {
		existing.Role = msg.Role
	}
	if msg.ToolCalls != nil {
		existing.ToolCalls = msg.Clone().ToolCalls
	}
	return true
}

// AppendDelta concatenates text onto the entry with id, creating a
// streaming entry when none exists.
func (l *Ledger) AppendDelta(id, role, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.index[id]; ok {
		l.entries[idx].Content += text
		return
	}

	l.appendLocked(domain.Message{
		ID:      id,
		Kind:    domain.KindStreamingDelta,
		Role:    role,
		Content: text,
	})
}

// Finalize turns a streaming entry into a normal one without touching its content.
func (l *Ledger) Finalize(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx, ok := l.index[id]
	if !ok || l.entries[idx].Kind != domain.KindStreamingDelta {
		return false
	}
	l.entries[idx].Kind = domain.KindNormal
	return true
}

// RemoveTrailingAcknowledgement drops the last entry if it is an
// acknowledgement and returns its id.
func (l *Ledger) RemoveTrailingAcknowledgement() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if n == 0 || l.entries[n-1].Kind != domain.KindAcknowledgement {
		return "", false
	}

	id := l.entries[n-1].ID
	delete(l.index, id)
	l.entries[n-1] = domain.Message{}
	l.entries = l.entries[:n-1]
	return id, true
}

// Get returns a copy of the entry with id.
func (l *Ledger) Get(id string) (domain.Message, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return l.entries[idx].Clone(), true
}

// Snapshot returns a copy of every entry in order.
func (l *Ledger) Snapshot() []domain.Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Message, len(l.entries))
	for i, m := range l.entries {
		out[i] = m.Clone()
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) appendLocked(msg domain.Message) {
	l.entries = append(l.entries, msg.Clone())
	l.index[msg.ID] = len(l.entries) - 1
}
