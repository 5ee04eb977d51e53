package main

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/session"
)

// transcript prints ledger changes to a terminal. Streamed messages are
// printed incrementally on one line.
type transcript struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]string
	open    string

	agent  *color.Color
	widget *color.Color
	phase  *color.Color
	status *color.Color
	errc   *color.Color
}

func newTranscript(out io.Writer) *transcript {
	return &transcript{
		out:     out,
		printed: make(map[string]string),
		agent:   color.New(color.FgGreen),
		widget:  color.New(color.FgMagenta),
		phase:   color.New(color.FgCyan),
		status:  color.New(color.Faint),
		errc:    color.New(color.FgRed),
	}
}

func (t *transcript) handle(ev session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case session.EventLedger:
		if ev.Message != nil {
			t.message(*ev.Message)
		}
	case session.EventPhase:
		if ev.Phase != "" {
			t.endLine()
			t.phase.Fprintf(t.out, "  … %s\n", ev.Phase)
		}
	case session.EventState:
		t.endLine()
		t.status.Fprintf(t.out, "[%s]\n", ev.Status)
	}
}

func (t *transcript) message(m domain.Message) {
	if m.Role == domain.RoleUser || m.Content == "" {
		return
	}

	last, seen := t.printed[m.ID]
	t.printed[m.ID] = m.Content

	if seen && strings.HasPrefix(m.Content, last) {
		delta := m.Content[len(last):]
		if delta == "" {
			return
		}
		if t.open != m.ID {
			t.endLine()
			t.label(m)
		}
		t.agent.Fprint(t.out, delta)
		t.open = m.ID
		return
	}

	t.endLine()
	t.label(m)
	switch m.Kind {
	case domain.KindVisualization, domain.KindPlanWidget:
		t.widget.Fprint(t.out, m.Content)
	default:
		t.agent.Fprint(t.out, m.Content)
	}
	t.open = m.ID
}

func (t *transcript) label(m domain.Message) {
	switch m.Kind {
	case domain.KindVisualization:
		t.widget.Fprint(t.out, "[chart] ")
	case domain.KindPlanWidget:
		t.widget.Fprint(t.out, "[plan] ")
	default:
		t.agent.Fprint(t.out, "coach: ")
	}
}

func (t *transcript) errorf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLine()
	t.errc.Fprintf(t.out, format+"\n", args...)
}

// breakLine closes a streamed line before the user types.
func (t *transcript) breakLine() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLine()
}

func (t *transcript) endLine() {
	if t.open != "" {
		_, _ = io.WriteString(t.out, "\n")
		t.open = ""
	}
}
