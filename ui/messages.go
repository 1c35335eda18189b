package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/promptdj/internal/presets"
	"github.com/dgnsrekt/promptdj/internal/session"
)

// StateMsg is sent when the session changes state.
type StateMsg struct{ State session.State }

// ErrorMsg is sent when the session reports an error.
type ErrorMsg struct{ Err error }

// FilteredMsg is sent when the service filters a prompt.
type FilteredMsg struct{ Prompt session.FilteredPrompt }

// PresetsMsg replaces the prompt list, e.g. after a hot reload.
type PresetsMsg struct{ Prompts []presets.Preset }

type tickMsg time.Time

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Sender delivers messages to a running program.
type Sender interface {
	Send(msg tea.Msg)
}

// Bridge is a session.Listener that forwards notifications to a program.
// Notifications are queued until Attach is called. When the queue is full
// they are dropped; the model catches up from Status on its next tick.
type Bridge struct {
	ch chan tea.Msg
}

var _ session.Listener = (*Bridge)(nil)

// NewBridge creates a Bridge that queues up to size notifications.
func NewBridge(size int) *Bridge {
	return &Bridge{ch: make(chan tea.Msg, size)}
}

// Attach forwards queued notifications to s until ctx is done.
func (b *Bridge) Attach(ctx context.Context, s Sender) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.ch:
			s.Send(msg)
		}
	}
}

func (b *Bridge) StateChanged(state session.State) { b.offer(StateMsg{State: state}) }

func (b *Bridge) ErrorOccurred(err error) { b.offer(ErrorMsg{Err: err}) }

func (b *Bridge) PromptFiltered(p session.FilteredPrompt) { b.offer(FilteredMsg{Prompt: p}) }

func (b *Bridge) offer(msg tea.Msg) {
	select {
	case b.ch <- msg:
	default:
	}
}
