// Package ui provides the terminal front end for a playback session.
package ui

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/promptdj/internal/presets"
	"github.com/dgnsrekt/promptdj/internal/session"
)

const (
	barWidth   = 20
	meterWidth = 30
	ellipsis   = "…"
)

// Controller is the part of session.Manager the UI drives.
type Controller interface {
	PlayPause()
	Play()
	Stop()
	ResetContext()
	SetWeightedPrompts(session.Snapshot)
	Status() session.Status
}

var _ Controller = (*session.Manager)(nil)

// NewProgram returns a new Tea program.
func NewProgram(cfg Config, ctrl Controller) *tea.Program {
	log.Debug("Starting promptdj ui", "prompts", len(cfg.Prompts), "autoplay", cfg.Autoplay)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(newModel(cfg, ctrl), opts...)
}

type model struct {
	cfg  Config
	ctrl Controller

	prompts  []presets.Preset
	selected int

	status   session.Status
	reasons  map[string]string
	lastErr  error
	level    float64
	width    int
	spinner  spinner.Model
	help     help.Model
	quitting bool
}

func newModel(cfg Config, ctrl Controller) model {
	if cfg.WeightStep <= 0 {
		cfg.WeightStep = 0.1
	}
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 100
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(stateColor(session.StateLoading))

	return model{
		cfg:     cfg,
		ctrl:    ctrl,
		prompts: append([]presets.Preset(nil), cfg.Prompts...),
		reasons: make(map[string]string),
		spinner: sp,
		help:    help.New(),
	}
}

func (m model) refresh() time.Duration {
	return time.Duration(m.cfg.RefreshEvery) * time.Millisecond
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, tick(m.refresh())}
	if m.cfg.Autoplay {
		ctrl := m.ctrl
		cmds = append(cmds, func() tea.Msg {
			ctrl.Play()
			return nil
		})
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		return m.handleKey(msg)

	case StateMsg:
		m.status.State = msg.State
		switch msg.State {
		case session.StatePlaying:
			m.lastErr = nil
		case session.StateStopped:
			m.status.Filtered = nil
			clear(m.reasons)
		}

	case ErrorMsg:
		m.lastErr = msg.Err

	case FilteredMsg:
		m.reasons[msg.Prompt.Text] = msg.Prompt.Reason
		if !slices.Contains(m.status.Filtered, msg.Prompt.Text) {
			m.status.Filtered = append(slices.Clip(m.status.Filtered), msg.Prompt.Text)
		}

	case PresetsMsg:
		m.prompts = append([]presets.Preset(nil), msg.Prompts...)
		if m.selected >= len(m.prompts) {
			m.selected = max(0, len(m.prompts)-1)
		}
		m.push()

	case tickMsg:
		m.status = m.ctrl.Status()
		if m.cfg.Level != nil {
			m.level = m.cfg.Level()
		}
		return m, tick(m.refresh())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, keys.Up):
		if m.selected > 0 {
			m.selected--
		}
	case key.Matches(msg, keys.Down):
		if m.selected < len(m.prompts)-1 {
			m.selected++
		}
	case key.Matches(msg, keys.Increase):
		m.adjust(m.cfg.WeightStep)
	case key.Matches(msg, keys.Decrease):
		m.adjust(-m.cfg.WeightStep)
	case key.Matches(msg, keys.Zero):
		m.setWeight(0)
	case key.Matches(msg, keys.PlayPause):
		m.ctrl.PlayPause()
	case key.Matches(msg, keys.Stop):
		m.ctrl.Stop()
	case key.Matches(msg, keys.Reset):
		m.ctrl.ResetContext()
	}
	return m, nil
}

func (m *model) adjust(delta float64) {
	if len(m.prompts) == 0 {
		return
	}
	m.setWeight(m.prompts[m.selected].Weight + delta)
}

func (m *model) setWeight(w float64) {
	if len(m.prompts) == 0 {
		return
	}
	w = math.Round(math.Max(0, math.Min(presets.MaxWeight, w))*10) / 10
	if m.prompts[m.selected].Weight == w {
		return
	}
	m.prompts[m.selected].Weight = w
	m.push()
}

func (m model) push() {
	m.ctrl.SetWeightedPrompts(presets.Snapshot(m.prompts))
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("PromptDJ"))
	b.WriteString("\n\n")

	for i, p := range m.prompts {
		b.WriteString(m.promptLine(i, p))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(statusLine(m.status, m.spinner.View()))
	b.WriteByte('\n')
	b.WriteString(dimStyle.Render("level ") + renderBar(m.level, meterWidth, stateColor(m.status.State)))
	b.WriteByte('\n')

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("Error: " + m.truncate(m.lastErr.Error())))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	b.WriteString(m.help.View(keys))
	return b.String()
}

func (m model) promptLine(i int, p presets.Preset) string {
	cursor := "  "
	text := p.Text
	if i == m.selected {
		cursor = "> "
		text = selectedStyle.Render(text)
	}

	color := lipgloss.Color(p.Color)
	if p.Color == "" {
		color = lipgloss.Color("#888888")
	}

	line := fmt.Sprintf("%s%s %3.1f  %s", cursor,
		renderBar(p.Weight/presets.MaxWeight, barWidth, color), p.Weight, text)
	if reason, ok := m.filtered(p.Text); ok {
		label := "  filtered"
		if reason != "" {
			label += ": " + reason
		}
		line += dimStyle.Render(label)
	}
	return line
}

// filtered reports whether the current session refused text. Status is
// authoritative; reasons only label what it lists.
func (m model) filtered(text string) (string, bool) {
	if !slices.Contains(m.status.Filtered, text) {
		return "", false
	}
	return m.reasons[text], true
}

func (m model) truncate(s string) string {
	limit := m.width - len("Error: ")
	r := []rune(s)
	if limit <= 1 || len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + ellipsis
}
