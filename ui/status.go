package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/dgnsrekt/promptdj/internal/session"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF25F6"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	selectedStyle = lipgloss.NewStyle().Bold(true)
	emptyBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#333333"))
)

// stateColor returns the appropriate color for a session state.
func stateColor(s session.State) lipgloss.Color {
	switch s {
	case session.StatePlaying:
		return lipgloss.Color("#00FF00") // Green
	case session.StatePaused:
		return lipgloss.Color("#FFFF00") // Yellow
	case session.StateLoading:
		return lipgloss.Color("#00AAFF") // Blue
	default:
		return lipgloss.Color("#888888") // Gray
	}
}

// stateIcon returns an icon for a session state.
func stateIcon(s session.State) string {
	switch s {
	case session.StatePlaying:
		return "▶"
	case session.StatePaused:
		return "⏸"
	case session.StateLoading:
		return "⟳"
	default:
		return "■"
	}
}

// renderBar draws a bar filled to frac of width.
func renderBar(frac float64, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	filled := int(math.Round(math.Max(0, math.Min(1, frac)) * float64(width)))
	return lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
		emptyBarStyle.Render(strings.Repeat("░", width-filled))
}

// statusLine renders the state, session and byte counters.
func statusLine(st session.Status, spin string) string {
	icon := stateIcon(st.State)
	if st.State == session.StateLoading && spin != "" {
		icon = spin
	}
	line := lipgloss.NewStyle().Foreground(stateColor(st.State)).
		Render(fmt.Sprintf("%s %s", icon, st.State))

	var details []string
	if st.SessionID != "" {
		details = append(details, "session "+shortID(st.SessionID))
	}
	if st.BytesReceived > 0 {
		details = append(details, humanize.Bytes(uint64(st.BytesReceived))+" received")
	}
	if st.Underruns > 0 {
		details = append(details, fmt.Sprintf("%d underruns", st.Underruns))
	}
	if len(details) > 0 {
		line += dimStyle.Render("  " + strings.Join(details, " · "))
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
