package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// StatusRow is one line of the stage status table.
type StatusRow struct {
	Step  string
	Stage string
	State string
}

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// StatusTable renders rows as an aligned three column table.
func StatusTable(rows []StatusRow) string {
	stepW, stageW := len("STEP"), len("STAGE")
	for _, r := range rows {
		stepW = max(stepW, len(r.Step))
		stageW = max(stageW, len(r.Stage))
	}
	stepCol := lipgloss.NewStyle().Width(stepW + 2)
	stageCol := lipgloss.NewStyle().Width(stageW + 2)

	var b strings.Builder
	b.WriteString(headerStyle.Render(stepCol.Render("STEP") + stageCol.Render("STAGE") + "STATE"))
	b.WriteByte('\n')
	for _, r := range rows {
		b.WriteString(stepCol.Render(r.Step))
		b.WriteString(stageCol.Render(r.Stage))
		b.WriteString(stateStyle(r.State).Render(r.State))
		b.WriteByte('\n')
	}
	return b.String()
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "done":
		return doneStyle
	case "failed", "incomplete":
		return failedStyle
	default:
		return pendingStyle
	}
}
