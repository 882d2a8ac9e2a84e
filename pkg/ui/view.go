package ui

import (
	"fmt"
	"strings"

	"github.com/xlttj/liveserve/pkg/app"

	"github.com/charmbracelet/lipgloss"
)

// View renders the current model state
func (m *Model) View() string {
	title := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorTitle)).Bold(true).Render(app.Summary(m.records))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp))
	help := m.helpText()

	// Format top area: title and help text (if room)
	top := title
	if m.width >= NarrowWidth {
		helpText := helpStyle.Render(help)
		if spacing := m.width - lipgloss.Width(title) - lipgloss.Width(helpText); spacing > 0 {
			top = lipgloss.JoinHorizontal(lipgloss.Left, title, strings.Repeat(" ", spacing), helpText)
		}
	}

	parts := []string{top, m.renderTabs()}
	switch {
	case m.inputMode == InputPicker:
		parts = append(parts, "Serve folder: "+m.picker.CurrentDirectory, m.picker.View())
	case m.uiState == StateLogs:
		parts = append(parts, m.logView.View())
	default:
		parts = append(parts, m.renderFilter(), lipgloss.PlaceHorizontal(m.width, lipgloss.Left, m.table.View()))
		if len(m.sites) == 0 {
			parts = append(parts, helpStyle.Render(m.emptyText()))
		}
	}

	if edit := m.renderEdit(); edit != "" {
		parts = append(parts, edit)
	}
	if msg := m.renderMessage(); msg != "" {
		parts = append(parts, msg)
	}
	if m.width < NarrowWidth {
		parts = append(parts, helpStyle.Render(help))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) helpText() string {
	switch {
	case m.inputMode == InputPicker:
		return ActionPicker
	case m.inputMode != InputNone:
		return ActionInput
	case m.uiState == StateLogs:
		return ActionLogsNav
	case m.uiState == StateHistory:
		return ActionHistoryNav + " | " + ActionListNarrow
	case m.width < NarrowWidth:
		return ActionListNarrow
	}
	return ActionListNav
}

// renderTabs shows the views with the current one highlighted
func (m *Model) renderTabs() string {
	active := lipgloss.NewStyle().
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Padding(0, 1)
	inactive := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorHelp)).Padding(0, 1)

	tabs := make([]string, 0, len(stateOrder))
	for _, state := range stateOrder {
		if state == m.uiState {
			tabs = append(tabs, active.Render(state.String()))
		} else {
			tabs = append(tabs, inactive.Render(state.String()))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

// renderFilter always reserves space for the filter box to prevent layout shift
func (m *Model) renderFilter() string {
	switch {
	case m.inputMode == InputFilter:
		style := lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorBorder)).
			Padding(0, 1)
		return style.Render("Filter: " + m.filterInput.View())
	case m.filterInput.Value() != "":
		style := lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color(ColorInactive)).
			Foreground(lipgloss.Color(ColorInactive)).
			Padding(0, 1)
		return style.Render(fmt.Sprintf("Filter: %s (Press / to edit, Esc to clear)", m.filterInput.Value()))
	}
	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		Foreground(lipgloss.Color(ColorBorder)).
		Padding(0, 1)
	return style.Render("Press / to filter...")
}

func (m *Model) renderEdit() string {
	label := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrompt))
	switch m.inputMode {
	case InputPath:
		return label.Render("Serve folder: ") + m.editInput.View()
	case InputAlias:
		return label.Render("Alias: ") + m.editInput.View()
	}
	return ""
}

func (m *Model) renderMessage() string {
	if m.errorMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError)).Render("ERROR: " + m.errorMsg)
	}
	if m.statusMsg != "" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color(ColorOK)).Render(m.statusMsg)
	}
	return ""
}

func (m *Model) emptyText() string {
	if m.filterInput.Value() != "" {
		return "No folders match the filter"
	}
	switch m.uiState {
	case StateHistory:
		return "No folders served yet. Press n to serve one."
	case StateFavorites:
		return "No favorites yet. Press f on a folder to add it."
	}
	return app.EmptyMessage(m.language)
}
