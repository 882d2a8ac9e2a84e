package ui

import (
	"fmt"
	"strings"

	"github.com/xlttj/liveserve/pkg/config"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/supervisor"

	tea "github.com/charmbracelet/bubbletea"
)

// updateList handles keys for the Servers, History and Favorites views
func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.String() {
	case ShortcutQuit:
		// The caller stops every server once the program returns
		return m, tea.Quit

	case ShortcutNextView:
		m.switchState(m.uiState.next(1))
		return m, nil

	case ShortcutPrevView:
		m.switchState(m.uiState.next(-1))
		return m, nil

	case ShortcutFilter:
		m.clearMessages()
		m.inputMode = InputFilter
		m.filterInput.Focus()
		m.table.Blur()
		// Don't add the "/" character to the input
		return m, nil

	case "esc":
		// If there's an active filter but we're not in filter mode, clear it
		if m.filterInput.Value() != "" {
			m.filterInput.SetValue("")
			m.refreshTable()
		}
		return m, nil

	case ShortcutToggle:
		m.clearMessages()
		site, err := m.selectedSite()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot toggle: %v", err)
			return m, nil
		}
		rec, served, err := m.service.Toggle(site.Root)
		if err != nil {
			logging.LogError("Toggle of %s failed: %v", site.Root, err)
			m.errorMsg = fmt.Sprintf("Cannot toggle %s: %v", site.Name(), err)
		} else {
			m.reportServed(site.Name(), rec, served)
		}
		m.refreshTable()
		return m, nil

	case ShortcutOpen:
		m.clearMessages()
		_, rec, err := m.selectedRecord()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot open URL: %v", err)
			return m, nil
		}
		if err := m.openURL(rec.URL()); err != nil {
			m.errorMsg = fmt.Sprintf("Failed to open browser: %v", err)
		} else {
			m.statusMsg = fmt.Sprintf("Opened %s in browser", rec.URL())
		}
		return m, nil

	case ShortcutCopy:
		m.clearMessages()
		_, rec, err := m.selectedRecord()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot copy URL: %v", err)
			return m, nil
		}
		if err := m.copyText(rec.URL()); err != nil {
			m.errorMsg = fmt.Sprintf("Failed to copy to clipboard: %v", err)
		} else {
			m.statusMsg = fmt.Sprintf("Copied %s", rec.URL())
		}
		return m, nil

	case ShortcutFavorite:
		m.clearMessages()
		site, err := m.selectedSite()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot favorite: %v", err)
			return m, nil
		}
		meta, err := m.service.ToggleFavorite(site.Root)
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot favorite %s: %v", site.Name(), err)
			return m, nil
		}
		if meta.Favorite {
			m.statusMsg = fmt.Sprintf("Added %s to favorites", site.Name())
		} else {
			m.statusMsg = fmt.Sprintf("Removed %s from favorites", site.Name())
		}
		m.refreshTable()
		return m, nil

	case ShortcutAlias:
		m.clearMessages()
		site, err := m.selectedSite()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot set alias: %v", err)
			return m, nil
		}
		m.aliasTarget = site.Root
		m.editInput.Placeholder = "alias (empty clears)"
		m.editInput.SetValue(site.Alias)
		return m, m.beginEdit(InputAlias)

	case ShortcutRemove:
		m.clearMessages()
		if m.uiState != StateHistory {
			m.errorMsg = "Only history entries can be removed"
			return m, nil
		}
		site, err := m.selectedSite()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot remove: %v", err)
			return m, nil
		}
		if _, err := m.service.RemoveHistory(site.Root); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot remove %s: %v", site.Name(), err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Removed %s from history", site.Name())
		m.refreshTable()
		return m, nil

	case ShortcutPrune:
		m.clearMessages()
		if m.uiState != StateHistory {
			return m, nil
		}
		removed, err := m.service.PruneHistory()
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot prune history: %v", err)
			return m, nil
		}
		m.statusMsg = fmt.Sprintf("Removed %d missing folder(s) from history", len(removed))
		m.refreshTable()
		return m, nil

	case ShortcutNewPath:
		m.clearMessages()
		m.editInput.Placeholder = "folder to serve"
		m.editInput.SetValue("")
		return m, m.beginEdit(InputPath)

	case ShortcutPicker:
		m.clearMessages()
		m.inputMode = InputPicker
		m.table.Blur()
		return m, m.picker.Init()
	}

	// Default case for keys not handled above: pass to table
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// updateInput routes keys to whichever overlay is open
func (m *Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.inputMode {
	case InputFilter:
		switch msg.String() {
		case "esc":
			m.filterInput.SetValue("")
			m.endInput()
			m.refreshTable()
			return m, nil
		case "enter":
			// Leave filter mode but keep the filter applied
			m.endInput()
			return m, nil
		}
		m.filterInput, cmd = m.filterInput.Update(msg)
		m.refreshTable()
		return m, cmd

	case InputPath, InputAlias:
		switch msg.String() {
		case "esc":
			m.endInput()
			return m, nil
		case "enter":
			return m.commitEdit()
		}
		m.editInput, cmd = m.editInput.Update(msg)
		return m, cmd

	case InputPicker:
		if msg.String() == "esc" {
			m.endInput()
			return m, nil
		}
		m.picker, cmd = m.picker.Update(msg)
		if ok, path := m.picker.DidSelectFile(msg); ok {
			m.endInput()
			m.serve(path)
			return m, nil
		}
		return m, cmd
	}
	return m, nil
}

// updateLogs scrolls the log view
func (m *Model) updateLogs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case ShortcutQuit:
		return m, tea.Quit
	case ShortcutNextView:
		m.switchState(m.uiState.next(1))
		return m, nil
	case ShortcutPrevView:
		m.switchState(m.uiState.next(-1))
		return m, nil
	case ShortcutClearLogs:
		logging.Clear()
		m.refreshLogs()
		m.statusMsg = "Log view cleared"
		return m, nil
	}
	var cmd tea.Cmd
	m.logView, cmd = m.logView.Update(msg)
	return m, cmd
}

// commitEdit applies the path or alias typed by the user
func (m *Model) commitEdit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.editInput.Value())
	mode := m.inputMode
	m.endInput()

	switch mode {
	case InputPath:
		if value == "" {
			return m, nil
		}
		path, err := config.ExpandHome(value)
		if err != nil {
			m.errorMsg = fmt.Sprintf("Cannot resolve %s: %v", value, err)
			return m, nil
		}
		m.serve(path)

	case InputAlias:
		if _, err := m.service.SetAlias(m.aliasTarget, value); err != nil {
			m.errorMsg = fmt.Sprintf("Cannot set alias: %v", err)
			return m, nil
		}
		if value == "" {
			m.statusMsg = "Alias cleared"
		} else {
			m.statusMsg = fmt.Sprintf("Alias set to %q", value)
		}
		m.refreshTable()
	}
	return m, nil
}

// serve starts path and reports the outcome in the message line
func (m *Model) serve(path string) {
	rec, err := m.service.Serve(path)
	if err != nil {
		m.errorMsg = fmt.Sprintf("Cannot serve %s: %v", path, err)
		return
	}
	m.reportServed(path, rec, true)
	m.refreshTable()
}

func (m *Model) reportServed(name string, rec supervisor.ServerRecord, served bool) {
	switch {
	case !served:
		m.statusMsg = fmt.Sprintf("Stopped %s", name)
	case rec.Status == supervisor.StatusError:
		m.errorMsg = fmt.Sprintf("%s failed: %s", name, rec.Error)
	default:
		m.statusMsg = fmt.Sprintf("Serving %s at %s", name, rec.URL())
	}
}

func (m *Model) beginEdit(mode InputMode) tea.Cmd {
	m.inputMode = mode
	m.table.Blur()
	return m.editInput.Focus()
}

func (m *Model) endInput() {
	m.inputMode = InputNone
	m.filterInput.Blur()
	m.editInput.Blur()
	m.table.Focus()
}

func (m *Model) clearMessages() {
	m.errorMsg = ""
	m.statusMsg = ""
}
