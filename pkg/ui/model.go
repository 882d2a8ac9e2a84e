package ui

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/supervisor"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model represents the state of the UI
type Model struct {
	uiState   UIState
	inputMode InputMode

	// Core components
	service     *app.Service
	updates     <-chan []supervisor.ServerRecord
	unsubscribe func()
	width       int
	height      int
	language    string

	// Central error message
	errorMsg string
	// Status/info message (non-error feedback)
	statusMsg string

	// Folder table shared by the Servers, History and Favorites views
	table table.Model
	sites []app.Site // row i of the table shows sites[i]

	// Latest supervisor snapshot, used for the title summary
	records []supervisor.ServerRecord

	// Filter state
	filterInput textinput.Model

	// Path and alias entry
	editInput   textinput.Model
	aliasTarget string

	picker  filepicker.Model
	logView viewport.Model

	now      func() time.Time
	openURL  func(url string) error
	copyText func(text string) error
}

// calculateColumnWidths returns column widths based on terminal width
func (m *Model) calculateColumnWidths() []table.Column {
	titles := m.columnTitles()
	minWidths := map[string]int{
		ColRoot:     20,
		ColAlias:    8,
		ColPort:     5,
		ColFavorite: 3,
		ColStatus:   8,
		ColUptime:   10,
		ColModified: 14,
	}

	// Calculate available width (subtract some padding for borders and spacing)
	availableWidth := m.width - 10
	availableWidth = max(availableWidth, 60)

	totalMinWidth := 0
	for _, title := range titles {
		totalMinWidth += minWidths[title]
	}
	extraSpace := max(availableWidth-totalMinWidth, 0)

	// ROOT takes most of the slack, ALIAS and STATUS share the rest
	shares := map[string]int{ColRoot: 60, ColAlias: 20, ColStatus: 20}

	cols := make([]table.Column, 0, len(titles))
	for _, title := range titles {
		cols = append(cols, table.Column{
			Title: title,
			Width: minWidths[title] + extraSpace*shares[title]/100,
		})
	}
	return cols
}

// columnTitles are the five columns of the current view
func (m *Model) columnTitles() []string {
	if m.uiState == StateServers {
		return []string{ColRoot, ColAlias, ColPort, ColStatus, ColUptime}
	}
	return []string{ColRoot, ColAlias, ColFavorite, ColStatus, ColModified}
}

// NewModel builds the dashboard around svc. startDir seeds the folder picker.
func NewModel(svc *app.Service, startDir string) *Model {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color(ColorSelectedFg)).
		Background(lipgloss.Color(ColorSelectedBg)).
		Bold(false)

	filter := textinput.New()
	filter.Placeholder = "Filter..."
	filter.CharLimit = 156
	filter.Width = 20

	edit := textinput.New()
	edit.CharLimit = 4096
	edit.Width = 60

	if startDir == "" {
		startDir, _ = os.Getwd()
	}
	fp := filepicker.New()
	fp.CurrentDirectory = startDir
	fp.DirAllowed = true
	fp.FileAllowed = false
	fp.ShowHidden = false
	fp.AutoHeight = false
	fp.Height = 15

	updates, unsubscribe := svc.Subscribe()

	m := &Model{
		uiState:     StateServers,
		service:     svc,
		updates:     updates,
		unsubscribe: unsubscribe,
		width:       80, // Default width, will be updated on first WindowSizeMsg
		height:      24, // Default height, will be updated on first WindowSizeMsg
		language:    "en",
		filterInput: filter,
		editInput:   edit,
		picker:      fp,
		logView:     viewport.New(80, 10),
		now:         time.Now,
		openURL:     openInBrowser,
		copyText:    clipboard.WriteAll,
	}

	if settings, err := svc.Store().Settings(); err != nil {
		logging.LogWarn("Failed to read settings for the dashboard: %v", err)
	} else {
		m.language = settings.Language
	}

	m.table = table.New(
		table.WithColumns(m.calculateColumnWidths()),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(s),
	)
	m.records = svc.Records()
	m.refreshTable()
	return m
}

// Cleanup detaches from the broadcaster. Servers are stopped by whoever owns
// the service.
func (m *Model) Cleanup() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitForUpdate(m.updates), tick())
}

// waitForUpdate blocks on the next broadcast snapshot
func waitForUpdate(updates <-chan []supervisor.ServerRecord) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return updatesClosedMsg{}
		}
		return recordsMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(uptimeRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case recordsMsg:
		m.records = msg
		if m.uiState != StateLogs {
			m.refreshTable()
		}
		return m, waitForUpdate(m.updates)

	case updatesClosedMsg:
		logging.LogDebug("Dashboard update stream closed")
		return m, nil

	case tickMsg:
		switch m.uiState {
		case StateServers:
			m.refreshTable()
		case StateLogs:
			m.refreshLogs()
		}
		return m, tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", ShortcutExit:
			return m, tea.Quit
		}

		if m.inputMode != InputNone {
			return m.updateInput(msg)
		}
		if m.uiState == StateLogs {
			return m.updateLogs(msg)
		}
		return m.updateList(msg)
	}

	// Directory listings arrive as messages while the picker is open
	if m.inputMode == InputPicker {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	tableHeight := max(m.height-ListViewOffset, MinTableHeight)
	m.table.SetHeight(tableHeight)
	m.setColumns()

	m.filterInput.Width = max(m.width-4, 20)
	m.editInput.Width = max(m.width-24, 20)
	m.picker.Height = tableHeight
	m.logView.Width = max(m.width-2, 20)
	m.logView.Height = tableHeight
}

// setColumns swaps the table columns for the current view. Rows are cleared
// first since the table renders every cell of a row against the columns.
func (m *Model) setColumns() {
	rows := m.table.Rows()
	m.table.SetRows(nil)
	m.table.SetColumns(m.calculateColumnWidths())
	m.table.SetRows(rows)
}

// switchState moves to another view and reloads its content
func (m *Model) switchState(state UIState) {
	m.uiState = state
	m.errorMsg = ""
	m.statusMsg = ""
	if state == StateLogs {
		m.table.Blur()
		m.refreshLogs()
		return
	}
	m.table.SetRows(nil)
	m.setColumns()
	m.table.SetCursor(0)
	m.table.Focus()
	m.refreshTable()
}

// openInBrowser opens url with the platform's default handler
func openInBrowser(url string) error {
	logging.LogDebug("Opening URL in browser: %s", url)

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	return cmd.Start()
}
