package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/supervisor"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// loadSites fetches the folders listed by the current view
func (m *Model) loadSites() ([]app.Site, error) {
	switch m.uiState {
	case StateHistory:
		return m.service.History()
	case StateFavorites:
		return m.service.Favorites()
	default:
		return m.service.Servers(), nil
	}
}

// refreshTable reloads the current view and rebuilds its rows
func (m *Model) refreshTable() {
	sites, err := m.loadSites()
	if err != nil {
		logging.LogError("Failed to load %s: %v", m.uiState, err)
		m.errorMsg = fmt.Sprintf("Cannot load %s: %v", strings.ToLower(m.uiState.String()), err)
		sites = nil
	}
	m.sites = m.applyFilter(sites)

	rows := make([]table.Row, 0, len(m.sites))
	for _, site := range m.sites {
		rows = append(rows, m.siteRow(site))
	}
	m.table.SetRows(rows)
	switch {
	case len(rows) == 0:
	case m.table.Cursor() < 0:
		m.table.SetCursor(0)
	case m.table.Cursor() >= len(rows):
		m.table.SetCursor(len(rows) - 1)
	}
}

// applyFilter keeps sites whose root, alias or port contains the filter text
func (m *Model) applyFilter(sites []app.Site) []app.Site {
	filterText := strings.ToLower(strings.TrimSpace(m.filterInput.Value()))
	if filterText == "" {
		return sites
	}

	filtered := make([]app.Site, 0, len(sites))
	for _, site := range sites {
		fields := []string{strings.ToLower(site.Root), strings.ToLower(site.Alias)}
		if site.Record != nil {
			fields = append(fields, strconv.Itoa(site.Record.Port))
		}
		for _, f := range fields {
			if strings.Contains(f, filterText) {
				filtered = append(filtered, site)
				break
			}
		}
	}
	return filtered
}

// siteRow renders one table row for the current view
func (m *Model) siteRow(site app.Site) table.Row {
	alias := site.Alias
	if alias == "" {
		alias = NoValue
	}
	root := shortenHome(site.Root)

	if m.uiState == StateServers {
		port, uptime := NoValue, NoValue
		if site.Record != nil {
			port = strconv.Itoa(site.Record.Port)
			if site.Record.Status == supervisor.StatusRunning {
				uptime = strings.TrimSpace(humanize.RelTime(site.Record.StartTime, m.now(), "", ""))
			}
		}
		return table.Row{root, alias, port, statusText(site), uptime}
	}

	favorite := ""
	if site.Favorite {
		favorite = FavoriteMark
	}
	modified := "missing"
	if site.LastModified != nil {
		modified = humanize.RelTime(*site.LastModified, m.now(), "ago", "from now")
	}
	return table.Row{root, alias, favorite, statusText(site), modified}
}

// statusText is the record status, with the port for live servers and the
// failure for errored ones
func statusText(site app.Site) string {
	rec := site.Record
	if rec == nil {
		return StatusStopped
	}
	switch rec.Status {
	case supervisor.StatusError:
		if rec.Error != "" {
			return fmt.Sprintf("error: %s", rec.Error)
		}
	case supervisor.StatusRunning, supervisor.StatusStarting:
		return fmt.Sprintf("%s :%d", rec.Status, rec.Port)
	}
	return string(rec.Status)
}

// shortenHome replaces the home directory prefix with ~
func shortenHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(filepath.Separator)) {
		return "~" + path[len(home):]
	}
	return path
}

// selectedSite returns the site under the table cursor
func (m *Model) selectedSite() (app.Site, error) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.sites) {
		return app.Site{}, fmt.Errorf("no folder selected")
	}
	return m.sites[idx], nil
}

// selectedRecord returns the live server under the cursor
func (m *Model) selectedRecord() (app.Site, *supervisor.ServerRecord, error) {
	site, err := m.selectedSite()
	if err != nil {
		return site, nil, err
	}
	if site.Record == nil || site.Record.Status != supervisor.StatusRunning {
		return site, nil, fmt.Errorf("%s is not running", site.Name())
	}
	return site, site.Record, nil
}

// refreshLogs loads the in-memory log tail into the viewport, oldest first
func (m *Model) refreshLogs() {
	entries := logging.Recent(LogViewLimit)
	errStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorError))
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorPrompt))

	var b strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		line := fmt.Sprintf("%s [%s] %s", e.Time.Format("15:04:05"), e.Level, e.Message)
		switch e.Level {
		case "ERROR":
			line = errStyle.Render(line)
		case "WARN":
			line = warnStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	atBottom := m.logView.AtBottom()
	m.logView.SetContent(b.String())
	if atBottom {
		m.logView.GotoBottom()
	}
}
