package ui

import "time"

// Table Column Titles
const (
	ColRoot     = "ROOT"
	ColAlias    = "ALIAS"
	ColPort     = "PORT"
	ColStatus   = "STATUS"
	ColUptime   = "UPTIME"
	ColFavorite = "FAV"
	ColModified = "MODIFIED"
)

// Action Lines / Key Hints
const (
	ActionListNav    = "space: Toggle | o: Open | y: Copy URL | f: Favorite | a: Alias | n: New | p: Browse | /: Filter | tab: View | q: Quit"
	ActionListNarrow = "space:Toggle | o:Open | y:Copy | f:Fav | a:Alias | n:New | p:Browse | tab | q:Quit"
	ActionHistoryNav = "d: Remove | x: Prune missing"
	ActionLogsNav    = "↑/↓: Scroll | c: Clear | tab: View | q: Quit"
	ActionPicker     = "enter: Serve folder | ←/→: Navigate | esc: Cancel"
	ActionInput      = "enter: Confirm | esc: Cancel"
)

// Keyboard shortcuts
const (
	ShortcutExit      = "ctrl+x"
	ShortcutQuit      = "q"
	ShortcutToggle    = " "
	ShortcutOpen      = "o"
	ShortcutCopy      = "y"
	ShortcutFavorite  = "f"
	ShortcutAlias     = "a"
	ShortcutRemove    = "d"
	ShortcutPrune     = "x"
	ShortcutClearLogs = "c"
	ShortcutNewPath   = "n"
	ShortcutPicker    = "p"
	ShortcutFilter    = "/"
	ShortcutNextView  = "tab"
	ShortcutPrevView  = "shift+tab"
)

// Numeric Constants for Layout/Indexing
const (
	MinTableHeight = 4  // Minimum height for tables after calculation
	ListViewOffset = 9  // Estimated non-table lines in list views
	NarrowWidth    = 80 // Below this the help line moves under the table
	LogViewLimit   = 200
	uptimeRefresh  = time.Second
)

// Display strings for rows without a running server
const (
	StatusStopped = "stopped"
	NoValue       = "-"
	FavoriteMark  = "★"
)

// Lipgloss Colors
const (
	ColorBorder     = "240"
	ColorSelectedFg = "229"
	ColorSelectedBg = "57"
	ColorTitle      = "14"  // Cyan for titles
	ColorHelp       = "245" // Grey for help text
	ColorError      = "9"   // Red for errors
	ColorOK         = "10"  // Green for status messages
	ColorPrompt     = "11"  // Yellow for input labels
	ColorInactive   = "8"
)
