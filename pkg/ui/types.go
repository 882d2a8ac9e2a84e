package ui

import (
	"time"

	"github.com/xlttj/liveserve/pkg/supervisor"
)

// UIState is the view shown in the dashboard
type UIState int

const (
	StateServers   UIState = iota // Running and failed servers
	StateHistory                  // Recently served folders
	StateFavorites                // Favorited folders
	StateLogs                     // In-memory log tail
)

var stateTitles = map[UIState]string{
	StateServers:   "Servers",
	StateHistory:   "History",
	StateFavorites: "Favorites",
	StateLogs:      "Logs",
}

var stateOrder = []UIState{StateServers, StateHistory, StateFavorites, StateLogs}

func (s UIState) String() string {
	return stateTitles[s]
}

// next cycles through the views; step is +1 or -1.
func (s UIState) next(step int) UIState {
	n := len(stateOrder)
	return stateOrder[((int(s)+step)%n+n)%n]
}

// InputMode says which overlay owns the keyboard
type InputMode int

const (
	InputNone   InputMode = iota
	InputFilter           // typing into the filter box
	InputPath             // typing a folder path to serve
	InputAlias            // editing the selected folder's alias
	InputPicker           // browsing for a folder
)

// recordsMsg carries a supervisor snapshot from the broadcaster
type recordsMsg []supervisor.ServerRecord

// updatesClosedMsg is sent once the broadcaster shuts down
type updatesClosedMsg struct{}

// tickMsg refreshes uptimes
type tickMsg time.Time
