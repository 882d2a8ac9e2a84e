package workspace

import "time"

// HistoryLimit caps the number of remembered folders.
const HistoryLimit = 20

// Setting names and their defaults
const (
	SettingLanguage    = "language"
	SettingTheme       = "theme"
	SettingDefaultPort = "defaultPort"

	DefaultLanguage    = "zh"
	DefaultTheme       = "light"
	DefaultPortSetting = "8080"
)

// Meta is the persisted annotation of one served folder.
// It outlives both the history entry and any running server for the folder.
type Meta struct {
	Alias    string    `json:"alias"`
	Favorite bool      `json:"favorite"`
	Created  time.Time `json:"created"`
}

// MetaChanges is a partial update; nil fields are left untouched.
type MetaChanges struct {
	Alias    *string
	Favorite *bool
}

// Favorite pairs a favorited folder with its metadata.
type Favorite struct {
	Path string
	Meta Meta
}

// Settings is the flat set of user preferences.
type Settings struct {
	Language    string
	Theme       string
	DefaultPort int
}
