package config

import "time"

// Isolation modes for site servers.
const (
	IsolationInProcess = "inprocess" // one goroutine + listener per site
	IsolationProcess   = "process"   // one child process per site
)

// Options holds the application configuration read from config.yaml.
// Per-user settings (language, theme, default port) live in the workspace store instead.
type Options struct {
	DataDir         string        `yaml:"data_dir"`
	LogDir          string        `yaml:"log_dir"`
	LogMaxAgeDays   int           `yaml:"log_max_age_days"`
	BindHost        string        `yaml:"bind_host"`
	PortSearchLimit int           `yaml:"port_search_limit"`
	Isolation       string        `yaml:"isolation"`
	LiveReload      bool          `yaml:"live_reload"`
	DefaultDocument string        `yaml:"default_document"`
	MetricsListen   string        `yaml:"metrics_listen"`
	StopTimeout     time.Duration `yaml:"stop_timeout"`
}

// DefaultOptions returns the built-in configuration rooted at dataDir.
func DefaultOptions(dataDir string) Options {
	return Options{
		DataDir:         dataDir,
		LogMaxAgeDays:   7,
		BindHost:        "0.0.0.0",
		PortSearchLimit: 100,
		Isolation:       IsolationInProcess,
		LiveReload:      true,
		DefaultDocument: "index.html",
		StopTimeout:     5 * time.Second,
	}
}
