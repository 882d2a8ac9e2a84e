package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xlttj/liveserve/pkg/logging"

	"gopkg.in/yaml.v3"
)

// BaseDirPath is the default application directory; LIVESERVE_HOME overrides it.
const BaseDirPath = "~/.liveserve"

// ConfigFileName is the options file inside the application directory.
const ConfigFileName = "config.yaml"

// Sentinel error for invalid option values
var ErrInvalidOptions = errors.New("invalid configuration")

// expandHomeDir replaces the leading ~ with the user's home directory
func expandHomeDir(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	// Replace the ~ with the home directory
	path = filepath.Join(home, path[1:])
	return path, nil
}

// ExpandHome resolves a leading ~ in user-typed paths.
func ExpandHome(path string) (string, error) {
	return expandHomeDir(path)
}

// ensureConfigDir ensures the directory holding configPath exists
func ensureConfigDir(configPath string) error {
	dirPath := filepath.Dir(configPath)

	if err := os.MkdirAll(dirPath, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// BaseDir resolves the application directory.
func BaseDir() (string, error) {
	if env := os.Getenv("LIVESERVE_HOME"); env != "" {
		return expandHomeDir(env)
	}
	return expandHomeDir(BaseDirPath)
}

// FilePath returns the location of config.yaml under baseDir.
func FilePath(baseDir string) string {
	return filepath.Join(baseDir, ConfigFileName)
}

// Load reads config.yaml from baseDir. A missing file yields the defaults.
func Load(baseDir string) (Options, error) {
	opts := DefaultOptions(baseDir)
	path := FilePath(baseDir)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.LogDebug("No config file at %s, using defaults", path)
			return opts.withDerived()
		}
		return Options{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	opts, err = opts.withDerived()
	if err != nil {
		return Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	logging.LogDebug("Loaded config from %s", path)
	return opts, nil
}

// Save writes the options to config.yaml in DataDir.
func (o Options) Save() error {
	path := FilePath(o.DataDir)
	if err := ensureConfigDir(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to a temp file then rename over the original
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// Validate checks option values.
func (o Options) Validate() error {
	switch o.Isolation {
	case IsolationInProcess, IsolationProcess:
	default:
		return fmt.Errorf("%w: isolation must be %q or %q, got %q", ErrInvalidOptions, IsolationInProcess, IsolationProcess, o.Isolation)
	}
	if o.PortSearchLimit <= 0 {
		return fmt.Errorf("%w: port_search_limit must be positive", ErrInvalidOptions)
	}
	if o.StopTimeout <= 0 {
		return fmt.Errorf("%w: stop_timeout must be positive", ErrInvalidOptions)
	}
	if o.LogMaxAgeDays < 0 {
		return fmt.Errorf("%w: log_max_age_days must not be negative", ErrInvalidOptions)
	}
	return nil
}

// DatabasePath is the workspace database location.
func (o Options) DatabasePath() string {
	return filepath.Join(o.DataDir, "liveserve.db")
}

// SocketPath is the single-instance socket location.
func (o Options) SocketPath() string {
	return filepath.Join(o.DataDir, "liveserve.sock")
}

func (o Options) withDerived() (Options, error) {
	var err error
	if o.DataDir, err = expandHomeDir(o.DataDir); err != nil {
		return Options{}, err
	}
	if o.LogDir == "" {
		o.LogDir = filepath.Join(o.DataDir, "logs")
	} else if o.LogDir, err = expandHomeDir(o.LogDir); err != nil {
		return Options{}, err
	}
	if o.DefaultDocument == "" {
		o.DefaultDocument = "index.html"
	}
	return o, nil
}
