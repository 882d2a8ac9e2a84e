package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/xlttj/liveserve/pkg/config"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/workspace"

	"gopkg.in/yaml.v3"
)

// SettingsCmd groups the settings subcommands
type SettingsCmd struct {
	Get SettingsGetCmd `cmd:"" default:"withargs" help:"Print one setting, or all of them"`
	Set SettingsSetCmd `cmd:"" help:"Change a setting"`
}

type SettingsGetCmd struct {
	Key string `arg:"" optional:"" name:"KEY" help:"language, theme or defaultPort"`
}

func (s *SettingsGetCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	settings, err := svc.Store().Settings()
	if err != nil {
		return err
	}
	values := map[string]string{
		workspace.SettingLanguage:    settings.Language,
		workspace.SettingTheme:       settings.Theme,
		workspace.SettingDefaultPort: strconv.Itoa(settings.DefaultPort),
	}

	out := cli.out()
	if s.Key == "" {
		for _, key := range []string{workspace.SettingLanguage, workspace.SettingTheme, workspace.SettingDefaultPort} {
			fmt.Fprintf(out, "%s=%s\n", key, values[key])
		}
		return nil
	}
	value, ok := values[s.Key]
	if !ok {
		return fmt.Errorf("unknown setting %q", s.Key)
	}
	fmt.Fprintln(out, value)
	return nil
}

type SettingsSetCmd struct {
	Key   string `arg:"" name:"KEY" enum:"language,theme,defaultPort" help:"One of: ${enum}"`
	Value string `arg:"" name:"VALUE"`
}

func (s *SettingsSetCmd) Run(cli *CLI) error {
	svc, opts, err := cli.open()
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	if s.Key == workspace.SettingDefaultPort {
		port, convErr := strconv.Atoi(s.Value)
		if convErr != nil {
			return fmt.Errorf("defaultPort must be a number: %w", convErr)
		}
		err = svc.SetDefaultPort(port)
	} else {
		err = svc.Store().SetSetting(s.Key, s.Value)
	}
	if err != nil {
		return err
	}
	printSuccess(cli.out(), "%s set to %s", s.Key, s.Value)
	return nil
}

// LogsCmd prints the tail of the log file
type LogsCmd struct {
	Lines int `short:"n" default:"50" help:"Number of lines"`
}

func (l *LogsCmd) Run(cli *CLI) error {
	opts, err := cli.setup()
	if err != nil {
		return err
	}
	lines, err := tailLines(logging.FilePath(opts.LogDir), l.Lines)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			printInfo(cli.out(), "No log file yet.")
			return nil
		}
		return err
	}
	out := cli.out()
	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	return nil
}

// tailLines returns the last n lines of path
func tailLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}
	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			copy(ring, ring[1:])
			ring = ring[:n-1]
		}
		ring = append(ring, scanner.Text())
	}
	return ring, scanner.Err()
}

// ConfigCmd groups the config.yaml subcommands
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write config.yaml with the default values"`
	Show ConfigShowCmd `cmd:"" help:"Print the effective configuration"`
}

type ConfigInitCmd struct {
	Force bool `short:"f" help:"Overwrite an existing config.yaml"`
}

func (c *ConfigInitCmd) Run(cli *CLI) error {
	base, err := cli.baseDir()
	if err != nil {
		return err
	}
	path := config.FilePath(base)
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.DefaultOptions(base).Save(); err != nil {
		return err
	}
	printSuccess(cli.out(), "Wrote %s", path)
	return nil
}

type ConfigShowCmd struct{}

func (c *ConfigShowCmd) Run(cli *CLI) error {
	opts, err := cli.setup()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(opts)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = cli.out().Write(data)
	return err
}
