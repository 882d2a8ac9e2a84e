// Package cmd holds the liveserve command line.
package cmd

import (
	"context"
	"io"
	"os"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/config"
	"github.com/xlttj/liveserve/pkg/logging"

	"github.com/alecthomas/kong"
)

// CLI is the root of the command tree
type CLI struct {
	// global options
	Version   kong.VersionFlag `name:"version" short:"V" help:"Print version information and quit"`
	Home      string           `name:"home" env:"LIVESERVE_HOME" help:"Application directory (default ~/.liveserve)"`
	LogStderr bool             `name:"log-stderr" help:"Write log lines to stderr instead of the log file"`

	// subcommands
	UI        UICmd        `cmd:"" name:"ui" default:"withargs" help:"Open the dashboard, serving the first folder given"`
	Serve     ServeCmd     `cmd:"" help:"Serve folders without the dashboard until interrupted"`
	Site      SiteCmd      `cmd:"" hidden:"" help:"Serve one folder and report status as JSON lines"`
	History   HistoryCmd   `cmd:"" help:"List or edit recently served folders"`
	Favorites FavoritesCmd `cmd:"" aliases:"fav" help:"List favorite folders"`
	Meta      MetaCmd      `cmd:"" help:"Show or edit a folder's alias and favorite flag"`
	Settings  SettingsCmd  `cmd:"" help:"Show or change user settings"`
	Logs      LogsCmd      `cmd:"" help:"Print the end of the log file"`
	Config    ConfigCmd    `cmd:"" help:"Manage config.yaml"`

	Out io.Writer `kong:"-"`
	In  io.Reader `kong:"-"`
}

func (c *CLI) out() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *CLI) in() io.Reader {
	if c.In == nil {
		return os.Stdin
	}
	return c.In
}

// baseDir is --home, LIVESERVE_HOME or ~/.liveserve
func (c *CLI) baseDir() (string, error) {
	if c.Home != "" {
		return config.ExpandHome(c.Home)
	}
	return config.BaseDir()
}

// setup loads config.yaml and routes logging to the log directory
func (c *CLI) setup() (config.Options, error) {
	base, err := c.baseDir()
	if err != nil {
		return config.Options{}, err
	}
	opts, err := config.Load(base)
	if err != nil {
		return config.Options{}, err
	}
	if c.LogStderr {
		logging.SetOutput(os.Stderr)
		return opts, nil
	}
	if err := logging.Init(opts.LogDir, opts.LogMaxAgeDays); err != nil {
		return config.Options{}, err
	}
	return opts, nil
}

// open is setup plus the application service
func (c *CLI) open() (*app.Service, config.Options, error) {
	opts, err := c.setup()
	if err != nil {
		return nil, config.Options{}, err
	}
	svc, err := app.Open(opts)
	if err != nil {
		return nil, config.Options{}, err
	}
	return svc, opts, nil
}

// closeService stops every server, giving them StopTimeout to exit
func closeService(svc *app.Service, opts config.Options) {
	ctx, cancel := context.WithTimeout(context.Background(), opts.StopTimeout)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		logging.LogError("Shutdown did not complete cleanly: %v", err)
	}
}
