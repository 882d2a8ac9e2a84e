package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/site"
)

// SiteCmd is the child process entry point in process isolation mode. Status
// goes to stdout as JSON lines and logs go to stderr, which the parent keeps.
type SiteCmd struct {
	Root            string `required:"" type:"path" help:"Folder to serve"`
	Port            int    `required:"" help:"Port to bind"`
	Host            string `default:"0.0.0.0" help:"Interface to bind"`
	DefaultDocument string `name:"default-document" default:"index.html" help:"File served for directory requests"`
	LiveReload      bool   `name:"live-reload" negatable:"" default:"true" help:"Inject the live reload script"`
}

func (s *SiteCmd) Run(cli *CLI) error {
	logging.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return site.RunChild(ctx, s.config(), cli.out())
}

func (s *SiteCmd) config() site.Config {
	return site.Config{
		Root:            s.Root,
		Host:            s.Host,
		Port:            s.Port,
		DefaultDocument: s.DefaultDocument,
		LiveReload:      s.LiveReload,
	}
}
