package main

import (
	"github.com/xlttj/liveserve/pkg/cmd"
	"github.com/xlttj/liveserve/pkg/logging"

	"github.com/alecthomas/kong"
	"go.uber.org/automaxprocs/maxprocs"
)

// Version holds the version string, set at build time
var Version = "no-version"

func main() {
	if _, err := maxprocs.Set(maxprocs.Logger(logging.LogDebug)); err != nil {
		logging.LogWarn("Failed to set GOMAXPROCS: %v", err)
	}

	cli := cmd.CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("liveserve"),
		kong.Description(cmd.Description),
		kong.UsageOnError(),
		kong.Vars{"version": Version},
	)
	err := ctx.Run(&cli)
	_ = logging.Close()
	ctx.FatalIfErrorf(err)
}
