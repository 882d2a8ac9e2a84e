package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/xlttj/liveserve/pkg/app"
	"github.com/xlttj/liveserve/pkg/instance"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/supervisor"
	"github.com/xlttj/liveserve/pkg/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// UICmd runs the dashboard
type UICmd struct {
	Paths []string `arg:"" optional:"" name:"PATH" help:"Folder to serve; only the first existing one is used"`
}

// Run starts the dashboard, or hands the paths to the dashboard that is
// already running for this application directory.
func (u *UICmd) Run(cli *CLI) error {
	opts, err := cli.setup()
	if err != nil {
		return err
	}

	lock, err := instance.Acquire(opts.SocketPath())
	if errors.Is(err, instance.ErrAlreadyRunning) {
		reply, err := instance.Forward(opts.SocketPath(), u.Paths)
		if err != nil {
			return err
		}
		printSuccess(cli.out(), "%s", reply.Message)
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Close()

	svc, err := app.Open(opts)
	if err != nil {
		return err
	}
	defer closeService(svc, opts)

	go func() {
		if err := lock.Serve(forwardHandler(svc)); err != nil {
			logging.LogError("Instance socket stopped: %v", err)
		}
	}()

	if _, _, err := svc.HandleArgs(u.Paths); err != nil {
		logging.LogError("Failed to serve command line folder: %v", err)
	}

	cwd, _ := os.Getwd()
	model := ui.NewModel(svc, cwd)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	model.Cleanup()
	return err
}

// forwardHandler serves folders sent by a second launch
func forwardHandler(svc *app.Service) func(instance.Request) instance.Reply {
	return func(req instance.Request) instance.Reply {
		rec, ok, err := svc.HandleArgs(req.Paths)
		if err != nil {
			return instance.Reply{Error: err.Error()}
		}
		if !ok {
			return instance.Reply{OK: true, Message: "liveserve is already running"}
		}
		if rec.Status == supervisor.StatusError {
			return instance.Reply{Error: fmt.Sprintf("failed to serve %s: %s", rec.Root, rec.Error)}
		}
		return instance.Reply{OK: true, Message: fmt.Sprintf("Serving %s at %s", rec.Root, rec.URL())}
	}
}
