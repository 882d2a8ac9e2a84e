package site

import (
	"context"
	"os"
	"sync"

	"github.com/xlttj/liveserve/pkg/logging"
)

// InProcess runs every site server as a goroutine of the current process.
type InProcess struct {
	Host            string
	DefaultDocument string
	LiveReload      bool
}

type inProcessHandle struct {
	events   chan Event
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// Launch binds the port synchronously, so a taken port is returned as
// ErrPortBindFailed instead of an event.
func (l *InProcess) Launch(root string, port int) (Handle, error) {
	cfg := Config{
		Root:            root,
		Host:            l.Host,
		Port:            port,
		DefaultDocument: l.DefaultDocument,
		LiveReload:      l.LiveReload,
	}

	srv, err := NewServer(cfg)
	if err != nil {
		return nil, err
	}
	ln, err := Listen(cfg)
	if err != nil {
		srv.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &inProcessHandle{
		events: make(chan Event, 2),
		cancel: cancel,
	}
	h.events <- Event{Kind: EventReady}

	go func() {
		defer close(h.events)
		err := srv.serve(ctx, ln)
		if err != nil {
			logging.LogError("Site server for %s stopped: %v", root, err)
		}
		h.events <- Event{Kind: EventExited, Err: err}
	}()
	return h, nil
}

func (h *inProcessHandle) Events() <-chan Event {
	return h.events
}

func (h *inProcessHandle) Stop() {
	h.stopOnce.Do(h.cancel)
}

func (h *inProcessHandle) PID() int {
	return os.Getpid()
}
