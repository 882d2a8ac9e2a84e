// Package site serves one folder over HTTP and reports the lifecycle of that
// server to its owner, either as a goroutine in this process or as a child
// process speaking a one-line JSON readiness protocol.
package site

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// Sentinel error for a port that could not be bound
var ErrPortBindFailed = errors.New("port bind failed")

// Sentinel error for a root folder that cannot be read
var ErrRootUnreadable = errors.New("root folder unreadable")

// Sentinel error for a site server that could not be spawned
var ErrSpawnFailed = errors.New("site server spawn failed")

// ReloadPath is where injected pages connect for live reload notifications.
const ReloadPath = "/__liveserve/ws"

// Config describes one site server.
type Config struct {
	Root            string
	Host            string
	Port            int
	DefaultDocument string
	LiveReload      bool
}

// Addr returns the host:port the server binds.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// EventKind is a lifecycle notification from a running site server.
type EventKind int

const (
	// EventReady means the server is accepting connections
	EventReady EventKind = iota
	// EventFailed means startup failed; Err says why
	EventFailed
	// EventExited means the server is gone, for whatever reason
	EventExited
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventFailed:
		return "failed"
	case EventExited:
		return "exited"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered on Handle.Events.
type Event struct {
	Kind EventKind
	Err  error
}

// Handle is the owner's view of one launched site server. Events delivers at
// most one of EventReady or EventFailed, then exactly one EventExited, then
// the channel is closed.
type Handle interface {
	Events() <-chan Event
	// Stop asks the server to terminate and returns without waiting.
	Stop()
	PID() int
}

// Launcher starts site servers. A returned error wrapping ErrPortBindFailed
// means the port was taken and the caller may retry with another one.
type Launcher interface {
	Launch(root string, port int) (Handle, error)
}
