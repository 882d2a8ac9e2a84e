// Package instance keeps liveserve to one interactive instance per data
// directory. A second launch forwards its folder arguments to the first.
//
// The lock is a bound unix domain socket. Binding is atomic, and a socket file
// left behind by a killed process is detected by a refused connection and
// replaced.
package instance

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/xlttj/liveserve/pkg/logging"
)

// Sentinel error when another live instance holds the socket
var ErrAlreadyRunning = errors.New("another liveserve instance is running")

const (
	dialTimeout = time.Second
	ioTimeout   = 5 * time.Second
)

// Request is what a second instance sends to the first.
type Request struct {
	Paths []string `json:"paths"`
}

// Reply is the first instance's answer.
type Reply struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Lock is a held single-instance lock. Keep it open for the life of the process.
type Lock struct {
	listener  net.Listener
	path      string
	closeOnce sync.Once
	closed    chan struct{}
}

// Acquire binds socketPath. A stale socket is removed and bound again;
// a live one yields ErrAlreadyRunning.
func Acquire(socketPath string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		logging.LogDebug("Instance lock bind failed: %v", err)
		if !isStaleSocket(socketPath) {
			return nil, fmt.Errorf("%w (socket %s)", ErrAlreadyRunning, socketPath)
		}

		logging.LogInfo("Removing stale instance socket %s", socketPath)
		if err := os.Remove(socketPath); err != nil {
			return nil, fmt.Errorf("failed to remove stale socket: %w", err)
		}
		listener, err = net.Listen("unix", socketPath)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock after removing stale socket: %w", err)
		}
	}

	logging.LogDebug("Acquired instance lock at %s", socketPath)
	return &Lock{listener: listener, path: socketPath, closed: make(chan struct{})}, nil
}

// isStaleSocket reports whether socketPath exists but nobody is listening.
func isStaleSocket(socketPath string) bool {
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return false
	}
	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err == nil {
		conn.Close()
		return false
	}
	return isConnectionRefused(err)
}

func isConnectionRefused(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(err.Error(), "connection refused")
}

// Path is the socket location.
func (l *Lock) Path() string {
	return l.path
}

// Serve handles forwarded requests until the lock is closed.
func (l *Lock) Serve(handler func(Request) Reply) error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-l.closed:
				return nil
			default:
			}
			return fmt.Errorf("instance socket accept failed: %w", err)
		}
		go l.handle(conn, handler)
	}
}

func (l *Lock) handle(conn net.Conn, handler func(Request) Reply) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		// Liveness probes connect and hang up without a request
		return
	}

	var req Request
	var reply Reply
	if err := json.Unmarshal(line, &req); err != nil {
		reply = Reply{Error: fmt.Sprintf("malformed request: %v", err)}
	} else {
		logging.LogInfo("Received %d path(s) from another instance", len(req.Paths))
		reply = handler(req)
	}

	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		logging.LogDebug("Failed to answer forwarded request: %v", err)
	}
}

// Close releases the lock and removes the socket file.
func (l *Lock) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.listener.Close()
		// Go removes unix socket files on close; this covers listeners created elsewhere
		_ = os.Remove(l.path)
	})
	return err
}

// Forward sends paths to the instance holding socketPath. Relative paths are
// resolved against the current directory first.
func Forward(socketPath string, paths []string) (Reply, error) {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if !strings.HasPrefix(p, "-") {
			if a, err := filepath.Abs(p); err == nil {
				p = a
			}
		}
		abs = append(abs, p)
	}

	conn, err := net.DialTimeout("unix", socketPath, dialTimeout)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to reach running instance: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(Request{Paths: abs}); err != nil {
		return Reply{}, fmt.Errorf("failed to send request: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return Reply{}, fmt.Errorf("failed to read reply: %w", err)
	}
	if reply.Error != "" {
		return reply, errors.New(reply.Error)
	}
	return reply, nil
}
