package site

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/xlttj/liveserve/pkg/logging"
)

// Child readiness statuses
const (
	StatusStarted = "started"
	StatusError   = "error"
)

// Failure reasons carried in a StatusMessage
const (
	ReasonPortBind = "port_bind"
	ReasonRoot     = "root"
	ReasonOther    = "other"
)

// DefaultStopTimeout is how long a child gets between SIGTERM and SIGKILL.
const DefaultStopTimeout = 5 * time.Second

// stderrTailSize bounds the child stderr kept for failure detail
const stderrTailSize = 4096

// StatusMessage is the single JSON line a child prints on stdout once it has
// either bound its port or given up.
type StatusMessage struct {
	Status string `json:"status"`
	Port   int    `json:"port,omitempty"`
	Root   string `json:"root,omitempty"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Err converts an error status back into an error wrapping the matching sentinel.
func (m StatusMessage) Err() error {
	if m.Status != StatusError {
		return nil
	}
	switch m.Reason {
	case ReasonPortBind:
		return fmt.Errorf("%w: %s", ErrPortBindFailed, m.Error)
	case ReasonRoot:
		return fmt.Errorf("%w: %s", ErrRootUnreadable, m.Error)
	default:
		return fmt.Errorf("%w: %s", ErrSpawnFailed, m.Error)
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrPortBindFailed):
		return ReasonPortBind
	case errors.Is(err, ErrRootUnreadable):
		return ReasonRoot
	default:
		return ReasonOther
	}
}

// RunChild is the entrypoint of a child site server. It serves cfg until ctx
// is done and reports readiness or failure on out.
func RunChild(ctx context.Context, cfg Config, out io.Writer) error {
	enc := json.NewEncoder(out)
	ready := false

	err := Serve(ctx, cfg, func(addr net.Addr) {
		ready = true
		if encErr := enc.Encode(StatusMessage{Status: StatusStarted, Port: cfg.Port, Root: cfg.Root}); encErr != nil {
			logging.LogError("Failed to report readiness: %v", encErr)
		}
	})
	if err != nil && !ready {
		_ = enc.Encode(StatusMessage{Status: StatusError, Error: err.Error(), Reason: reasonFor(err)})
	}
	return err
}

// Subprocess runs every site server as a child process of Executable.
type Subprocess struct {
	// Executable defaults to the running binary
	Executable string
	// Args builds the child's argument list; defaults to "site --root R --port P"
	Args        func(root string, port int) []string
	Env         []string
	StopTimeout time.Duration
}

// ChildArgs is the default argument list for a child site server.
func ChildArgs(root string, port int) []string {
	return []string{"site", "--root", root, "--port", strconv.Itoa(port)}
}

type processHandle struct {
	cmd         *exec.Cmd
	events      chan Event
	exited      chan struct{}
	stopTimeout time.Duration
	stopOnce    sync.Once
}

// Launch starts the child and returns at once; readiness arrives as an event.
func (l *Subprocess) Launch(root string, port int) (Handle, error) {
	exe := l.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
		}
	}
	argsFn := l.Args
	if argsFn == nil {
		argsFn = ChildArgs
	}
	timeout := l.StopTimeout
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}

	cmd := exec.Command(exe, argsFn(root, port)...)
	cmd.SysProcAttr = sysProcAttr()
	cmd.Env = append(os.Environ(), l.Env...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		logging.LogError("Failed to start site server for %s: %v", root, err)
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}
	logging.LogDebug("Started site server PID %d for %s on port %d", cmd.Process.Pid, root, port)

	h := &processHandle{
		cmd:         cmd,
		events:      make(chan Event, 2),
		exited:      make(chan struct{}),
		stopTimeout: timeout,
	}
	go h.watch(stdout, stderr)
	return h, nil
}

// watch reads the child's status line, then waits for it to exit.
func (h *processHandle) watch(stdout io.Reader, stderr *tailBuffer) {
	defer close(h.events)

	reported := false
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		var msg StatusMessage
		if len(line) == 0 || line[0] != '{' || json.Unmarshal(line, &msg) != nil {
			logging.LogDebug("site[%d]: %s", h.PID(), line)
			continue
		}
		if reported {
			continue
		}
		switch msg.Status {
		case StatusStarted:
			reported = true
			h.events <- Event{Kind: EventReady}
		case StatusError:
			reported = true
			h.events <- Event{Kind: EventFailed, Err: msg.Err()}
		}
	}
	// Drain so Wait does not block on a full pipe
	_, _ = io.Copy(io.Discard, stdout)

	waitErr := h.cmd.Wait()
	close(h.exited)

	if !reported {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" && waitErr != nil {
			detail = waitErr.Error()
		}
		h.events <- Event{Kind: EventFailed, Err: fmt.Errorf("%w: exited before ready: %s", ErrSpawnFailed, detail)}
	}
	if waitErr != nil {
		logging.LogDebug("Site server PID %d exited: %v", h.PID(), waitErr)
	}
	h.events <- Event{Kind: EventExited, Err: waitErr}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(p)
	if len(p) >= t.limit {
		p = p[len(p)-t.limit:]
		t.buf = t.buf[:0]
	} else if over := len(t.buf) + len(p) - t.limit; over > 0 {
		t.buf = t.buf[:copy(t.buf, t.buf[over:])]
	}
	t.buf = append(t.buf, p...)
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func (h *processHandle) Events() <-chan Event {
	return h.events
}

// Stop sends SIGTERM and escalates to SIGKILL after the stop timeout.
func (h *processHandle) Stop() {
	h.stopOnce.Do(func() {
		go h.terminate()
	})
}

func (h *processHandle) terminate() {
	pid := h.PID()
	if err := h.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		logging.LogDebug("SIGTERM to PID %d failed: %v", pid, err)
	}

	select {
	case <-h.exited:
	case <-time.After(h.stopTimeout):
		logging.LogWarn("Site server PID %d ignored SIGTERM, killing", pid)
		if err := h.cmd.Process.Kill(); err != nil {
			logging.LogError("Failed to kill PID %d: %v", pid, err)
		}
	}
}

func (h *processHandle) PID() int {
	return h.cmd.Process.Pid
}
