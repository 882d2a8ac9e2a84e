package site

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHelperProcess is not a real test. It is the child site server started
// by the Subprocess tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) != 2 {
		os.Exit(2)
	}
	port, err := strconv.Atoi(args[1])
	if err != nil {
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := RunChild(ctx, Config{Root: args[0], Host: "127.0.0.1", Port: port}, os.Stdout); err != nil {
		os.Exit(1)
	}
	os.Exit(0)
}

func helperLauncher() *Subprocess {
	return &Subprocess{
		Executable: os.Args[0],
		Args: func(root string, port int) []string {
			return []string{"-test.run=TestHelperProcess", "--", root, strconv.Itoa(port)}
		},
		Env:         []string{"GO_WANT_HELPER_PROCESS=1"},
		StopTimeout: 2 * time.Second,
	}
}

func siteRoot(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "index.html"), "hello")
	return root
}

func fetch(t *testing.T, port int) string {
	t.Helper()
	resp, err := http.Get(urlFor(port, "/"))
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestInProcessLaunchServeStop(t *testing.T) {
	root := siteRoot(t)
	port := freePort(t)
	l := &InProcess{Host: "127.0.0.1"}

	h, err := l.Launch(root, port)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), h.PID())

	assert.Equal(t, EventReady, nextEvent(t, h, time.Second).Kind)
	assert.Equal(t, "hello", fetch(t, port))

	h.Stop()
	h.Stop()
	ev := nextEvent(t, h, 5*time.Second)
	assert.Equal(t, EventExited, ev.Kind)
	assert.NoError(t, ev.Err)
	requireClosed(t, h)
}

func TestInProcessBindFailureIsSynchronous(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	l := &InProcess{Host: "127.0.0.1"}
	_, err = l.Launch(siteRoot(t), port)
	assert.ErrorIs(t, err, ErrPortBindFailed)
}

func TestInProcessUnreadableRoot(t *testing.T) {
	l := &InProcess{Host: "127.0.0.1"}
	_, err := l.Launch(filepath.Join(t.TempDir(), "gone"), freePort(t))
	assert.ErrorIs(t, err, ErrRootUnreadable)
}

func TestSubprocessReadyAndStop(t *testing.T) {
	port := freePort(t)
	h, err := helperLauncher().Launch(siteRoot(t), port)
	require.NoError(t, err)
	assert.NotEqual(t, os.Getpid(), h.PID())

	require.Equal(t, EventReady, nextEvent(t, h, 10*time.Second).Kind)
	assert.Equal(t, "hello", fetch(t, port))

	h.Stop()
	assert.Equal(t, EventExited, nextEvent(t, h, 10*time.Second).Kind)
	requireClosed(t, h)
}

func TestSubprocessReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	h, err := helperLauncher().Launch(siteRoot(t), port)
	require.NoError(t, err)

	ev := nextEvent(t, h, 10*time.Second)
	require.Equal(t, EventFailed, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrPortBindFailed)
	assert.Equal(t, EventExited, nextEvent(t, h, 10*time.Second).Kind)
	requireClosed(t, h)
}

func TestSubprocessExternalKill(t *testing.T) {
	port := freePort(t)
	h, err := helperLauncher().Launch(siteRoot(t), port)
	require.NoError(t, err)
	require.Equal(t, EventReady, nextEvent(t, h, 10*time.Second).Kind)

	require.NoError(t, syscall.Kill(h.PID(), syscall.SIGKILL))

	ev := nextEvent(t, h, 10*time.Second)
	assert.Equal(t, EventExited, ev.Kind)
	assert.Error(t, ev.Err)
	requireClosed(t, h)
}

func TestSubprocessMissingExecutable(t *testing.T) {
	l := &Subprocess{Executable: filepath.Join(t.TempDir(), "no-such-binary")}
	_, err := l.Launch(t.TempDir(), 8080)
	assert.ErrorIs(t, err, ErrSpawnFailed)
}

func TestRunChildReportsRootError(t *testing.T) {
	var out bytes.Buffer
	err := RunChild(context.Background(), Config{Root: filepath.Join(t.TempDir(), "x"), Host: "127.0.0.1", Port: freePort(t)}, &out)
	require.ErrorIs(t, err, ErrRootUnreadable)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(out.Bytes(), &msg))
	assert.Equal(t, StatusError, msg.Status)
	assert.Equal(t, ReasonRoot, msg.Reason)
	assert.ErrorIs(t, msg.Err(), ErrRootUnreadable)
}

func TestStatusMessageErr(t *testing.T) {
	assert.NoError(t, StatusMessage{Status: StatusStarted}.Err())
	assert.ErrorIs(t, StatusMessage{Status: StatusError, Reason: ReasonPortBind}.Err(), ErrPortBindFailed)
	assert.ErrorIs(t, StatusMessage{Status: StatusError, Reason: "weird"}.Err(), ErrSpawnFailed)
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := &tailBuffer{limit: 8}

	n, err := tb.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abc", tb.String())

	_, _ = tb.Write([]byte("defgh"))
	assert.Equal(t, "abcdefgh", tb.String())

	_, _ = tb.Write([]byte("ij"))
	assert.Equal(t, "cdefghij", tb.String())

	n, _ = tb.Write([]byte("0123456789"))
	assert.Equal(t, 10, n)
	assert.Equal(t, "23456789", tb.String())

	for i := 0; i < 1000; i++ {
		_, _ = tb.Write([]byte("reload\n"))
	}
	assert.Len(t, tb.String(), 8)
}
