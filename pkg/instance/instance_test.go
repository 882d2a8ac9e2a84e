package instance

import (
	"net"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// socketPath returns a short path; unix socket paths are limited to ~100 bytes.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "ls")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "i.sock")
}

func TestAcquireAndSecondInstance(t *testing.T) {
	path := socketPath(t)

	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Close()

	_, err = Acquire(path)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestAcquireReplacesStaleSocket(t *testing.T) {
	path := socketPath(t)

	// Leave a socket file behind with nobody listening
	fd, err := syscall.Socket(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, syscall.Bind(fd, &syscall.SockaddrUnix{Name: path}))
	require.NoError(t, syscall.Close(fd))
	_, err = os.Stat(path)
	require.NoError(t, err)

	lock, err := Acquire(path)
	require.NoError(t, err)
	lock.Close()
}

func TestForwardReachesHandler(t *testing.T) {
	path := socketPath(t)
	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Close()

	got := make(chan Request, 1)
	go lock.Serve(func(req Request) Reply {
		got <- req
		return Reply{OK: true, Message: "serving"}
	})

	dir := t.TempDir()
	reply, err := Forward(path, []string{dir, "--flag"})
	require.NoError(t, err)
	assert.True(t, reply.OK)
	assert.Equal(t, "serving", reply.Message)

	select {
	case req := <-got:
		assert.Equal(t, []string{dir, "--flag"}, req.Paths)
	case <-time.After(2 * time.Second):
		t.Fatal("handler not called")
	}
}

func TestForwardSurfacesHandlerError(t *testing.T) {
	path := socketPath(t)
	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Close()
	go lock.Serve(func(Request) Reply { return Reply{Error: "no directory given"} })

	_, err = Forward(path, nil)
	assert.EqualError(t, err, "no directory given")
}

func TestForwardWithoutInstance(t *testing.T) {
	_, err := Forward(socketPath(t), []string{"."})
	assert.Error(t, err)
}

func TestLivenessProbeDoesNotReachHandler(t *testing.T) {
	path := socketPath(t)
	lock, err := Acquire(path)
	require.NoError(t, err)
	defer lock.Close()

	called := make(chan struct{}, 1)
	go lock.Serve(func(Request) Reply {
		called <- struct{}{}
		return Reply{OK: true}
	})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	conn.Close()

	select {
	case <-called:
		t.Fatal("handler called for an empty connection")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseStopsServe(t *testing.T) {
	path := socketPath(t)
	lock, err := Acquire(path)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- lock.Serve(func(Request) Reply { return Reply{OK: true} }) }()

	require.NoError(t, lock.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return")
	}

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	again, err := Acquire(path)
	require.NoError(t, err)
	again.Close()
}
