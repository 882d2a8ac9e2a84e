package site

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func urlFor(port int, path string) string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
}

func nextEvent(t *testing.T, h Handle, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev, ok := <-h.Events():
		require.True(t, ok, "events channel closed early")
		return ev
	case <-time.After(timeout):
		t.Fatalf("no event within %s", timeout)
		return Event{}
	}
}

func requireClosed(t *testing.T, h Handle) {
	t.Helper()
	select {
	case ev, ok := <-h.Events():
		require.False(t, ok, "unexpected event %v after exit", ev.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("events channel never closed")
	}
}
