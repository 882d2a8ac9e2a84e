package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xlttj/liveserve/pkg/broadcast"
	"github.com/xlttj/liveserve/pkg/ports"
	"github.com/xlttj/liveserve/pkg/site"
)

func newTestSupervisor(l site.Launcher) (*Supervisor, *recordingPublisher) {
	pub := &recordingPublisher{}
	return New(Options{Launcher: l, Allocator: freeAllocator(), Publisher: pub}), pub
}

func waitStatus(t *testing.T, s *Supervisor, root string, want Status) ServerRecord {
	t.Helper()
	var rec ServerRecord
	require.Eventually(t, func() bool {
		var ok bool
		rec, ok = s.Get(root)
		return ok && rec.Status == want
	}, 5*time.Second, 5*time.Millisecond, "waiting for %s to be %s", root, want)
	return rec
}

func waitGone(t *testing.T, s *Supervisor, root string) {
	t.Helper()
	require.Eventually(t, func() bool {
		_, ok := s.Get(root)
		return !ok
	}, 5*time.Second, 5*time.Millisecond, "waiting for %s to disappear", root)
}

func TestStartIsIdempotent(t *testing.T) {
	l := newFakeLauncher()
	s, _ := newTestSupervisor(l)

	first, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	waitStatus(t, s, "/site/A", StatusRunning)

	second, err := s.Start("/site/A/", 8080)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Port, second.Port)
	assert.Equal(t, 1, l.count())
	assert.Len(t, s.GetAll(), 1)
}

func TestStartReturnsStartingRecord(t *testing.T) {
	l := newFakeLauncher()
	l.autoReady = false
	s, _ := newTestSupervisor(l)

	rec, err := s.Start("/site/A", 0)
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, rec.Status)
	assert.Equal(t, ports.DefaultPort, rec.Port)
	assert.Equal(t, "/site/A", rec.Root)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1001, rec.PID)

	l.last().emit(site.Event{Kind: site.EventReady})
	waitStatus(t, s, "/site/A", StatusRunning)
}

func TestStopUnknownIsNoop(t *testing.T) {
	s, pub := newTestSupervisor(newFakeLauncher())
	assert.NoError(t, s.Stop("/never/started"))
	assert.Empty(t, pub.all())
}

func TestInvalidPath(t *testing.T) {
	s, _ := newTestSupervisor(newFakeLauncher())
	_, err := s.Start("  ", 8080)
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, s.Stop(""), ErrInvalidPath)
}

func TestNormalizeRelativePath(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	got, err := Normalize("./a/../b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "b"), got)
}

func TestStopThenStartAvoidsOtherRunningPorts(t *testing.T) {
	l := newFakeLauncher()
	s, _ := newTestSupervisor(l)

	a, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	b, err := s.Start("/site/B", 8080)
	require.NoError(t, err)
	assert.Equal(t, 8080, a.Port)
	assert.Equal(t, 8081, b.Port)

	require.NoError(t, s.Stop("/site/A"))
	_, ok := s.Get("/site/A")
	assert.False(t, ok)
	assert.Equal(t, 1, l.handles[0].stops())

	c, err := s.Start("/site/C", 8081)
	require.NoError(t, err)
	assert.NotEqual(t, b.Port, c.Port)

	a2, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, a2.ID)
	assert.NotEqual(t, b.Port, a2.Port)
	assert.NotEqual(t, c.Port, a2.Port)
}

func TestPortHeldUntilExit(t *testing.T) {
	l := newFakeLauncher()
	l.exitOnStop = false
	s, _ := newTestSupervisor(l)

	a, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	waitStatus(t, s, "/site/A", StatusRunning)
	require.NoError(t, s.Stop("/site/A"))

	// Old server has not exited yet, so its port is still reserved
	b, err := s.Start("/site/B", 8080)
	require.NoError(t, err)
	assert.NotEqual(t, a.Port, b.Port)

	l.handles[0].emit(site.Event{Kind: site.EventExited})
	require.Eventually(t, func() bool {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		_, held := s.ports[a.Port]
		return !held
	}, 5*time.Second, 5*time.Millisecond)

	c, err := s.Start("/site/C", 8080)
	require.NoError(t, err)
	assert.Equal(t, a.Port, c.Port)
}

func TestConcurrentStartsGetDistinctPorts(t *testing.T) {
	l := newFakeLauncher()
	s, _ := newTestSupervisor(l)

	var wg sync.WaitGroup
	results := make([]ServerRecord, 2)
	for i, root := range []string{"/site/A", "/site/B"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Start(root, 8080)
			assert.NoError(t, err)
			results[i] = rec
		}()
	}
	wg.Wait()

	waitStatus(t, s, "/site/A", StatusRunning)
	waitStatus(t, s, "/site/B", StatusRunning)
	assert.ElementsMatch(t, []int{8080, 8081}, []int{results[0].Port, results[1].Port})
}

func TestConcurrentStartsWithRealServers(t *testing.T) {
	base := freeBasePort(t)
	l := &site.InProcess{Host: "127.0.0.1"}
	s := New(Options{Launcher: l, Allocator: ports.NewAllocator("127.0.0.1", 20)})
	defer s.StopAll(context.Background())

	rootA, rootB := t.TempDir(), t.TempDir()
	var wg sync.WaitGroup
	for _, root := range []string{rootA, rootB} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Start(root, base)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	a := waitStatus(t, s, rootA, StatusRunning)
	b := waitStatus(t, s, rootB, StatusRunning)
	assert.NotEqual(t, a.Port, b.Port)
	lo, hi := a.Port, b.Port
	if lo > hi {
		lo, hi = hi, lo
	}
	assert.Equal(t, base, lo)
	assert.GreaterOrEqual(t, hi, base+1)
}

func TestUnexpectedExitRemovesRecord(t *testing.T) {
	l := newFakeLauncher()
	s, pub := newTestSupervisor(l)

	_, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	waitStatus(t, s, "/site/A", StatusRunning)

	l.last().emit(site.Event{Kind: site.EventExited, Err: errors.New("signal: killed")})
	waitGone(t, s, "/site/A")

	snaps := pub.all()
	require.NotEmpty(t, snaps)
	require.Eventually(t, func() bool {
		snaps := pub.all()
		return len(snaps[len(snaps)-1]) == 0
	}, 5*time.Second, 5*time.Millisecond)
}

func TestLaunchErrorBecomesErrorRecord(t *testing.T) {
	l := newFakeLauncher()
	l.err = fmt.Errorf("%w: permission denied", site.ErrRootUnreadable)
	s, _ := newTestSupervisor(l)

	rec, err := s.Start("/site/locked", 8080)
	require.NoError(t, err)
	assert.Equal(t, StatusError, rec.Status)
	assert.Contains(t, rec.Error, "permission denied")

	got, ok := s.Get("/site/locked")
	require.True(t, ok)
	assert.Equal(t, StatusError, got.Status)

	// Port is free again
	s.mutex.Lock()
	assert.Empty(t, s.ports)
	s.mutex.Unlock()

	// A new start replaces the failed record
	l.mu.Lock()
	l.err = nil
	l.mu.Unlock()
	rec2, err := s.Start("/site/locked", 8080)
	require.NoError(t, err)
	assert.NotEqual(t, rec.ID, rec2.ID)
	waitStatus(t, s, "/site/locked", StatusRunning)

	require.NoError(t, s.Stop("/site/locked"))
	_, ok = s.Get("/site/locked")
	assert.False(t, ok)
}

func TestFailedEventThenExitKeepsErrorRecord(t *testing.T) {
	l := newFakeLauncher()
	l.autoReady = false
	s, _ := newTestSupervisor(l)

	_, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	h := l.last()
	h.emit(site.Event{Kind: site.EventFailed, Err: fmt.Errorf("%w: in use", site.ErrPortBindFailed)})
	h.emit(site.Event{Kind: site.EventExited})

	rec := waitStatus(t, s, "/site/A", StatusError)
	assert.Contains(t, rec.Error, "in use")

	require.NoError(t, s.Stop("/site/A"))
	_, ok := s.Get("/site/A")
	assert.False(t, ok)
}

func TestExitWhileStartingIsError(t *testing.T) {
	l := newFakeLauncher()
	l.autoReady = false
	s, _ := newTestSupervisor(l)

	_, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	l.last().emit(site.Event{Kind: site.EventExited, Err: errors.New("exit status 1")})

	rec := waitStatus(t, s, "/site/A", StatusError)
	assert.Equal(t, "exit status 1", rec.Error)
}

func TestStopWhileStartingTearsDown(t *testing.T) {
	l := newFakeLauncher()
	l.autoReady = false
	l.exitOnStop = false
	s, _ := newTestSupervisor(l)

	_, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	h := l.last()
	require.NoError(t, s.Stop("/site/A"))
	assert.Equal(t, 1, h.stops())

	h.emit(site.Event{Kind: site.EventReady})
	h.emit(site.Event{Kind: site.EventExited})

	time.Sleep(20 * time.Millisecond)
	_, ok := s.Get("/site/A")
	assert.False(t, ok)
}

func TestBindRaceRetriesWithNextPort(t *testing.T) {
	l := newFakeLauncher()
	l.bindFail[8080] = true
	s, _ := newTestSupervisor(l)

	rec, err := s.Start("/site/A", 8080)
	require.NoError(t, err)
	assert.Equal(t, 8081, rec.Port)
	assert.Equal(t, 2, l.count())
}

func TestBindRaceGivesUp(t *testing.T) {
	l := newFakeLauncher()
	for p := 8080; p < 8090; p++ {
		l.bindFail[p] = true
	}
	s, _ := newTestSupervisor(l)

	_, err := s.Start("/site/A", 8080)
	assert.ErrorIs(t, err, site.ErrPortBindFailed)
	assert.Equal(t, DefaultBindRetries, l.count())
	_, ok := s.Get("/site/A")
	assert.False(t, ok)
}

func TestNoPortAvailable(t *testing.T) {
	l := newFakeLauncher()
	alloc := &ports.Allocator{Limit: 3, Probe: func(string, int) bool { return false }}
	s := New(Options{Launcher: l, Allocator: alloc})

	_, err := s.Start("/site/A", 8080)
	assert.ErrorIs(t, err, ports.ErrNoPortAvailable)
	assert.Equal(t, 0, l.count())
	assert.Empty(t, s.GetAll())
}

func TestSnapshotsReachBroadcaster(t *testing.T) {
	l := newFakeLauncher()
	b := broadcast.New[[]ServerRecord]()
	s := New(Options{Launcher: l, Allocator: freeAllocator(), Publisher: b})

	ch, unsub := b.Subscribe()
	defer unsub()

	_, err := s.Start("/site/A", 8080)
	require.NoError(t, err)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-ch:
			if len(snap) == 1 && snap[0].Status == StatusRunning {
				return
			}
		case <-deadline:
			t.Fatal("never saw a running snapshot")
		}
	}
}

func TestGetAllOrderedByStartTime(t *testing.T) {
	l := newFakeLauncher()
	s, _ := newTestSupervisor(l)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	for _, root := range []string{"/z", "/a", "/m"} {
		_, err := s.Start(root, 8080)
		require.NoError(t, err)
	}
	all := s.GetAll()
	require.Len(t, all, 3)
	assert.Equal(t, "/z", all[0].Root)
	assert.Equal(t, "/a", all[1].Root)
	assert.Equal(t, "/m", all[2].Root)
}

func TestStopAll(t *testing.T) {
	l := newFakeLauncher()
	s, _ := newTestSupervisor(l)
	for _, root := range []string{"/a", "/b", "/c"} {
		_, err := s.Start(root, 8080)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.StopAll(ctx))
	assert.Empty(t, s.GetAll())
	for _, h := range l.handles {
		assert.Equal(t, 1, h.stops())
	}
	assert.Equal(t, 0, s.keys.size())
}

func TestStopAllDoesNotWaitForever(t *testing.T) {
	l := newFakeLauncher()
	l.exitOnStop = false
	s, _ := newTestSupervisor(l)
	_, err := s.Start("/stuck", 8080)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = s.StopAll(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, s.GetAll())
}

func TestKeyLocksSerializePerKey(t *testing.T) {
	k := newKeyLocks()
	unlockA := k.Lock("a")

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	// Other keys are not blocked
	unlockB := k.Lock("b")
	unlockB()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired
	require.Eventually(t, func() bool { return k.size() == 0 }, time.Second, time.Millisecond)
}

// freeBasePort finds a port p such that p and p+1 are both free.
func freeBasePort(t *testing.T) int {
	t.Helper()
	for i := 0; i < 20; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		p := ln.Addr().(*net.TCPAddr).Port
		ln.Close()
		if p >= 65000 {
			continue
		}
		next, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p+1))
		if err != nil {
			continue
		}
		next.Close()
		return p
	}
	t.Skip("could not find two adjacent free ports")
	return 0
}
