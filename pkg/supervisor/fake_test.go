package supervisor

import (
	"fmt"
	"sync"

	"github.com/xlttj/liveserve/pkg/ports"
	"github.com/xlttj/liveserve/pkg/site"
)

type fakeHandle struct {
	mu         sync.Mutex
	events     chan site.Event
	pid        int
	stopCalls  int
	closed     bool
	exitOnStop bool
}

func newFakeHandle(pid int, exitOnStop bool) *fakeHandle {
	return &fakeHandle{events: make(chan site.Event, 4), pid: pid, exitOnStop: exitOnStop}
}

func (h *fakeHandle) Events() <-chan site.Event { return h.events }
func (h *fakeHandle) PID() int                  { return h.pid }

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopCalls++
	if h.exitOnStop {
		h.emitLocked(site.Event{Kind: site.EventExited})
	}
}

func (h *fakeHandle) emit(ev site.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.emitLocked(ev)
}

func (h *fakeHandle) emitLocked(ev site.Event) {
	if h.closed {
		return
	}
	h.events <- ev
	if ev.Kind == site.EventExited {
		h.closed = true
		close(h.events)
	}
}

func (h *fakeHandle) stops() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopCalls
}

type launch struct {
	root string
	port int
}

// fakeLauncher hands out fakeHandles and can simulate bind and spawn failures.
type fakeLauncher struct {
	mu         sync.Mutex
	launches   []launch
	handles    []*fakeHandle
	bindFail   map[int]bool
	err        error
	autoReady  bool
	exitOnStop bool
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{bindFail: make(map[int]bool), autoReady: true, exitOnStop: true}
}

func (l *fakeLauncher) Launch(root string, port int) (site.Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches = append(l.launches, launch{root: root, port: port})
	if l.bindFail[port] {
		return nil, fmt.Errorf("%w: port %d", site.ErrPortBindFailed, port)
	}
	if l.err != nil {
		return nil, l.err
	}
	h := newFakeHandle(1000+len(l.launches), l.exitOnStop)
	if l.autoReady {
		h.emit(site.Event{Kind: site.EventReady})
	}
	l.handles = append(l.handles, h)
	return h, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) last() *fakeHandle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.handles[len(l.handles)-1]
}

// freeAllocator treats every port as free so only reservations matter.
func freeAllocator() *ports.Allocator {
	return &ports.Allocator{Limit: 10, Probe: func(string, int) bool { return true }}
}

type recordingPublisher struct {
	mu        sync.Mutex
	snapshots [][]ServerRecord
}

func (p *recordingPublisher) Publish(records []ServerRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, records)
}

func (p *recordingPublisher) all() [][]ServerRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]ServerRecord(nil), p.snapshots...)
}
