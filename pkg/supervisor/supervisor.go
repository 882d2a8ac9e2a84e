// Package supervisor owns the set of running site servers, one per folder.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/ports"
	"github.com/xlttj/liveserve/pkg/site"
)

// Sentinel error for an empty or unresolvable root path
var ErrInvalidPath = errors.New("invalid root path")

// DefaultBindRetries is how many ports Start tries when binds keep failing.
const DefaultBindRetries = 3

// PortFinder finds a free port, skipping ports the caller already holds.
type PortFinder interface {
	Find(preferred int, skip func(port int) bool) (int, error)
}

// Publisher receives a snapshot after every change to the live map.
type Publisher interface {
	Publish(records []ServerRecord)
}

// Options configures a Supervisor.
type Options struct {
	Launcher    site.Launcher
	Allocator   PortFinder
	Publisher   Publisher
	BindRetries int
}

type entry struct {
	record ServerRecord
	handle site.Handle
	// done is closed once the handle's events channel is drained
	done chan struct{}
}

// Supervisor tracks site servers keyed by normalized root path.
type Supervisor struct {
	launcher    site.Launcher
	allocator   PortFinder
	publisher   Publisher
	bindRetries int
	now         func() time.Time

	keys *keyLocks

	mutex   sync.Mutex
	servers map[string]*entry
	ports   map[int]string // reserved port -> record id

	allocMutex   sync.Mutex
	publishMutex sync.Mutex
}

// New creates a Supervisor. A nil Allocator means a default ports.Allocator.
func New(opts Options) *Supervisor {
	if opts.BindRetries <= 0 {
		opts.BindRetries = DefaultBindRetries
	}
	if opts.Allocator == nil {
		opts.Allocator = ports.NewAllocator("", ports.DefaultSearchLimit)
	}
	return &Supervisor{
		launcher:    opts.Launcher,
		allocator:   opts.Allocator,
		publisher:   opts.Publisher,
		bindRetries: opts.BindRetries,
		now:         time.Now,
		keys:        newKeyLocks(),
		servers:     make(map[string]*entry),
		ports:       make(map[int]string),
	}
}

// Normalize turns root into the absolute, cleaned path used as the map key.
func Normalize(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", ErrInvalidPath
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	return filepath.Clean(abs), nil
}

// Start serves root, or returns the existing record if root is already
// tracked. The returned record is usually still starting; the outcome is
// published asynchronously. Only path validation, port exhaustion and
// repeated bind failures are returned as errors.
func (s *Supervisor) Start(root string, preferredPort int) (ServerRecord, error) {
	key, err := Normalize(root)
	if err != nil {
		return ServerRecord{}, err
	}

	unlock := s.keys.Lock(key)
	defer unlock()

	s.mutex.Lock()
	if existing, ok := s.servers[key]; ok {
		if existing.record.Status != StatusError {
			rec := existing.record
			s.mutex.Unlock()
			logging.LogDebug("Start: %s already tracked (%s on port %d)", key, rec.Status, rec.Port)
			return rec, nil
		}
		// A failed attempt is replaced by a fresh one
		delete(s.servers, key)
		if existing.handle != nil {
			existing.handle.Stop()
		}
	}
	s.mutex.Unlock()

	id := newID()
	tried := make(map[int]bool)
	var lastErr error

	for attempt := 1; attempt <= s.bindRetries; attempt++ {
		port, err := s.reservePort(preferredPort, id, tried)
		if err != nil {
			failuresTotal.WithLabelValues(reasonNoPort).Inc()
			logging.LogError("Start: no port for %s: %v", key, err)
			return ServerRecord{}, err
		}

		rec := ServerRecord{
			ID:        id,
			Root:      key,
			Port:      port,
			Status:    StatusStarting,
			StartTime: s.now(),
		}

		handle, err := s.launcher.Launch(key, port)
		if err != nil {
			s.releasePort(port, id)
			if errors.Is(err, site.ErrPortBindFailed) {
				// Lost the race for this port; try the next free one
				tried[port] = true
				lastErr = err
				failuresTotal.WithLabelValues(reasonPortBind).Inc()
				logging.LogDebug("Start: attempt %d for %s lost port %d: %v", attempt, key, port, err)
				continue
			}

			rec.Status = StatusError
			rec.Error = err.Error()
			failuresTotal.WithLabelValues(failureReason(err)).Inc()
			logging.LogError("Start: failed to launch %s: %v", key, err)
			s.mutex.Lock()
			s.servers[key] = &entry{record: rec, done: closedChan()}
			s.mutex.Unlock()
			s.publish()
			return rec, nil
		}

		rec.PID = handle.PID()
		e := &entry{record: rec, handle: handle, done: make(chan struct{})}
		s.mutex.Lock()
		s.servers[key] = e
		s.mutex.Unlock()

		startsTotal.Inc()
		logging.LogInfo("Starting %s on port %d (id %s)", key, port, id)
		go s.watch(key, e)
		s.publish()
		return rec, nil
	}

	return ServerRecord{}, fmt.Errorf("giving up on %s after %d attempts: %w", key, s.bindRetries, lastErr)
}

// reservePort finds a free port and reserves it for id. Allocations are
// serialized so two starts never get the same port from this process.
func (s *Supervisor) reservePort(preferred int, id string, tried map[int]bool) (int, error) {
	s.allocMutex.Lock()
	defer s.allocMutex.Unlock()

	port, err := s.allocator.Find(preferred, func(p int) bool {
		if tried[p] {
			return true
		}
		s.mutex.Lock()
		defer s.mutex.Unlock()
		_, reserved := s.ports[p]
		return reserved
	})
	if err != nil {
		return 0, err
	}

	s.mutex.Lock()
	s.ports[port] = id
	s.mutex.Unlock()
	logging.LogDebug("Reserved port %d for %s", port, id)
	return port, nil
}

func (s *Supervisor) releasePort(port int, id string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.releasePortLocked(port, id)
}

func (s *Supervisor) releasePortLocked(port int, id string) {
	if holder, ok := s.ports[port]; ok {
		if holder == id {
			delete(s.ports, port)
			logging.LogDebug("Released port %d from %s", port, id)
		} else {
			logging.LogError("Port %d reservation for %s is held by %s", port, id, holder)
		}
	}
}

// watch applies the handle's lifecycle events to the record.
func (s *Supervisor) watch(key string, e *entry) {
	defer close(e.done)
	for ev := range e.handle.Events() {
		unlock := s.keys.Lock(key)
		changed := s.apply(key, e, ev)
		unlock()
		if changed {
			s.publish()
		}
	}
}

// apply updates e for ev and reports whether the live map changed.
func (s *Supervisor) apply(key string, e *entry, ev site.Event) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Entries removed by Stop or replaced by a later Start only release their port
	tracked := s.servers[key] == e

	switch ev.Kind {
	case site.EventReady:
		if tracked && e.record.Status == StatusStarting {
			e.record.Status = StatusRunning
			logging.LogInfo("Serving %s at %s", key, e.record.URL())
			return true
		}

	case site.EventFailed:
		failuresTotal.WithLabelValues(failureReason(ev.Err)).Inc()
		if tracked && e.record.Status == StatusStarting {
			e.record.Status = StatusError
			e.record.Error = errorText(ev.Err, "startup failed")
			logging.LogError("Site server for %s failed: %s", key, e.record.Error)
			return true
		}

	case site.EventExited:
		s.releasePortLocked(e.record.Port, e.record.ID)
		if !tracked {
			return false
		}
		switch e.record.Status {
		case StatusStarting:
			failuresTotal.WithLabelValues(reasonEarlyExit).Inc()
			e.record.Status = StatusError
			e.record.Error = errorText(ev.Err, "exited before becoming ready")
			logging.LogError("Site server for %s exited while starting: %s", key, e.record.Error)
			return true
		case StatusRunning:
			failuresTotal.WithLabelValues(reasonUnexpected).Inc()
			e.record.Status = StatusStopped
			delete(s.servers, key)
			logging.LogWarn("Site server for %s on port %d exited unexpectedly: %s", key, e.record.Port, errorText(ev.Err, "no detail"))
			return true
		}
	}
	return false
}

// Stop stops serving root. Stopping an untracked root is a no-op. Stop does
// not wait for the server to exit; its port stays reserved until it has.
func (s *Supervisor) Stop(root string) error {
	key, err := Normalize(root)
	if err != nil {
		return err
	}

	unlock := s.keys.Lock(key)
	defer unlock()

	s.mutex.Lock()
	e, ok := s.servers[key]
	if !ok {
		s.mutex.Unlock()
		logging.LogDebug("Stop: %s is not tracked", key)
		return nil
	}
	delete(s.servers, key)
	e.record.Status = StatusStopped
	s.mutex.Unlock()

	if e.handle != nil {
		e.handle.Stop()
	}
	logging.LogInfo("Stopped %s (port %d)", key, e.record.Port)
	s.publish()
	return nil
}

// StopAll stops every tracked server and waits for them to exit until ctx is
// done. Servers still running at the deadline are abandoned.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mutex.Lock()
	entries := make(map[string]*entry, len(s.servers))
	for key, e := range s.servers {
		entries[key] = e
	}
	s.mutex.Unlock()

	for key := range entries {
		if err := s.Stop(key); err != nil {
			logging.LogError("StopAll: %s: %v", key, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for key, e := range entries {
		g.Go(func() error {
			select {
			case <-e.done:
				return nil
			case <-gctx.Done():
				return fmt.Errorf("%s did not exit: %w", key, gctx.Err())
			}
		})
	}
	if err := g.Wait(); err != nil {
		logging.LogWarn("StopAll: %v", err)
		return err
	}
	logging.LogDebug("StopAll finished, %d server(s) stopped", len(entries))
	return nil
}

// GetAll returns a copy of every tracked record, oldest first.
func (s *Supervisor) GetAll() []ServerRecord {
	s.mutex.Lock()
	records := make([]ServerRecord, 0, len(s.servers))
	for _, e := range s.servers {
		records = append(records, e.record)
	}
	s.mutex.Unlock()

	sort.Slice(records, func(i, j int) bool {
		if !records[i].StartTime.Equal(records[j].StartTime) {
			return records[i].StartTime.Before(records[j].StartTime)
		}
		return records[i].Root < records[j].Root
	})
	return records
}

// Get returns the record for root, if tracked.
func (s *Supervisor) Get(root string) (ServerRecord, bool) {
	key, err := Normalize(root)
	if err != nil {
		return ServerRecord{}, false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e, ok := s.servers[key]
	if !ok {
		return ServerRecord{}, false
	}
	return e.record, true
}

// publish sends the current snapshot. Snapshots are taken and delivered under
// one lock so subscribers see them in the order they were taken.
func (s *Supervisor) publish() {
	s.publishMutex.Lock()
	defer s.publishMutex.Unlock()

	snapshot := s.GetAll()
	serversGauge.Set(float64(len(snapshot)))
	if s.publisher != nil {
		s.publisher.Publish(snapshot)
	}
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, site.ErrPortBindFailed):
		return reasonPortBind
	case errors.Is(err, site.ErrRootUnreadable):
		return reasonRoot
	default:
		return reasonSpawn
	}
}

func errorText(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	return err.Error()
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
