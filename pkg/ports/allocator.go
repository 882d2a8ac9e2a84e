// Package ports finds free TCP ports for site servers.
package ports

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/xlttj/liveserve/pkg/logging"
)

const (
	// DefaultPort is used when the caller has no preference.
	DefaultPort = 8080
	// DefaultSearchLimit bounds how many candidate ports are probed.
	DefaultSearchLimit = 100
	maxPort            = 65535
)

// Sentinel error when the search range is exhausted
var ErrNoPortAvailable = errors.New("no port available")

// Allocator searches upward from a preferred port. It never reserves what it finds:
// callers bind promptly and treat a lost race as a retryable failure.
type Allocator struct {
	Host  string // interface probed, "" means all interfaces
	Limit int    // number of ports tried, DefaultSearchLimit when <= 0

	// Probe reports whether host:port can be bound; isPortAvailable when nil.
	Probe func(host string, port int) bool
}

// NewAllocator creates an allocator probing host.
func NewAllocator(host string, limit int) *Allocator {
	return &Allocator{Host: host, Limit: limit}
}

// Find returns the smallest port >= preferred that is not skipped and probes free.
func (a *Allocator) Find(preferred int, skip func(port int) bool) (int, error) {
	if preferred <= 0 {
		preferred = DefaultPort
	}
	if preferred > maxPort {
		return 0, fmt.Errorf("%w: preferred port %d out of range", ErrNoPortAvailable, preferred)
	}
	limit := a.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	probe := a.Probe
	if probe == nil {
		probe = isPortAvailable
	}

	last := preferred + limit - 1
	if last > maxPort {
		last = maxPort
	}
	for port := preferred; port <= last; port++ {
		if skip != nil && skip(port) {
			continue
		}
		if probe(a.Host, port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("%w: searched %d-%d", ErrNoPortAvailable, preferred, last)
}

// isPortAvailable checks if a TCP port is available to listen on host.
func isPortAvailable(host string, port int) bool {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	listener, err := net.Listen("tcp", address)
	if err != nil {
		logging.LogDebug("Port check: Cannot listen on %s: %v", address, err)
		return false
	}
	_ = listener.Close()
	return true
}
