package supervisor

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a ServerRecord.
type Status string

const (
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusError    Status = "error"
	StatusStopped  Status = "stopped"
)

// ServerRecord is one folder being served. Records handed out by the
// Supervisor are copies.
type ServerRecord struct {
	ID        string    `json:"id"`
	Root      string    `json:"root"`
	Port      int       `json:"port"`
	Status    Status    `json:"status"`
	StartTime time.Time `json:"startTime"`
	// Error is set only when Status is StatusError
	Error string `json:"error,omitempty"`
	PID   int    `json:"pid,omitempty"`
}

// URL is the local address of the site.
func (r ServerRecord) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d/", r.Port)
}

// Active reports whether the record holds a live or pending server.
func (r ServerRecord) Active() bool {
	return r.Status == StatusStarting || r.Status == StatusRunning
}
