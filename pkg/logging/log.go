package logging

import (
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultRecentSize is the number of entries kept in memory for Recent.
const DefaultRecentSize = 500

// LogFileName is the active log file inside the log directory.
const LogFileName = "liveserve.log"

// Entry is one log line as kept in the in-memory tail.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
}

var (
	logOut   io.Writer = io.Discard
	rotator  *lumberjack.Logger
	logMutex sync.Mutex

	recent     = make([]Entry, 0, DefaultRecentSize)
	recentSize = DefaultRecentSize
)

// FilePath is where Init writes logs for dir.
func FilePath(dir string) string {
	return filepath.Join(dir, LogFileName)
}

// Init routes log output to <dir>/liveserve.log, rotating files older than maxAgeDays.
func Init(dir string, maxAgeDays int) error {
	if dir == "" {
		return fmt.Errorf("log directory is empty")
	}
	logMutex.Lock()
	defer logMutex.Unlock()

	if rotator != nil {
		_ = rotator.Close()
	}
	rotator = &lumberjack.Logger{
		Filename:   FilePath(dir),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     maxAgeDays,
	}
	logOut = rotator
	return nil
}

// SetOutput replaces the log destination. Passing nil discards output.
func SetOutput(w io.Writer) {
	logMutex.Lock()
	defer logMutex.Unlock()
	if w == nil {
		w = io.Discard
	}
	logOut = w
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	logMutex.Lock()
	defer logMutex.Unlock()
	logOut = io.Discard
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

func log(level, msg string) {
	logMutex.Lock()
	defer logMutex.Unlock()
	now := time.Now()
	fmt.Fprintf(logOut, "%s [%s] %s\n", now.Format("2006-01-02 15:04:05"), level, msg)

	if len(recent) == recentSize {
		copy(recent, recent[1:])
		recent = recent[:recentSize-1]
	}
	recent = append(recent, Entry{Time: now, Level: level, Message: msg})
}

// Recent returns up to limit entries, newest first. limit <= 0 returns everything kept.
func Recent(limit int) []Entry {
	logMutex.Lock()
	defer logMutex.Unlock()
	if limit <= 0 || limit > len(recent) {
		limit = len(recent)
	}
	out := make([]Entry, 0, limit)
	for i := len(recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, recent[i])
	}
	return out
}

// Clear drops the in-memory tail.
func Clear() {
	logMutex.Lock()
	defer logMutex.Unlock()
	recent = recent[:0]
}

func LogDebug(format string, args ...interface{}) {
	log("DEBUG", fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	log("INFO", fmt.Sprintf(format, args...))
}

func LogWarn(format string, args ...interface{}) {
	log("WARN", fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	log("ERROR", fmt.Sprintf(format, args...))
}
