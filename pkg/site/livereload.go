package site

import (
	"bytes"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"

	"github.com/xlttj/liveserve/pkg/logging"
)

const (
	reloadDebounce = 100 * time.Millisecond
	reloadMessage  = "reload"
	writeTimeout   = time.Second
)

// Directories never watched for changes
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
}

const reloadScript = `<script>(function(){` +
	`var ws=new WebSocket((location.protocol==="https:"?"wss://":"ws://")+location.host+"` + ReloadPath + `");` +
	`ws.onmessage=function(e){if(e.data==="` + reloadMessage + `"){location.reload();}};` +
	`})();</script>`

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// reloader watches a folder tree and tells connected browsers to reload.
type reloader struct {
	root     string
	debounce time.Duration
	watcher  *fsnotify.Watcher

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]bool

	reloads   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newReloader(root string, debounce time.Duration) (*reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	r := &reloader{
		root:     root,
		debounce: debounce,
		watcher:  watcher,
		clients:  make(map[*websocket.Conn]bool),
		done:     make(chan struct{}),
	}
	if err := r.addTree(root); err != nil {
		watcher.Close()
		return nil, err
	}
	r.wg.Add(1)
	go r.run()
	return r, nil
}

// addTree watches dir and every directory below it.
func (r *reloader) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the root is checked by the caller
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := r.watcher.Add(path); err != nil {
			logging.LogDebug("Cannot watch %s: %v", path, err)
		}
		return nil
	})
}

func (r *reloader) run() {
	defer r.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-r.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if r.ignored(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = r.addTree(event.Name)
				}
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(r.debounce)
			}
			fire = timer.C
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logging.LogWarn("File watcher error for %s: %v", r.root, err)
		case <-fire:
			fire = nil
			r.notify()
		}
	}
}

func (r *reloader) ignored(name string) bool {
	rel, err := filepath.Rel(r.root, name)
	if err != nil {
		return false
	}
	for dir := rel; dir != "." && dir != string(filepath.Separator) && dir != ""; dir = filepath.Dir(dir) {
		if skipDirs[filepath.Base(dir)] {
			return true
		}
	}
	return false
}

// notify tells all connected clients to reload. Only the run goroutine writes.
func (r *reloader) notify() {
	r.reloads.Add(1)
	reloadsTotal.Inc()

	r.clientsMu.RLock()
	defer r.clientsMu.RUnlock()

	logging.LogDebug("Notifying %d client(s) of %s to reload", len(r.clients), r.root)
	for conn := range r.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reloadMessage)); err != nil {
			logging.LogDebug("Reload write failed: %v", err)
		}
	}
}

// ServeWS holds a browser connection open until it closes.
func (r *reloader) ServeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.clientsMu.Lock()
	select {
	case <-r.done:
		r.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	r.clients[conn] = true
	r.clientsMu.Unlock()

	defer func() {
		r.clientsMu.Lock()
		delete(r.clients, conn)
		r.clientsMu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (r *reloader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.clientsMu.Lock()
		close(r.done)
		for conn := range r.clients {
			conn.Close()
		}
		r.clientsMu.Unlock()

		err = r.watcher.Close()
		r.wg.Wait()
	})
	return err
}

// injectReloadScript inserts the reload client before the closing body tag,
// or appends it when there is none.
func injectReloadScript(body []byte) []byte {
	idx := bytes.LastIndex(bytes.ToLower(body), []byte("</body>"))
	if idx < 0 {
		return append(body, reloadScript...)
	}
	out := make([]byte, 0, len(body)+len(reloadScript))
	out = append(out, body[:idx]...)
	out = append(out, reloadScript...)
	out = append(out, body[idx:]...)
	return out
}
