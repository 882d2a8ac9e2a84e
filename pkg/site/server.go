package site

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xlttj/liveserve/pkg/logging"
)

const (
	defaultDocument = "index.html"
	shutdownTimeout = 2 * time.Second
)

// Server is the HTTP handler for one served folder.
type Server struct {
	cfg    Config
	files  http.Handler
	reload *reloader
}

// NewServer checks that cfg.Root is a readable directory and prepares the
// handler. With LiveReload set it also starts watching the tree; Close stops it.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DefaultDocument == "" {
		cfg.DefaultDocument = defaultDocument
	}
	if err := checkRoot(cfg.Root); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:   cfg,
		files: http.FileServer(http.Dir(cfg.Root)),
	}
	if cfg.LiveReload {
		r, err := newReloader(cfg.Root, reloadDebounce)
		if err != nil {
			// Serving still works without reload
			logging.LogWarn("Live reload disabled for %s: %v", cfg.Root, err)
		} else {
			s.reload = r
		}
	}
	return s, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootUnreadable, root)
	}
	f, err := os.Open(root)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	defer f.Close()
	if _, err := f.Readdirnames(1); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %v", ErrRootUnreadable, err)
	}
	return nil
}

// Close stops the live reload watcher and disconnects its clients.
func (s *Server) Close() error {
	if s.reload != nil {
		return s.reload.Close()
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.reload != nil && r.URL.Path == ReloadPath {
		s.reload.ServeWS(w, r)
		return
	}

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.serveFile(rec, r)
	requestsTotal.WithLabelValues(strconv.Itoa(rec.status)).Inc()
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	urlPath := path.Clean("/" + r.URL.Path)
	target := filepath.Join(s.cfg.Root, filepath.FromSlash(urlPath))

	info, err := os.Stat(target)
	if err != nil {
		s.files.ServeHTTP(w, r)
		return
	}

	isDoc := false
	if info.IsDir() {
		// Let the file server add the trailing slash redirect
		if !strings.HasSuffix(r.URL.Path, "/") {
			s.files.ServeHTTP(w, r)
			return
		}
		doc := filepath.Join(target, s.cfg.DefaultDocument)
		docInfo, err := os.Stat(doc)
		if err != nil || docInfo.IsDir() {
			s.files.ServeHTTP(w, r)
			return
		}
		target, info, isDoc = doc, docInfo, true
	}

	if s.reload != nil && isHTML(target) {
		s.serveInjected(w, r, target, info.ModTime())
		return
	}
	if isDoc {
		http.ServeFile(w, r, target)
		return
	}
	s.files.ServeHTTP(w, r)
}

func (s *Server) serveInjected(w http.ResponseWriter, r *http.Request, file string, modTime time.Time) {
	body, err := os.ReadFile(file)
	if err != nil {
		http.Error(w, "403 Forbidden", http.StatusForbidden)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(file), modTime, bytes.NewReader(injectReloadScript(body)))
}

func isHTML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".html", ".htm":
		return true
	}
	return false
}

// Listen binds cfg.Addr. Failure wraps ErrPortBindFailed.
func Listen(cfg Config) (net.Listener, error) {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPortBindFailed, cfg.Addr(), err)
	}
	return ln, nil
}

// Serve runs a site server until ctx is done. ready is called once the port is
// bound. A nil return means a clean shutdown.
func Serve(ctx context.Context, cfg Config, ready func(addr net.Addr)) error {
	srv, err := NewServer(cfg)
	if err != nil {
		return err
	}
	ln, err := Listen(cfg)
	if err != nil {
		srv.Close()
		return err
	}
	if ready != nil {
		ready(ln.Addr())
	}
	return srv.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logging.LogInfo("Serving %s on %s", s.cfg.Root, ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logging.LogWarn("Forcing close of %s: %v", ln.Addr(), err)
			_ = httpSrv.Close()
		}
		_ = s.Close()
		<-errCh
		logging.LogInfo("Stopped serving %s", s.cfg.Root)
		return nil
	case err := <-errCh:
		_ = s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}
