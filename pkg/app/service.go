// Package app wires the supervisor, the workspace store and the update
// broadcaster together and exposes the operations the UI and CLI call.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xlttj/liveserve/pkg/broadcast"
	"github.com/xlttj/liveserve/pkg/config"
	"github.com/xlttj/liveserve/pkg/logging"
	"github.com/xlttj/liveserve/pkg/ports"
	"github.com/xlttj/liveserve/pkg/site"
	"github.com/xlttj/liveserve/pkg/supervisor"
	"github.com/xlttj/liveserve/pkg/workspace"
)

// Supervisor is the subset of *supervisor.Supervisor the service drives.
type Supervisor interface {
	Start(root string, preferredPort int) (supervisor.ServerRecord, error)
	Stop(root string) error
	Get(root string) (supervisor.ServerRecord, bool)
	GetAll() []supervisor.ServerRecord
	StopAll(ctx context.Context) error
}

// Site is a folder as shown to the user: its metadata, when it last changed
// on disk and, if it is being served, its record.
type Site struct {
	Root         string
	Alias        string
	Favorite     bool
	Created      time.Time
	LastModified *time.Time
	Record       *supervisor.ServerRecord
}

// Name is the alias, or the folder name when there is none.
func (s Site) Name() string {
	if s.Alias != "" {
		return s.Alias
	}
	return filepath.Base(s.Root)
}

// Service is the application core shared by the dashboard and the CLI.
type Service struct {
	sup     Supervisor
	store   workspace.MetadataStore
	updates *broadcast.Broadcaster[[]supervisor.ServerRecord]
	stat    func(string) (os.FileInfo, error)
}

// NewService builds a Service around already constructed parts. updates may
// be nil when nothing subscribes.
func NewService(sup Supervisor, store workspace.MetadataStore, updates *broadcast.Broadcaster[[]supervisor.ServerRecord]) *Service {
	return &Service{
		sup:     sup,
		store:   store,
		updates: updates,
		stat:    os.Stat,
	}
}

// Open constructs the full application from cfg.
func Open(cfg config.Options) (*Service, error) {
	store, err := workspace.NewMetadataStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace store: %w", err)
	}

	updates := broadcast.New[[]supervisor.ServerRecord]()
	sup := supervisor.New(supervisor.Options{
		Launcher:  NewLauncher(cfg),
		Allocator: ports.NewAllocator(cfg.BindHost, cfg.PortSearchLimit),
		Publisher: updates,
	})
	logging.LogDebug("Application opened (isolation=%s, data=%s)", cfg.Isolation, cfg.DataDir)
	return NewService(sup, store, updates), nil
}

// NewLauncher picks the site launcher for the configured isolation mode.
func NewLauncher(cfg config.Options) site.Launcher {
	if cfg.Isolation == config.IsolationProcess {
		return &site.Subprocess{
			Args:        childArgs(cfg),
			StopTimeout: cfg.StopTimeout,
		}
	}
	return &site.InProcess{
		Host:            cfg.BindHost,
		DefaultDocument: cfg.DefaultDocument,
		LiveReload:      cfg.LiveReload,
	}
}

func childArgs(cfg config.Options) func(root string, port int) []string {
	return func(root string, port int) []string {
		args := site.ChildArgs(root, port)
		args = append(args, "--host", cfg.BindHost, "--default-document", cfg.DefaultDocument)
		if !cfg.LiveReload {
			args = append(args, "--no-live-reload")
		}
		return args
	}
}

// Close stops every server, waiting until ctx is done, then closes the store.
func (s *Service) Close(ctx context.Context) error {
	stopErr := s.sup.StopAll(ctx)
	if s.updates != nil {
		s.updates.Close()
	}
	if err := s.store.Close(); err != nil {
		return err
	}
	return stopErr
}

// Store exposes the workspace store for settings and metadata commands.
func (s *Service) Store() workspace.MetadataStore {
	return s.store
}

// Subscribe delivers a snapshot of all records on every change.
func (s *Service) Subscribe() (<-chan []supervisor.ServerRecord, func()) {
	if s.updates == nil {
		ch := make(chan []supervisor.ServerRecord)
		close(ch)
		return ch, func() {}
	}
	return s.updates.Subscribe()
}

// Serve starts serving path on the configured default port and remembers it
// in the history unless the start failed outright.
func (s *Service) Serve(path string) (supervisor.ServerRecord, error) {
	settings, err := s.store.Settings()
	if err != nil {
		logging.LogError("Failed to read settings, using default port: %v", err)
		settings.DefaultPort = ports.DefaultPort
	}
	return s.ServeOnPort(path, settings.DefaultPort)
}

// ServeOnPort is Serve with an explicit preferred port.
func (s *Service) ServeOnPort(path string, port int) (supervisor.ServerRecord, error) {
	rec, err := s.sup.Start(path, port)
	if err != nil {
		return supervisor.ServerRecord{}, err
	}
	if rec.Status == supervisor.StatusError {
		return rec, nil
	}
	if err := s.store.RecordHistory(rec.Root); err != nil {
		logging.LogError("Failed to record history for %s: %v", rec.Root, err)
	}
	return rec, nil
}

// Unserve stops serving path.
func (s *Service) Unserve(path string) error {
	return s.sup.Stop(path)
}

// Toggle stops path when it is served and serves it otherwise. The returned
// bool reports whether path is now served.
func (s *Service) Toggle(path string) (supervisor.ServerRecord, bool, error) {
	if rec, ok := s.sup.Get(path); ok && rec.Active() {
		return rec, false, s.sup.Stop(path)
	}
	rec, err := s.Serve(path)
	return rec, err == nil, err
}

// Servers lists every tracked server with its folder metadata.
func (s *Service) Servers() []Site {
	records := s.sup.GetAll()
	sites := make([]Site, 0, len(records))
	for i := range records {
		view := s.describe(records[i].Root)
		rec := records[i]
		view.Record = &rec
		sites = append(sites, view)
	}
	return sites
}

// Records is the supervisor's current snapshot.
func (s *Service) Records() []supervisor.ServerRecord {
	return s.sup.GetAll()
}

// History lists remembered folders, most recent first.
func (s *Service) History() ([]Site, error) {
	paths, err := s.store.History()
	if err != nil {
		return nil, err
	}
	return s.describeAll(paths), nil
}

// Favorites lists favorited folders.
func (s *Service) Favorites() ([]Site, error) {
	favorites, err := s.store.ListFavorites()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(favorites))
	for i, f := range favorites {
		paths[i] = f.Path
	}
	return s.describeAll(paths), nil
}

func (s *Service) describeAll(paths []string) []Site {
	running := make(map[string]supervisor.ServerRecord)
	for _, rec := range s.sup.GetAll() {
		running[rec.Root] = rec
	}
	sites := make([]Site, 0, len(paths))
	for _, p := range paths {
		view := s.describe(p)
		if rec, ok := running[p]; ok {
			view.Record = &rec
		}
		sites = append(sites, view)
	}
	return sites
}

func (s *Service) describe(path string) Site {
	view := Site{Root: path}
	meta, ok, err := s.store.Meta(path)
	if err != nil {
		logging.LogError("Failed to read meta for %s: %v", path, err)
	} else if ok {
		view.Alias = meta.Alias
		view.Favorite = meta.Favorite
		view.Created = meta.Created
	}
	view.LastModified = s.lastModified(path)
	return view
}

// lastModified is the folder's own mtime, nil when it is gone.
func (s *Service) lastModified(path string) *time.Time {
	info, err := s.stat(path)
	if err != nil {
		return nil
	}
	t := info.ModTime()
	return &t
}

// SetAlias renames a folder for display. An empty alias clears it.
func (s *Service) SetAlias(path, alias string) (workspace.Meta, error) {
	alias = strings.TrimSpace(alias)
	return s.store.UpdateMeta(path, workspace.MetaChanges{Alias: &alias})
}

// SetFavorite marks or unmarks path as a favorite.
func (s *Service) SetFavorite(path string, favorite bool) (workspace.Meta, error) {
	return s.store.UpdateMeta(path, workspace.MetaChanges{Favorite: &favorite})
}

// ToggleFavorite flips the favorite flag of path.
func (s *Service) ToggleFavorite(path string) (workspace.Meta, error) {
	meta, _, err := s.store.Meta(path)
	if err != nil {
		return workspace.Meta{}, err
	}
	return s.SetFavorite(path, !meta.Favorite)
}

// RemoveHistory forgets path from the history; its metadata stays.
func (s *Service) RemoveHistory(path string) ([]string, error) {
	return s.store.RemoveHistory(path)
}

// PruneHistory drops history entries whose folder no longer exists.
func (s *Service) PruneHistory() ([]string, error) {
	return s.store.PruneHistory(func(path string) bool {
		info, err := s.stat(path)
		return err == nil && info.IsDir()
	})
}

// SetDefaultPort validates and stores the preferred port for new servers.
func (s *Service) SetDefaultPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}
	return s.store.SetSetting(workspace.SettingDefaultPort, strconv.Itoa(port))
}

// OpenCandidates returns the arguments that name existing directories, in
// order, skipping flags.
func (s *Service) OpenCandidates(args []string) []string {
	var dirs []string
	for _, arg := range args {
		if arg == "" || strings.HasPrefix(arg, "-") {
			continue
		}
		info, err := s.stat(arg)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(arg)
		if err != nil {
			continue
		}
		dirs = append(dirs, abs)
	}
	return dirs
}

// HandleArgs serves the first directory named in args, if any.
func (s *Service) HandleArgs(args []string) (supervisor.ServerRecord, bool, error) {
	candidates := s.OpenCandidates(args)
	if len(candidates) == 0 {
		return supervisor.ServerRecord{}, false, nil
	}
	rec, err := s.Serve(candidates[0])
	if err != nil {
		return supervisor.ServerRecord{}, false, err
	}
	logging.LogInfo("Serving %s from command line at port %d", rec.Root, rec.Port)
	return rec, true, nil
}
