// Package workspace persists what the user has served: an ordered history of
// folders, per-folder metadata (alias, favorite flag) and flat settings.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xlttj/liveserve/pkg/logging"
)

// Store implements MetadataStore on top of a KV. Each operation is a single
// KV transaction, so a crash never leaves half of an operation behind.
type Store struct {
	kv  KV
	now func() time.Time
}

// NewStore wraps kv.
func NewStore(kv KV) *Store {
	return &Store{kv: kv, now: time.Now}
}

// Close closes the backing KV.
func (s *Store) Close() error {
	return s.kv.Close()
}

// RecordHistory moves path to the front of the history, evicting the oldest
// entry past HistoryLimit, and creates default metadata for unseen paths.
func (s *Store) RecordHistory(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidKey)
	}
	mk := metaKey(path)

	err := s.kv.Update([]string{historyKey, mk}, func(cur map[string]string) (map[string]string, error) {
		history, err := decodeHistory(cur[historyKey])
		if err != nil {
			return nil, err
		}
		history = prependUnique(history, path, HistoryLimit)

		encoded, err := json.Marshal(history)
		if err != nil {
			return nil, fmt.Errorf("failed to encode history: %w", err)
		}
		out := map[string]string{historyKey: string(encoded)}

		if _, ok := cur[mk]; !ok {
			meta, err := json.Marshal(Meta{Created: s.now()})
			if err != nil {
				return nil, fmt.Errorf("failed to encode meta: %w", err)
			}
			out[mk] = string(meta)
		}
		return out, nil
	})
	if err != nil {
		return fmt.Errorf("failed to record history for %s: %w", path, err)
	}
	logging.LogDebug("Recorded history entry: %s", path)
	return nil
}

// RemoveHistory drops path from the history and returns the remaining list.
// Metadata for the path is kept.
func (s *Store) RemoveHistory(path string) ([]string, error) {
	return s.filterHistory(func(p string) bool { return p != path })
}

// PruneHistory drops entries for which exists reports false and returns the removed paths.
func (s *Store) PruneHistory(exists func(path string) bool) ([]string, error) {
	var removed []string
	_, err := s.filterHistory(func(p string) bool {
		if exists(p) {
			return true
		}
		removed = append(removed, p)
		return false
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		logging.LogInfo("Pruned %d missing folder(s) from history", len(removed))
	}
	return removed, nil
}

func (s *Store) filterHistory(keep func(string) bool) ([]string, error) {
	var result []string
	err := s.kv.Update([]string{historyKey}, func(cur map[string]string) (map[string]string, error) {
		history, err := decodeHistory(cur[historyKey])
		if err != nil {
			return nil, err
		}
		result = make([]string, 0, len(history))
		for _, p := range history {
			if keep(p) {
				result = append(result, p)
			}
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode history: %w", err)
		}
		return map[string]string{historyKey: string(encoded)}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update history: %w", err)
	}
	return result, nil
}

// History returns the remembered folders, most recent first.
func (s *Store) History() ([]string, error) {
	raw, err := s.kv.Get(historyKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []string{}, nil
		}
		return nil, err
	}
	return decodeHistory(raw)
}

// Meta returns the metadata for path and whether any exists.
func (s *Store) Meta(path string) (Meta, bool, error) {
	raw, err := s.kv.Get(metaKey(path))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Meta{}, false, nil
		}
		return Meta{}, false, err
	}
	var meta Meta
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return Meta{}, false, fmt.Errorf("failed to decode meta for %s: %w", path, err)
	}
	return meta, true, nil
}

// UpdateMeta merges changes into the metadata for path, creating it if needed.
func (s *Store) UpdateMeta(path string, changes MetaChanges) (Meta, error) {
	if strings.TrimSpace(path) == "" {
		return Meta{}, fmt.Errorf("%w: empty path", ErrInvalidKey)
	}
	mk := metaKey(path)

	var merged Meta
	err := s.kv.Update([]string{mk}, func(cur map[string]string) (map[string]string, error) {
		merged = Meta{Created: s.now()}
		if raw, ok := cur[mk]; ok {
			if err := json.Unmarshal([]byte(raw), &merged); err != nil {
				return nil, fmt.Errorf("failed to decode meta: %w", err)
			}
		}
		if changes.Alias != nil {
			merged.Alias = *changes.Alias
		}
		if changes.Favorite != nil {
			merged.Favorite = *changes.Favorite
		}
		encoded, err := json.Marshal(merged)
		if err != nil {
			return nil, fmt.Errorf("failed to encode meta: %w", err)
		}
		return map[string]string{mk: string(encoded)}, nil
	})
	if err != nil {
		return Meta{}, fmt.Errorf("failed to update meta for %s: %w", path, err)
	}
	return merged, nil
}

// DeleteMeta forgets the metadata for path.
func (s *Store) DeleteMeta(path string) error {
	return s.kv.Delete(metaKey(path))
}

// ListFavorites returns every favorited folder, sorted by path.
func (s *Store) ListFavorites() ([]Favorite, error) {
	entries, err := s.kv.Scan(metaPrefix)
	if err != nil {
		return nil, err
	}

	favorites := []Favorite{}
	for key, raw := range entries {
		path, err := UnescapeKey(strings.TrimPrefix(key, metaPrefix))
		if err != nil {
			logging.LogError("Skipping meta entry with bad key %q: %v", key, err)
			continue
		}
		var meta Meta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			logging.LogError("Skipping unreadable meta for %s: %v", path, err)
			continue
		}
		if meta.Favorite {
			favorites = append(favorites, Favorite{Path: path, Meta: meta})
		}
	}
	sort.Slice(favorites, func(i, j int) bool { return favorites[i].Path < favorites[j].Path })
	return favorites, nil
}

// GetSetting returns the stored value for key or def when unset.
func (s *Store) GetSetting(key string, def string) (string, error) {
	value, err := s.kv.Get(settingKey(key))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return def, nil
		}
		return "", err
	}
	return value, nil
}

// SetSetting stores value under key. Last write wins.
func (s *Store) SetSetting(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty setting name", ErrInvalidKey)
	}
	return s.kv.Set(settingKey(key), value)
}

// Settings returns all known settings with defaults applied.
func (s *Store) Settings() (Settings, error) {
	lang, err := s.GetSetting(SettingLanguage, DefaultLanguage)
	if err != nil {
		return Settings{}, err
	}
	theme, err := s.GetSetting(SettingTheme, DefaultTheme)
	if err != nil {
		return Settings{}, err
	}
	portStr, err := s.GetSetting(SettingDefaultPort, DefaultPortSetting)
	if err != nil {
		return Settings{}, err
	}
	port, convErr := strconv.Atoi(portStr)
	if convErr != nil || port <= 0 || port > 65535 {
		logging.LogWarn("Ignoring invalid defaultPort setting %q", portStr)
		port, _ = strconv.Atoi(DefaultPortSetting)
	}
	return Settings{Language: lang, Theme: theme, DefaultPort: port}, nil
}

func decodeHistory(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var history []string
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		return nil, fmt.Errorf("failed to decode history: %w", err)
	}
	return history, nil
}

// prependUnique puts path first, drops its older occurrence and trims to limit.
func prependUnique(history []string, path string, limit int) []string {
	out := make([]string, 0, len(history)+1)
	out = append(out, path)
	for _, p := range history {
		if p != path {
			out = append(out, p)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
