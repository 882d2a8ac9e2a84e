package workspace

import "errors"

// Sentinel error for malformed escaped keys
var ErrInvalidKey = errors.New("invalid escaped key")

// Sentinel error for a missing key
var ErrNotFound = errors.New("key not found")

// KV is the durable key/value backing store the workspace store is built on.
// Values are opaque strings; keys use "." as the namespace separator.
type KV interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	// Scan returns every key/value whose key starts with prefix.
	Scan(prefix string) (map[string]string, error)
	// Update runs fn against the current values of keys inside one transaction.
	// Missing keys are absent from the map. fn returns the values to write;
	// an empty string value deletes the key.
	Update(keys []string, fn func(current map[string]string) (map[string]string, error)) error
	Close() error
}

// MetadataStore persists history, per-folder metadata and settings.
type MetadataStore interface {
	RecordHistory(path string) error
	RemoveHistory(path string) ([]string, error)
	History() ([]string, error)
	PruneHistory(exists func(path string) bool) ([]string, error)

	Meta(path string) (Meta, bool, error)
	UpdateMeta(path string, changes MetaChanges) (Meta, error)
	DeleteMeta(path string) error
	ListFavorites() ([]Favorite, error)

	GetSetting(key string, def string) (string, error)
	SetSetting(key, value string) error
	Settings() (Settings, error)

	Close() error
}

// NewMetadataStore opens the SQLite-backed store at dbPath
func NewMetadataStore(dbPath string) (MetadataStore, error) {
	kv, err := NewSQLiteKV(dbPath)
	if err != nil {
		return nil, err
	}
	return NewStore(kv), nil
}
