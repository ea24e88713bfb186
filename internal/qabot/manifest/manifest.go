// Package manifest persists the record of what is currently indexed.
//
// The manifest maps document id to content hash and chunk count. It is the
// sole input to change detection: loaded before a sync, diffed against the
// freshly normalized documents, and rewritten atomically only after the
// vector store has been updated. A sync that fails partway leaves the old
// manifest in place, so the next run retries the same diff.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kart-io/qabot/pkg/utils/json"
)

// ErrCorrupt reports an unreadable manifest file. Callers treat it as "no
// manifest" and fall back to a full reindex.
var ErrCorrupt = errors.New("manifest: corrupt manifest file")

// Entry records the indexed state of one document.
type Entry struct {
	// Hash is the content hash of the document at index time.
	Hash string `json:"hash"`
	// Chunks is how many chunks the document produced. Needed so a shrunk
	// document's surplus chunk ids can be deleted on the next sync.
	Chunks int `json:"chunks"`
}

// Manifest maps document id to its indexed state.
type Manifest map[string]Entry

// Store loads and atomically replaces a persisted manifest.
type Store interface {
	Load() (Manifest, error)
	Save(m Manifest) error
}

// FileStore keeps the manifest as a JSON file on local disk.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed manifest store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the manifest. A missing file yields an empty manifest; an
// unreadable one yields ErrCorrupt.
func (s *FileStore) Load() (Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, nil
		}
		return nil, fmt.Errorf("manifest: failed to read %s: %w", s.path, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if m == nil {
		m = Manifest{}
	}
	return m, nil
}

// Save writes the manifest with replace-on-write semantics: the new content
// goes to a temp file in the same directory and is renamed over the old one,
// so a crash mid-write never leaves a corrupt manifest behind.
func (s *FileStore) Save(m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("manifest: failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: failed to encode: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("manifest: failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("manifest: failed to replace %s: %w", s.path, err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
