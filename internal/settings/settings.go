package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	fileutil "scorebatch/internal/file"
)

// DefaultMaxConcurrentUploads is applied whenever the stored value is
// missing, non-positive, or unparsable.
const DefaultMaxConcurrentUploads = 2

// Settings holds the two user-mutable scalars: the free-text reference
// passed along with every submission, and the upload concurrency limit.
type Settings struct {
	ReferenceText        string `json:"reference_text"`
	MaxConcurrentUploads int    `json:"max_concurrent_uploads"`
}

// Store persists settings to a JSON file. Loaded once at startup, written
// atomically on every change.
type Store struct {
	mu      sync.RWMutex
	path    string
	current Settings
}

func NewStore(path string) *Store {
	return &Store{
		path:    path,
		current: Settings{MaxConcurrentUploads: DefaultMaxConcurrentUploads},
	}
}

// Load reads persisted settings. A missing file is not an error; a corrupt
// file is logged and replaced by defaults on the next write.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is controlled by application
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}

	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		log.Warn().Str("path", s.path).Err(err).Msg("settings file unreadable, using defaults")
		return nil
	}

	s.mu.Lock()
	s.current = normalize(loaded)
	s.mu.Unlock()
	return nil
}

// Get returns a snapshot of the current settings.
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the settings and persists them. The stored value is
// normalized first, and the normalized result is returned.
func (s *Store) Update(next Settings) (Settings, error) {
	next = normalize(next)

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	if err := fileutil.WriteJSONAtomic(s.path, next); err != nil {
		return next, fmt.Errorf("persist settings: %w", err)
	}
	return next, nil
}

func normalize(in Settings) Settings {
	if in.MaxConcurrentUploads < 1 {
		in.MaxConcurrentUploads = DefaultMaxConcurrentUploads
	}
	return in
}
