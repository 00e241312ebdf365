// Package cache implements the content-addressed payload cache shared
// across plugins: album art, notification icons, and any other small
// binary artifact a plugin wants to keep across restarts. A bounded LRU
// fronts an unbounded on-disk L2.
package cache

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

// Capacity is the number of entries kept in memory. Disk entries are
// never evicted.
const Capacity = 10

// Store is a single process-wide payload cache. Construct one with New
// and pass it through the application context; there is no hidden
// global singleton.
type Store struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, []byte]
	dir   string
	group singleflight.Group
}

// New creates a store backed by dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	l, err := lru.New[string, []byte](Capacity)
	if err != nil {
		return nil, errors.Wrap(err, "create lru")
	}
	return &Store{lru: l, dir: dir}, nil
}

// NewInTempDir creates a store under a fixed subdirectory of the OS temp
// directory, matching the reference's std::env::temp_dir().join(...).
func NewInTempDir(name string) (*Store, error) {
	return New(filepath.Join(os.TempDir(), name))
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

// getLocked must be called with s.mu held. It checks the LRU, then the
// disk, populating the LRU on a disk hit. Returns (nil, nil) on a clean
// miss.
func (s *Store) getLocked(name string) ([]byte, error) {
	if data, ok := s.lru.Get(name); ok {
		return data, nil
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read cache entry %s", name)
	}

	s.lru.Add(name, data)
	return data, nil
}

// Get returns the bytes stored under name, or (nil, nil) if absent.
// Concurrent Gets for the same name that miss the LRU are collapsed into
// a single disk read via singleflight.
func (s *Store) Get(name string) ([]byte, error) {
	v, err, _ := s.group.Do(name, func() (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.getLocked(name)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]byte), nil
}

// GetPath returns the on-disk path for name if it exists, without
// loading it into memory.
func (s *Store) GetPath(name string) (string, bool, error) {
	p := s.path(name)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.Wrapf(err, "stat cache entry %s", name)
	}
	return p, true, nil
}

// Put writes data under name. Write-once-per-name: if a previous Put for
// the same name already succeeded (observable via Get), this is a no-op.
func (s *Store) Put(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getLocked(name)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	s.lru.Add(name, data)

	if err := os.WriteFile(s.path(name), data, 0o644); err != nil {
		return errors.Wrapf(err, "write cache entry %s", name)
	}
	return nil
}
