package query

import (
	"context"
	"slices"
	"sync"
)

// Version is the invalidation state of a key: one counter per segment prefix
// of the key, bumped each time that prefix is invalidated.
type Version []int64

// Store holds the latest fetched value per key as JSON. Implementations must
// be safe for concurrent use.
//
// A fetch reads the key's Version before loading and writes with
// SetIfVersion, so a value loaded before an invalidation is never stored
// after it.
type Store interface {
	Get(ctx context.Context, key Key) ([]byte, bool, error)
	Version(ctx context.Context, key Key) (Version, error)
	// SetIfVersion stores data unless a prefix of key was invalidated since v
	// was read. It reports whether data was written.
	SetIfVersion(ctx context.Context, key Key, v Version, data []byte) (bool, error)
	// DeletePrefix invalidates prefix and removes every key matching it on
	// whole segments.
	DeletePrefix(ctx context.Context, prefix Key) (int, error)
}

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[Key][]byte
	versions map[Key]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:     make(map[Key][]byte),
		versions: make(map[Key]int64),
	}
}

func (s *MemoryStore) Get(_ context.Context, key Key) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	return data, ok, nil
}

func (s *MemoryStore) Version(_ context.Context, key Key) (Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versionLocked(key), nil
}

func (s *MemoryStore) SetIfVersion(_ context.Context, key Key, v Version, data []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Equal(s.versionLocked(key), v) {
		return false, nil
	}
	s.data[key] = data
	return true, nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix Key) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[prefix]++
	n := 0
	for k := range s.data {
		if k.HasPrefix(prefix) {
			delete(s.data, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) versionLocked(key Key) Version {
	prefixes := key.Prefixes()
	v := make(Version, len(prefixes))
	for i, p := range prefixes {
		v[i] = s.versions[p]
	}
	return v
}
