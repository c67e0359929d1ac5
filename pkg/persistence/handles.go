package persistence

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/xbeacon-protocol/xbeacon-go/pkg/registry"
)

// HandleCacheStore persists discovered attribute maps, one file per
// firmware version. Each line is uuid:handle:cccHandle with hex handles;
// a cccHandle of 0 means the characteristic has no notification handle.
type HandleCacheStore struct {
	mu  sync.Mutex
	dir string
}

// NewHandleCacheStore creates a store rooted at dir.
func NewHandleCacheStore(dir string) *HandleCacheStore {
	return &HandleCacheStore{dir: dir}
}

// Load returns the cached attribute map for a firmware version, or
// (nil, nil) when no cache exists.
func (s *HandleCacheStore) Load(version string) (map[string]registry.AttributeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(version))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read handle cache: %w", err)
	}

	entries := make(map[string]registry.AttributeEntry)
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("handle cache for %q: malformed line %q", version, line)
		}
		var entry registry.AttributeEntry
		if _, err := fmt.Sscanf(parts[1], "%x", &entry.Handle); err != nil {
			return nil, fmt.Errorf("handle cache for %q: bad handle in %q", version, line)
		}
		if _, err := fmt.Sscanf(parts[2], "%x", &entry.CCCHandle); err != nil {
			return nil, fmt.Errorf("handle cache for %q: bad ccc handle in %q", version, line)
		}
		entries[parts[0]] = entry
	}
	return entries, nil
}

// Save rewrites the cache file for a firmware version.
func (s *HandleCacheStore) Save(version string, entries map[string]registry.AttributeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uuids := make([]string, 0, len(entries))
	for uuid := range entries {
		uuids = append(uuids, uuid)
	}
	sort.Strings(uuids)

	var b strings.Builder
	for _, uuid := range uuids {
		entry := entries[uuid]
		fmt.Fprintf(&b, "%s:%04x:%04x\n", uuid, entry.Handle, entry.CCCHandle)
	}
	return writeAtomic(s.path(version), []byte(b.String()))
}

// path maps a firmware version string to its cache file.
func (s *HandleCacheStore) path(version string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, version)
	return filepath.Join(s.dir, safe+".map")
}
