package geolocate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"meditrack/internal/domain/geo"
)

// Cache persists the last known fix across process restarts so a device can
// report a position before its receiver warms up.
type Cache struct {
	path string
	mu   sync.Mutex
}

// NewCache returns a cache backed by the JSON file at path.
func NewCache(path string) *Cache {
	return &Cache{path: path}
}

// Load reads the cached fix. The second return is false when there is no
// usable cache (missing file, corrupt JSON, invalid fix).
func (c *Cache) Load() (geo.Fix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return geo.Fix{}, false
	}

	var fix geo.Fix
	if err := json.Unmarshal(data, &fix); err != nil {
		return geo.Fix{}, false
	}
	if err := fix.Validate(); err != nil {
		return geo.Fix{}, false
	}
	return fix, true
}

// Store replaces the cached fix. The write goes through a temp file and a
// rename so a crash never leaves a half-written cache behind.
func (c *Cache) Store(fix geo.Fix) error {
	if err := fix.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(fix)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, ".position-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path)
}
