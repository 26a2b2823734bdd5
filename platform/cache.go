package platform

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a file backed key-value store used to persist a subset of the
// client session state across restarts. Values are stored as one JSON
// object per file keyed by name.
type Cache struct {
	mu   sync.Mutex
	path string
}

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	entries := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (c *Cache) save(entries map[string]json.RawMessage) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.path), os.ModePerm); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0666)
}

// Put stores value under key, overwriting any previous value.
func (c *Cache) Put(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	entries[key] = raw
	return c.save(entries)
}

// Get unmarshals the value stored under key into out. The first return
// value reports whether the key was present.
func (c *Cache) Get(key string, out any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return false, err
	}
	raw, ok := entries[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key from the cache. Deleting a missing key is not an error.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.load()
	if err != nil {
		return err
	}
	delete(entries, key)
	return c.save(entries)
}
