package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ClaimedDrops is the ordered, deduplicated set of claimed drop ids. The file
// at path is the source of truth; every Add rewrites it before the in-memory
// set changes.
type ClaimedDrops struct {
	mu    sync.Mutex
	path  string
	ids   []string
	index map[string]struct{}
}

// LoadClaimedDrops reads the cache, creating it as an empty list if absent.
func LoadClaimedDrops(path string) (*ClaimedDrops, error) {
	c := &ClaimedDrops{path: path, index: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := c.write(nil); err != nil {
			return nil, err
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", path, err)
	}

	var ids []string
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("error decoding %s: %w", path, err)
		}
	}
	for _, id := range ids {
		if _, ok := c.index[id]; ok {
			continue
		}
		c.index[id] = struct{}{}
		c.ids = append(c.ids, id)
	}

	return c, nil
}

func (c *ClaimedDrops) Contains(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[id]
	return ok
}

func (c *ClaimedDrops) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}

// Add records id. It reports false without touching the file when id is
// already present.
func (c *ClaimedDrops) Add(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; ok {
		return false, nil
	}

	ids := append(slices.Clone(c.ids), id)
	if err := c.write(ids); err != nil {
		return false, err
	}

	c.ids = ids
	c.index[id] = struct{}{}
	return true, nil
}

func (c *ClaimedDrops) write(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(c.path); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("error creating %s directory: %w", dir, err)
		}
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", tmp, err)
	}
	return os.Rename(tmp, c.path)
}
