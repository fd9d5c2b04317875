package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
)

// GUIDFileName is the registry file kept at the root of the asset directory.
const GUIDFileName = ".anima-guids.toml"

type guidFile struct {
	GUIDs map[string]string `toml:"guids"`
}

/**
 * @brief Maps asset paths, relative to the asset directory, to GUIDs that
 * stay stable across runs.
 */
type GUIDRegistry struct {
	mutex  sync.RWMutex
	file   string
	byPath map[string]uuid.UUID
	byGUID map[uuid.UUID]string
	dirty  bool
}

// LoadGUIDRegistry reads the registry file; a missing file yields an empty registry.
func LoadGUIDRegistry(file string) (*GUIDRegistry, error) {
	r := &GUIDRegistry{
		file:   file,
		byPath: make(map[string]uuid.UUID),
		byGUID: make(map[uuid.UUID]string),
	}
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return r, nil
	}
	if err != nil {
		return nil, err
	}
	var gf guidFile
	if err := toml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("guid registry %s: %w", file, err)
	}
	for path, s := range gf.GUIDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("guid registry %s: asset %s: %w", file, path, err)
		}
		r.byPath[path] = id
		r.byGUID[id] = path
	}
	return r, nil
}

// Acquire returns the GUID of path, assigning a new one on first sight.
func (r *GUIDRegistry) Acquire(path string) uuid.UUID {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if id, ok := r.byPath[path]; ok {
		return id
	}
	id := uuid.New()
	r.byPath[path] = id
	r.byGUID[id] = path
	r.dirty = true
	return id
}

func (r *GUIDRegistry) AssetPathToGUID(path string) (uuid.UUID, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	id, ok := r.byPath[path]
	return id, ok
}

func (r *GUIDRegistry) GUIDToAssetPath(id uuid.UUID) (string, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	path, ok := r.byGUID[id]
	return path, ok
}

// Forget drops the mapping of a deleted asset.
func (r *GUIDRegistry) Forget(path string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if id, ok := r.byPath[path]; ok {
		delete(r.byPath, path)
		delete(r.byGUID, id)
		r.dirty = true
	}
}

func (r *GUIDRegistry) Len() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.byPath)
}

// Save writes the registry if anything changed since it was loaded.
func (r *GUIDRegistry) Save() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.dirty {
		return nil
	}
	gf := guidFile{GUIDs: make(map[string]string, len(r.byPath))}
	for path, id := range r.byPath {
		gf.GUIDs[path] = id.String()
	}
	data, err := toml.Marshal(gf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.file, data, 0o644); err != nil {
		return err
	}
	r.dirty = false
	return nil
}
