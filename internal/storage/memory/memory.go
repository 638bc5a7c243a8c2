// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/pkg/core"
)

type record struct {
	snap    *core.Snapshot
	savedAt time.Time
	path    string
}

// Backend keeps scenes in memory and mirrors each save to a JSON file.
// With an empty OutputDir it is purely in-memory.
type Backend struct {
	cfg    config.MemoryConfig
	scenes map[string]*record
	now    func() time.Time

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:    cfg,
		scenes: make(map[string]*record),
		now:    time.Now,
	}
}

// Init loads every scene file already present in the output directory.
func (b *Backend) Init(ctx context.Context) error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	loaded, err := b.readDir(ctx)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for name, r := range loaded {
		b.scenes[name] = r
	}
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// SaveScene stores a deep copy of the snapshot and writes it to disk when an output directory is set.
func (b *Backend) SaveScene(ctx context.Context, snap *core.Snapshot) error {
	if snap == nil || snap.Scene.Name == "" {
		return fmt.Errorf("%w: scene name is required to save", core.ErrValidation)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	r := &record{snap: cloneSnapshot(snap), savedAt: b.now()}
	if b.cfg.OutputDir != "" {
		if old, ok := b.scenes[snap.Scene.Name]; ok && old.path != "" {
			r.path = old.path
		}
		path, err := b.exportScene(r)
		if err != nil {
			return err
		}
		r.path = path
		b.lastExportPath = path
	}
	b.scenes[snap.Scene.Name] = r
	return nil
}

// LoadScene returns a deep copy of a saved scene.
func (b *Backend) LoadScene(ctx context.Context, name string) (*core.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	r, ok := b.scenes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return cloneSnapshot(r.snap), nil
}

// ListScenes returns saved scenes ordered by name.
func (b *Backend) ListScenes(ctx context.Context) ([]storage.SceneInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]storage.SceneInfo, 0, len(b.scenes))
	for _, r := range b.scenes {
		out = append(out, storage.InfoFor(r.snap, r.savedAt))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// DeleteScene forgets a scene and removes its file.
func (b *Backend) DeleteScene(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	r, ok := b.scenes[name]
	if !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if r.path != "" {
		if err := removeFile(r.path); err != nil {
			return err
		}
	}
	delete(b.scenes, name)
	return nil
}

// GetExportedFilePath returns the path of the most recently written scene file.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func cloneSnapshot(s *core.Snapshot) *core.Snapshot {
	return &core.Snapshot{
		Scene:     s.Scene,
		Objects:   s.Objects.Clone(),
		Buildings: core.CloneGeometries(s.Buildings),
		Roads:     core.CloneGeometries(s.Roads),
	}
}
