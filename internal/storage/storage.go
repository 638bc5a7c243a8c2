// internal/storage/storage.go
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/OCAP2/scene-engine/pkg/core"
)

// ErrNotFound is returned when no scene with the requested name was saved.
var ErrNotFound = errors.New("scene not found")

// SceneInfo summarizes a saved scene for listings.
type SceneInfo struct {
	Name           string    `json:"name"`
	StartTimestamp int64     `json:"startTimestamp"`
	EndTimestamp   int64     `json:"endTimestamp"`
	Objects        int       `json:"objects"`
	Buildings      int       `json:"buildings"`
	Roads          int       `json:"roads"`
	SavedAt        time.Time `json:"savedAt"`
}

// InfoFor summarizes a snapshot.
func InfoFor(snap *core.Snapshot, savedAt time.Time) SceneInfo {
	return SceneInfo{
		Name:           snap.Scene.Name,
		StartTimestamp: snap.Scene.StartTimestamp,
		EndTimestamp:   snap.Scene.EndTimestamp,
		Objects:        snap.Objects.Count(),
		Buildings:      len(snap.Buildings),
		Roads:          len(snap.Roads),
		SavedAt:        savedAt,
	}
}

// Backend is the interface all storage implementations must satisfy.
// Scenes are keyed by name; saving a name again overwrites it.
type Backend interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error

	SaveScene(ctx context.Context, snap *core.Snapshot) error
	LoadScene(ctx context.Context, name string) (*core.Snapshot, error)
	ListScenes(ctx context.Context) ([]SceneInfo, error)
	DeleteScene(ctx context.Context, name string) error
}

// Exportable is an optional interface for backends that write scene files.
type Exportable interface {
	GetExportedFilePath() string
}
