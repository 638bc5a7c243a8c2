// internal/storage/memory/memory_test.go
package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*Backend)(nil)

// Verify Backend implements storage.Exportable interface
var _ storage.Exportable = (*Backend)(nil)

func testSnapshot(name string) *core.Snapshot {
	objs := core.NewCollections()
	objs[core.KindTarget]["t1"] = &core.Object{
		ID:           "t1",
		Kind:         core.KindTarget,
		Type:         "infantry",
		CreationTime: core.Int64(1000),
		Timestamp:    core.Int64(1100),
		Frames: []core.Frame{
			{Timestamp: 1100, Attributes: map[string]any{"x": 1.5}},
			{Timestamp: 1200},
		},
	}
	objs[core.KindMarker]["m1"] = &core.Object{ID: "m1", Kind: core.KindMarker, Timestamp: core.Int64(0)}
	return &core.Snapshot{
		Scene: core.Scene{
			Name:           name,
			Origin:         core.Origin{Lat: 48.1, Lon: 11.5, X: 691000.25, Y: 5332000.75, Zone: core.Zone{Number: 32, North: true}},
			RadiusMeters:   500,
			StartTimestamp: 1000,
			EndTimestamp:   4600,
			CreatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Objects: objs,
		Buildings: []core.Geometry{{
			ID: "b1", Class: core.ClassBuilding, Type: "yes",
			Points: []core.Point2D{{X: 1, Y: 2}, {X: 3, Y: 4}},
		}},
		Roads: []core.Geometry{},
	}
}

func TestInMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := New(config.MemoryConfig{})
	require.NoError(t, b.Init(ctx))
	defer b.Close()

	snap := testSnapshot("Alpha")
	require.NoError(t, b.SaveScene(ctx, snap))

	// mutating the caller's copy must not leak into the store
	snap.Objects[core.KindTarget]["t1"].Frames[0].Timestamp = 9999

	got, err := b.LoadScene(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(1100), got.Objects[core.KindTarget]["t1"].Frames[0].Timestamp)
	assert.Equal(t, "Alpha", got.Scene.Name)
	assert.Len(t, got.Buildings, 1)
	assert.Empty(t, b.GetExportedFilePath())
}

func TestLoadMissing(t *testing.T) {
	b := New(config.MemoryConfig{})
	_, err := b.LoadScene(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, b.DeleteScene(context.Background(), "nope"), storage.ErrNotFound)
}

func TestSaveRequiresName(t *testing.T) {
	b := New(config.MemoryConfig{})
	err := b.SaveScene(context.Background(), &core.Snapshot{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestListScenesSorted(t *testing.T) {
	ctx := context.Background()
	b := New(config.MemoryConfig{})
	fixed := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	require.NoError(t, b.SaveScene(ctx, testSnapshot("Zulu")))
	require.NoError(t, b.SaveScene(ctx, testSnapshot("Bravo")))

	list, err := b.ListScenes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bravo", list[0].Name)
	assert.Equal(t, "Zulu", list[1].Name)
	assert.Equal(t, 2, list[0].Objects)
	assert.Equal(t, 1, list[0].Buildings)
	assert.Equal(t, fixed, list[0].SavedAt)
}

func TestSaveWritesFile(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "gzip"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()
			b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: compress})
			require.NoError(t, b.Init(ctx))

			require.NoError(t, b.SaveScene(ctx, testSnapshot("Op: Alpha/1")))

			path := b.GetExportedFilePath()
			require.NotEmpty(t, path)
			assert.Equal(t, dir, filepath.Dir(path))
			if compress {
				assert.Equal(t, "Op__Alpha_1.scene.json.gz", filepath.Base(path))
			} else {
				assert.Equal(t, "Op__Alpha_1.scene.json", filepath.Base(path))
			}
			_, err := os.Stat(path)
			require.NoError(t, err)

			// a fresh backend over the same directory sees the saved scene
			b2 := New(config.MemoryConfig{OutputDir: dir})
			require.NoError(t, b2.Init(ctx))
			got, err := b2.LoadScene(ctx, "Op: Alpha/1")
			require.NoError(t, err)
			assert.Equal(t, int64(4600), got.Scene.EndTimestamp)
			assert.Equal(t, core.Zone{Number: 32, North: true}, got.Scene.Origin.Zone)

			tgt := got.Objects[core.KindTarget]["t1"]
			require.NotNil(t, tgt)
			require.NotNil(t, tgt.CreationTime)
			assert.Equal(t, int64(1000), *tgt.CreationTime)
			require.Len(t, tgt.Frames, 2)
			assert.Equal(t, 1.5, tgt.Frames[0].Attributes["x"])

			m := got.Objects[core.KindMarker]["m1"]
			require.NotNil(t, m)
			require.NotNil(t, m.Timestamp)
			assert.Equal(t, int64(0), *m.Timestamp)

			require.Len(t, got.Buildings, 1)
			assert.Equal(t, core.ClassBuilding, got.Buildings[0].Class)
		})
	}
}

func TestDeleteRemovesFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.SaveScene(ctx, testSnapshot("Alpha")))
	path := b.GetExportedFilePath()

	require.NoError(t, b.DeleteScene(ctx, "Alpha"))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	_, err = b.LoadScene(ctx, "Alpha")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInitMissingDir(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: filepath.Join(t.TempDir(), "absent")})
	assert.NoError(t, b.Init(context.Background()))
}

func TestInitSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	b := New(config.MemoryConfig{OutputDir: dir})
	require.NoError(t, b.Init(context.Background()))
	list, err := b.ListScenes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInitRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.scene.json"), []byte("{"), 0644))
	b := New(config.MemoryConfig{OutputDir: dir})
	assert.Error(t, b.Init(context.Background()))
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := New(config.MemoryConfig{})
	assert.ErrorIs(t, b.SaveScene(ctx, testSnapshot("Alpha")), context.Canceled)
	_, err := b.ListScenes(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
