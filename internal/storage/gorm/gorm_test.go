package gormstorage

import (
	"context"
	"testing"
	"time"

	"github.com/OCAP2/scene-engine/internal/database"
	"github.com/OCAP2/scene-engine/internal/model"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

var savedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDB("")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	b := New(Dependencies{DB: db, Now: func() time.Time { return savedAt }})
	require.NoError(t, b.Init(context.Background()))
	return b
}

func testSnapshot(name string) *core.Snapshot {
	objs := core.NewCollections()
	objs[core.KindTarget]["t1"] = &core.Object{
		ID: "t1", Kind: core.KindTarget, Type: "infantry",
		CreationTime: core.Int64(1000),
		Timestamp:    core.Int64(1100),
		Frames: []core.Frame{
			{Timestamp: 1100, Attributes: map[string]any{"x": 1.0}},
			{Timestamp: 1300, Attributes: map[string]any{"x": 2.0}},
		},
	}
	objs[core.KindVehicle]["v1"] = &core.Object{ID: "v1", Kind: core.KindVehicle, Timestamp: core.Int64(1200)}
	return &core.Snapshot{
		Scene: core.Scene{
			Name:           name,
			Origin:         core.Origin{Lat: 48.1, Lon: 11.5, X: 685000, Y: 5331000, Zone: core.Zone{Number: 32, North: true}},
			RadiusMeters:   500,
			StartTimestamp: 1000,
			EndTimestamp:   4600,
			CreatedAt:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		Objects: objs,
		Buildings: []core.Geometry{{
			ID: "b1", Class: core.ClassBuilding, Type: "yes",
			Points: []core.Point2D{{X: 0, Y: 0}, {X: 5, Y: 0}, {X: 5, Y: 5}},
			Tags:   map[string]string{"building": "yes"},
		}},
		Roads: []core.Geometry{
			{ID: "r1", Class: core.ClassRoad, Type: "primary", Points: []core.Point2D{{X: 0, Y: 0}, {X: 100, Y: 0}}},
			{ID: "r2", Class: core.ClassRoad, Type: "track", Points: []core.Point2D{{X: 0, Y: 0}, {X: 0, Y: 50}}},
		},
	}
}

func TestInitWithoutDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init(context.Background()))
	assert.NoError(t, b.Close())
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.SaveScene(ctx, testSnapshot("Alpha")))

	got, err := b.LoadScene(ctx, "Alpha")
	require.NoError(t, err)

	assert.Equal(t, "Alpha", got.Scene.Name)
	assert.Equal(t, core.Zone{Number: 32, North: true}, got.Scene.Origin.Zone)
	assert.Equal(t, int64(4600), got.Scene.EndTimestamp)
	assert.WithinDuration(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), got.Scene.CreatedAt, time.Second)

	tgt := got.Objects[core.KindTarget]["t1"]
	require.NotNil(t, tgt)
	require.NotNil(t, tgt.CreationTime)
	assert.Equal(t, int64(1000), *tgt.CreationTime)
	require.Len(t, tgt.Frames, 2)
	assert.Equal(t, int64(1300), tgt.Frames[1].Timestamp)
	assert.Equal(t, 2.0, tgt.Frames[1].Attributes["x"])

	require.Len(t, got.Buildings, 1)
	assert.Equal(t, "yes", got.Buildings[0].Tags["building"])
	require.Len(t, got.Roads, 2)
	assert.Equal(t, "r1", got.Roads[0].ID)
	assert.Equal(t, []core.Point2D{{X: 0, Y: 0}, {X: 100, Y: 0}}, got.Roads[0].Points)
}

func TestSaveReplacesSameName(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.SaveScene(ctx, testSnapshot("Alpha")))

	second := testSnapshot("Alpha")
	delete(second.Objects[core.KindVehicle], "v1")
	second.Roads = nil
	require.NoError(t, b.SaveScene(ctx, second))

	got, err := b.LoadScene(ctx, "Alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Objects.Count())
	assert.Empty(t, got.Roads)

	// no orphaned children survive the replace
	var frames, objects, features int64
	require.NoError(t, b.db.Model(&model.ObjectFrame{}).Count(&frames).Error)
	require.NoError(t, b.db.Model(&model.SceneObject{}).Count(&objects).Error)
	require.NoError(t, b.db.Model(&model.Feature{}).Count(&features).Error)
	assert.Equal(t, int64(2), frames)
	assert.Equal(t, int64(1), objects)
	assert.Equal(t, int64(1), features)
}

func TestListScenes(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.SaveScene(ctx, testSnapshot("Zulu")))
	require.NoError(t, b.SaveScene(ctx, testSnapshot("Bravo")))

	list, err := b.ListScenes(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Bravo", list[0].Name)
	assert.Equal(t, "Zulu", list[1].Name)
	assert.Equal(t, 2, list[0].Objects)
	assert.Equal(t, 1, list[0].Buildings)
	assert.Equal(t, 2, list[0].Roads)
	assert.WithinDuration(t, savedAt, list[0].SavedAt, time.Second)
}

func TestDeleteScene(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	require.NoError(t, b.SaveScene(ctx, testSnapshot("Alpha")))
	require.NoError(t, b.DeleteScene(ctx, "Alpha"))

	_, err := b.LoadScene(ctx, "Alpha")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, b.DeleteScene(ctx, "Alpha"), storage.ErrNotFound)

	var frames int64
	require.NoError(t, b.db.Model(&model.ObjectFrame{}).Count(&frames).Error)
	assert.Zero(t, frames)
}

func TestSaveRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	b := newTestBackend(t)

	assert.ErrorIs(t, b.SaveScene(ctx, &core.Snapshot{}), core.ErrValidation)

	bad := testSnapshot("Broken")
	bad.Roads = []core.Geometry{{ID: "r", Class: core.ClassRoad, Points: []core.Point2D{{X: 1, Y: 1}}}}
	assert.Error(t, b.SaveScene(ctx, bad))

	_, err := b.LoadScene(ctx, "Broken")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
