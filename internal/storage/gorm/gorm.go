// Package gormstorage implements the storage.Backend interface on top of GORM.
// The same code serves SQLite and Postgres; the dialect is chosen by the
// database.Manager that opened the connection.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/scene-engine/internal/model"
	"github.com/OCAP2/scene-engine/internal/model/convert"
	"github.com/OCAP2/scene-engine/internal/storage"
	"github.com/OCAP2/scene-engine/pkg/core"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Now    func() time.Time
}

// Backend stores scenes as rows in the scenes, scene_objects, object_frames and features tables.
type Backend struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	b := &Backend{db: deps.DB, log: deps.Logger, now: deps.Now}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Init migrates the schema.
func (b *Backend) Init(ctx context.Context) error {
	if b.db == nil {
		return errors.New("gorm storage: no database connection")
	}
	if err := b.db.WithContext(ctx).AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// Close is a no-op. The connection belongs to the database.Manager.
func (b *Backend) Close() error {
	return nil
}

// SaveScene replaces any scene with the same name in a single transaction.
func (b *Backend) SaveScene(ctx context.Context, snap *core.Snapshot) error {
	if snap == nil || snap.Scene.Name == "" {
		return fmt.Errorf("%w: scene name is required to save", core.ErrValidation)
	}
	row, err := convert.CoreToScene(snap, b.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to convert scene: %w", err)
	}

	start := time.Now()
	err = b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := deleteByName(tx, snap.Scene.Name); err != nil {
			return err
		}
		return tx.Create(&row).Error
	})
	if err != nil {
		return fmt.Errorf("failed to save scene %q: %w", snap.Scene.Name, err)
	}

	b.log.Debug("Saved scene",
		"scene", snap.Scene.Name,
		"objects", row.ObjectCount,
		"features", len(row.Features),
		"duration", time.Since(start))
	return nil
}

// LoadScene reads a scene and all of its children.
func (b *Backend) LoadScene(ctx context.Context, name string) (*core.Snapshot, error) {
	var row model.Scene
	err := b.db.WithContext(ctx).
		Preload("Objects.Frames").
		Preload("Features", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("name = ?", name).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load scene %q: %w", name, err)
	}
	return convert.SceneToCore(row)
}

// ListScenes returns saved scenes ordered by name without loading their children.
func (b *Backend) ListScenes(ctx context.Context) ([]storage.SceneInfo, error) {
	var rows []model.Scene
	if err := b.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	out := make([]storage.SceneInfo, 0, len(rows))
	for _, r := range rows {
		out = append(out, storage.SceneInfo{
			Name:           r.Name,
			StartTimestamp: r.StartTimestamp,
			EndTimestamp:   r.EndTimestamp,
			Objects:        r.ObjectCount,
			Buildings:      r.BuildingCount,
			Roads:          r.RoadCount,
			SavedAt:        r.SavedAt,
		})
	}
	return out, nil
}

// DeleteScene removes a scene and its children.
func (b *Backend) DeleteScene(ctx context.Context, name string) error {
	var found bool
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		found, err = deleteByName(tx, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete scene %q: %w", name, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, name)
	}
	return nil
}

// deleteByName removes child rows explicitly so SQLite connections without
// foreign key enforcement do not leave orphans.
func deleteByName(tx *gorm.DB, name string) (bool, error) {
	var ids []uint
	if err := tx.Model(&model.Scene{}).Where("name = ?", name).Pluck("id", &ids).Error; err != nil {
		return false, err
	}
	if len(ids) == 0 {
		return false, nil
	}

	objectIDs := tx.Model(&model.SceneObject{}).Select("id").Where("scene_id IN ?", ids)
	if err := tx.Where("scene_object_id IN (?)", objectIDs).Delete(&model.ObjectFrame{}).Error; err != nil {
		return false, err
	}
	if err := tx.Where("scene_id IN ?", ids).Delete(&model.SceneObject{}).Error; err != nil {
		return false, err
	}
	if err := tx.Where("scene_id IN ?", ids).Delete(&model.Feature{}).Error; err != nil {
		return false, err
	}
	if err := tx.Where("id IN ?", ids).Delete(&model.Scene{}).Error; err != nil {
		return false, err
	}
	return true, nil
}
