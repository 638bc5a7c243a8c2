package database

import (
	"path/filepath"
	"testing"

	"github.com/OCAP2/scene-engine/internal/config"
	"github.com/OCAP2/scene-engine/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "db", Port: "5432", Username: "u", Password: "p", Database: "scenes",
	})
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=scenes sslmode=disable", dsn)
}

func TestManagerSqliteInMemory(t *testing.T) {
	m := NewManager(config.StorageConfig{Type: "sqlite"}, zerolog.Nop())
	require.NoError(t, m.Connect())
	defer m.Close()

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	require.NoError(t, m.Setup())

	for _, tbl := range model.DatabaseModels {
		assert.True(t, m.DB.Migrator().HasTable(tbl))
	}
}

func TestManagerSqliteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.db")
	m := NewManager(config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}}, zerolog.Nop())
	require.NoError(t, m.Connect())
	require.NoError(t, m.Setup())
	require.NoError(t, m.DB.Create(&model.Scene{Name: "Alpha"}).Error)
	require.NoError(t, m.Close())
	assert.False(t, m.IsValid)

	// reopening the file sees the row
	m2 := NewManager(config.StorageConfig{Type: "sqlite", SQLite: config.SQLiteConfig{Path: path}}, zerolog.Nop())
	require.NoError(t, m2.Connect())
	defer m2.Close()
	var count int64
	require.NoError(t, m2.DB.Model(&model.Scene{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetupWithoutConnect(t *testing.T) {
	m := NewManager(config.StorageConfig{}, zerolog.Nop())
	assert.Error(t, m.Setup())
	assert.NoError(t, m.Close())
}
