package model

import (
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Scene{},
	&SceneObject{},
	&ObjectFrame{},
	&Feature{},
}

// Scene is one saved scene. Name is the user-facing key; saving the same name again replaces the row.
type Scene struct {
	ID             uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Name           string    `json:"sceneName" gorm:"size:255;not null;uniqueIndex:idx_scene_name"`
	OriginLat      float64   `json:"originLat"`
	OriginLon      float64   `json:"originLon"`
	OriginX        float64   `json:"originX"`
	OriginY        float64   `json:"originY"`
	ZoneNumber     int       `json:"zoneNumber"`
	ZoneNorth      bool      `json:"zoneNorth"`
	RadiusMeters   float64   `json:"radiusMeters"`
	StartTimestamp int64     `json:"startTimestamp" gorm:"index:idx_scene_start"`
	EndTimestamp   int64     `json:"endTimestamp"`
	SceneCreatedAt time.Time `json:"createdAt"`
	SavedAt        time.Time `json:"savedAt" gorm:"index:idx_scene_saved_at"`

	// denormalized for listings
	ObjectCount   int `json:"objectCount"`
	BuildingCount int `json:"buildingCount"`
	RoadCount     int `json:"roadCount"`

	Objects  []SceneObject `json:"objects" gorm:"foreignKey:SceneID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Features []Feature     `json:"features" gorm:"foreignKey:SceneID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*Scene) TableName() string {
	return "scenes"
}

// SceneObject is a Target, Vehicle or Marker. ObjectID is the scene-local id, unique per scene.
type SceneObject struct {
	ID           uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SceneID      uint           `json:"sceneId" gorm:"not null;index:idx_object_scene_id;uniqueIndex:idx_object_scene_object"`
	ObjectID     string         `json:"objectId" gorm:"size:64;not null;uniqueIndex:idx_object_scene_object"`
	Kind         string         `json:"kind" gorm:"size:16;not null;index:idx_object_kind"`
	Type         string         `json:"type" gorm:"size:64"`
	CreationTime *int64         `json:"creationTime"`
	Timestamp    *int64         `json:"timestamp"`
	Attributes   datatypes.JSON `json:"attributes"`

	Frames []ObjectFrame `json:"frames" gorm:"foreignKey:SceneObjectID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*SceneObject) TableName() string {
	return "scene_objects"
}

// ObjectFrame is one timestamped state of a SceneObject.
type ObjectFrame struct {
	ID            uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SceneObjectID uint           `json:"sceneObjectId" gorm:"not null;index:idx_frame_object_id"`
	Timestamp     int64          `json:"timestamp" gorm:"not null"`
	Attributes    datatypes.JSON `json:"attributes"`
}

func (*ObjectFrame) TableName() string {
	return "object_frames"
}

// Feature is a fetched building or road. Points are stored as a WKT LINESTRING
// in the scene's UTM frame so both SQLite and Postgres can hold them without PostGIS.
type Feature struct {
	ID        uint           `json:"id" gorm:"primarykey;autoIncrement"`
	SceneID   uint           `json:"sceneId" gorm:"not null;index:idx_feature_scene_id"`
	FeatureID string         `json:"featureId" gorm:"size:64;not null"`
	Class     string         `json:"class" gorm:"size:16;not null;index:idx_feature_class"`
	Type      string         `json:"type" gorm:"size:64"`
	Geometry  string         `json:"geometry" gorm:"type:text"`
	Tags      datatypes.JSON `json:"tags"`
}

func (*Feature) TableName() string {
	return "features"
}
