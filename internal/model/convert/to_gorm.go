// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/OCAP2/scene-engine/internal/geo"
	"github.com/OCAP2/scene-engine/internal/model"
	"github.com/OCAP2/scene-engine/pkg/core"
	"gorm.io/datatypes"
)

// attributesToJSON converts an attribute map to datatypes.JSON for DB storage.
func attributesToJSON(attrs map[string]any) (datatypes.JSON, error) {
	if len(attrs) == 0 {
		return datatypes.JSON("{}"), nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func tagsToJSON(tags map[string]string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON("{}")
	}
	// map[string]string always marshals
	data, _ := json.Marshal(tags)
	return datatypes.JSON(data)
}

// CoreToScene converts a snapshot to a GORM model.Scene with all child rows attached.
// Objects are ordered by kind then id so repeated saves produce the same row order.
func CoreToScene(snap *core.Snapshot, savedAt time.Time) (model.Scene, error) {
	s := snap.Scene
	out := model.Scene{
		Name:           s.Name,
		OriginLat:      s.Origin.Lat,
		OriginLon:      s.Origin.Lon,
		OriginX:        s.Origin.X,
		OriginY:        s.Origin.Y,
		ZoneNumber:     s.Origin.Zone.Number,
		ZoneNorth:      s.Origin.Zone.North,
		RadiusMeters:   s.RadiusMeters,
		StartTimestamp: s.StartTimestamp,
		EndTimestamp:   s.EndTimestamp,
		SceneCreatedAt: s.CreatedAt,
		SavedAt:        savedAt,
		ObjectCount:    snap.Objects.Count(),
		BuildingCount:  len(snap.Buildings),
		RoadCount:      len(snap.Roads),
	}

	for _, kind := range core.Kinds {
		objs := snap.Objects[kind]
		ids := make([]string, 0, len(objs))
		for id := range objs {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			obj, err := CoreToObject(objs[id])
			if err != nil {
				return model.Scene{}, err
			}
			out.Objects = append(out.Objects, obj)
		}
	}

	for _, list := range [][]core.Geometry{snap.Buildings, snap.Roads} {
		for _, g := range list {
			f, err := CoreToFeature(g)
			if err != nil {
				return model.Scene{}, err
			}
			out.Features = append(out.Features, f)
		}
	}
	return out, nil
}

// CoreToObject converts a core.Object and its frames to GORM rows.
// core.Object.ID maps to GORM SceneObject.ObjectID.
func CoreToObject(o *core.Object) (model.SceneObject, error) {
	attrs, err := attributesToJSON(o.Attributes)
	if err != nil {
		return model.SceneObject{}, fmt.Errorf("object %s attributes: %w", o.ID, err)
	}
	out := model.SceneObject{
		ObjectID:     o.ID,
		Kind:         string(o.Kind),
		Type:         o.Type,
		CreationTime: o.CreationTime,
		Timestamp:    o.Timestamp,
		Attributes:   attrs,
	}
	for _, f := range o.Frames {
		fa, err := attributesToJSON(f.Attributes)
		if err != nil {
			return model.SceneObject{}, fmt.Errorf("object %s frame %d attributes: %w", o.ID, f.Timestamp, err)
		}
		out.Frames = append(out.Frames, model.ObjectFrame{Timestamp: f.Timestamp, Attributes: fa})
	}
	return out, nil
}

// CoreToFeature converts a core.Geometry to a GORM model.Feature with WKT points.
func CoreToFeature(g core.Geometry) (model.Feature, error) {
	wkt, err := geo.MarshalWKT(g.Points)
	if err != nil {
		return model.Feature{}, fmt.Errorf("feature %s: %w", g.ID, err)
	}
	return model.Feature{
		FeatureID: g.ID,
		Class:     string(g.Class),
		Type:      g.Type,
		Geometry:  wkt,
		Tags:      tagsToJSON(g.Tags),
	}, nil
}
