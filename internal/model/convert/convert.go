package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/scene-engine/internal/geo"
	"github.com/OCAP2/scene-engine/internal/model"
	"github.com/OCAP2/scene-engine/pkg/core"
	"gorm.io/datatypes"
)

func jsonToAttributes(data datatypes.JSON) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, nil
	}
	return attrs, nil
}

// SceneToCore converts a GORM model.Scene with preloaded children back to a snapshot.
func SceneToCore(s model.Scene) (*core.Snapshot, error) {
	snap := &core.Snapshot{
		Scene: core.Scene{
			Name: s.Name,
			Origin: core.Origin{
				Lat:  s.OriginLat,
				Lon:  s.OriginLon,
				X:    s.OriginX,
				Y:    s.OriginY,
				Zone: core.Zone{Number: s.ZoneNumber, North: s.ZoneNorth},
			},
			RadiusMeters:   s.RadiusMeters,
			StartTimestamp: s.StartTimestamp,
			EndTimestamp:   s.EndTimestamp,
			CreatedAt:      s.SceneCreatedAt,
		},
		Objects:   core.NewCollections(),
		Buildings: []core.Geometry{},
		Roads:     []core.Geometry{},
	}

	for _, row := range s.Objects {
		obj, err := ObjectToCore(row)
		if err != nil {
			return nil, err
		}
		snap.Objects[obj.Kind][obj.ID] = obj
	}

	for _, row := range s.Features {
		g, err := FeatureToCore(row)
		if err != nil {
			return nil, err
		}
		switch g.Class {
		case core.ClassBuilding:
			snap.Buildings = append(snap.Buildings, g)
		case core.ClassRoad:
			snap.Roads = append(snap.Roads, g)
		default:
			return nil, fmt.Errorf("feature %s: unknown class %q", g.ID, g.Class)
		}
	}
	return snap, nil
}

// ObjectToCore converts a GORM model.SceneObject to a core.Object.
// Creation time is dropped for kinds that do not carry one.
func ObjectToCore(o model.SceneObject) (*core.Object, error) {
	kind, err := core.ParseKind(o.Kind)
	if err != nil {
		return nil, err
	}
	attrs, err := jsonToAttributes(o.Attributes)
	if err != nil {
		return nil, fmt.Errorf("object %s attributes: %w", o.ObjectID, err)
	}
	out := &core.Object{
		ID:         o.ObjectID,
		Kind:       kind,
		Type:       o.Type,
		Timestamp:  o.Timestamp,
		Attributes: attrs,
	}
	if kind.HasCreationTime() {
		out.CreationTime = o.CreationTime
	}
	for _, f := range o.Frames {
		fa, err := jsonToAttributes(f.Attributes)
		if err != nil {
			return nil, fmt.Errorf("object %s frame %d attributes: %w", o.ObjectID, f.Timestamp, err)
		}
		out.Frames = append(out.Frames, core.Frame{Timestamp: f.Timestamp, Attributes: fa})
	}
	out.SortFrames()
	return out, nil
}

// FeatureToCore converts a GORM model.Feature to a core.Geometry.
func FeatureToCore(f model.Feature) (core.Geometry, error) {
	points, err := geo.UnmarshalWKT(f.Geometry)
	if err != nil {
		return core.Geometry{}, fmt.Errorf("feature %s: %w", f.FeatureID, err)
	}
	var tags map[string]string
	if len(f.Tags) > 0 {
		if err := json.Unmarshal(f.Tags, &tags); err != nil {
			return core.Geometry{}, fmt.Errorf("feature %s tags: %w", f.FeatureID, err)
		}
		if len(tags) == 0 {
			tags = nil
		}
	}
	return core.Geometry{
		ID:     f.FeatureID,
		Class:  core.GeometryClass(f.Class),
		Type:   f.Type,
		Points: points,
		Tags:   tags,
	}, nil
}
