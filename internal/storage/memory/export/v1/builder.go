package v1

import (
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/OCAP2/scene-engine/internal/util"
	"github.com/OCAP2/scene-engine/pkg/core"
)

// Planar coordinates are stored with centimeter precision.
const pointDecimals = 2

// Build creates an Export from a scene snapshot.
// Objects are written sorted by id so identical scenes produce identical files.
func Build(snap *core.Snapshot, savedAt time.Time) Export {
	export := Export{
		Version:   Version,
		Scene:     snap.Scene,
		SavedAt:   savedAt.UTC(),
		Targets:   buildObjects(snap.Objects[core.KindTarget]),
		Vehicles:  buildObjects(snap.Objects[core.KindVehicle]),
		Markers:   buildObjects(snap.Objects[core.KindMarker]),
		Buildings: buildFeatures(snap.Buildings),
		Roads:     buildFeatures(snap.Roads),
	}
	return export
}

func buildObjects(byID map[string]*core.Object) []Object {
	out := make([]Object, 0, len(byID))
	for _, o := range byID {
		c := o.Clone()
		obj := Object{
			ID:           c.ID,
			Type:         c.Type,
			CreationTime: c.CreationTime,
			Timestamp:    c.Timestamp,
			Attributes:   c.Attributes,
		}
		for _, f := range c.Frames {
			obj.Frames = append(obj.Frames, Frame{Timestamp: f.Timestamp, Attributes: f.Attributes})
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func buildFeatures(in []core.Geometry) []Feature {
	out := make([]Feature, 0, len(in))
	for _, g := range in {
		f := Feature{
			ID:     g.ID,
			Type:   g.Type,
			Points: make([][2]float64, 0, len(g.Points)),
			Tags:   maps.Clone(g.Tags),
		}
		for _, p := range g.Points {
			f.Points = append(f.Points, [2]float64{
				util.RoundTo(p.X, pointDecimals),
				util.RoundTo(p.Y, pointDecimals),
			})
		}
		out = append(out, f)
	}
	return out
}

// Snapshot converts a decoded Export back into a scene snapshot.
func (e *Export) Snapshot() (*core.Snapshot, error) {
	if e.Version != Version {
		return nil, fmt.Errorf("unsupported scene file version %d", e.Version)
	}
	snap := &core.Snapshot{
		Scene:     e.Scene,
		Objects:   core.NewCollections(),
		Buildings: restoreFeatures(e.Buildings, core.ClassBuilding),
		Roads:     restoreFeatures(e.Roads, core.ClassRoad),
	}
	lists := map[core.Kind][]Object{
		core.KindTarget:  e.Targets,
		core.KindVehicle: e.Vehicles,
		core.KindMarker:  e.Markers,
	}
	for kind, objs := range lists {
		for _, o := range objs {
			obj := &core.Object{
				ID:           o.ID,
				Kind:         kind,
				Type:         o.Type,
				CreationTime: o.CreationTime,
				Timestamp:    o.Timestamp,
				Attributes:   o.Attributes,
			}
			if !kind.HasCreationTime() {
				obj.CreationTime = nil
			}
			for _, f := range o.Frames {
				obj.Frames = append(obj.Frames, core.Frame{Timestamp: f.Timestamp, Attributes: f.Attributes})
			}
			obj.SortFrames()
			snap.Objects[kind][o.ID] = obj
		}
	}
	return snap, nil
}

func restoreFeatures(in []Feature, class core.GeometryClass) []core.Geometry {
	out := make([]core.Geometry, 0, len(in))
	for _, f := range in {
		g := core.Geometry{ID: f.ID, Class: class, Type: f.Type, Tags: f.Tags}
		for _, p := range f.Points {
			g.Points = append(g.Points, core.Point2D{X: p[0], Y: p[1]})
		}
		out = append(out, g)
	}
	return out
}
