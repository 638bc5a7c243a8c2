// pkg/core/geometry.go
package core

import "maps"

// GeometryClass separates fetched map features.
type GeometryClass string

const (
	ClassBuilding GeometryClass = "building"
	ClassRoad     GeometryClass = "road"
)

// Geometry is a read-only map feature projected into the scene's planar frame.
// It carries no timestamps and is never touched by playback or time shifts.
type Geometry struct {
	ID     string            `json:"id"`
	Class  GeometryClass     `json:"class"`
	Type   string            `json:"type"`
	Points []Point2D         `json:"points"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Clone copies the point slice and tag map.
func (g Geometry) Clone() Geometry {
	c := g
	c.Points = append([]Point2D(nil), g.Points...)
	c.Tags = maps.Clone(g.Tags)
	return c
}

// CloneGeometries copies a geometry slice element-wise.
func CloneGeometries(in []Geometry) []Geometry {
	if in == nil {
		return nil
	}
	out := make([]Geometry, len(in))
	for i, g := range in {
		out[i] = g.Clone()
	}
	return out
}
