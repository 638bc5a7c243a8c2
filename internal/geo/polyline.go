package geo

import (
	"fmt"

	"github.com/OCAP2/scene-engine/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// LineString builds a geom.LineString from planar points.
func LineString(points []core.Point2D) (geom.LineString, error) {
	if len(points) < 2 {
		return geom.LineString{}, fmt.Errorf("polyline must have at least 2 points, got %d", len(points))
	}

	flatCoords := make([]float64, 0, len(points)*2)
	for _, p := range points {
		flatCoords = append(flatCoords, p.X, p.Y)
	}

	seq := geom.NewSequence(flatCoords, geom.DimXY)
	return geom.NewLineString(seq), nil
}

// Length returns the planar length of the polyline in meters, or 0 for fewer than 2 points.
func Length(points []core.Point2D) float64 {
	ls, err := LineString(points)
	if err != nil {
		return 0
	}
	return ls.Length()
}

// MarshalWKT encodes planar points as a WKT LINESTRING.
func MarshalWKT(points []core.Point2D) (string, error) {
	ls, err := LineString(points)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}

// UnmarshalWKT decodes a WKT LINESTRING back into planar points.
func UnmarshalWKT(wkt string) ([]core.Point2D, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse polyline WKT: %w", err)
	}
	if g.Type() != geom.TypeLineString {
		return nil, fmt.Errorf("expected LINESTRING, got %s", g.Type())
	}

	seq := g.DumpCoordinates()
	points := make([]core.Point2D, seq.Length())
	for i := range points {
		xy := seq.GetXY(i)
		points[i] = core.Point2D{X: xy.X, Y: xy.Y}
	}
	return points, nil
}
