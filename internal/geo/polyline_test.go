package geo

import (
	"testing"

	"github.com/OCAP2/scene-engine/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineString_TooFewPoints(t *testing.T) {
	_, err := LineString([]core.Point2D{{X: 1, Y: 2}})
	require.Error(t, err)
}

func TestLength(t *testing.T) {
	pts := []core.Point2D{{X: 0, Y: 0}, {X: 3, Y: 4}, {X: 3, Y: 10}}
	assert.InDelta(t, 11.0, Length(pts), 1e-9)
	assert.Equal(t, 0.0, Length(nil))
}

func TestWKT_RoundTrip(t *testing.T) {
	pts := []core.Point2D{{X: 100.5, Y: 200.25}, {X: 300.75, Y: 400.5}, {X: 500, Y: 600}}

	wkt, err := MarshalWKT(pts)
	require.NoError(t, err)
	assert.Contains(t, wkt, "LINESTRING")

	got, err := UnmarshalWKT(wkt)
	require.NoError(t, err)
	assert.Equal(t, pts, got)
}

func TestUnmarshalWKT_Invalid(t *testing.T) {
	_, err := UnmarshalWKT("not wkt")
	require.Error(t, err)

	_, err = UnmarshalWKT("POINT(1 2)")
	require.Error(t, err)
}
